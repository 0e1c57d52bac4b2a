package ledger

import (
	"context"
	"testing"

	chatmodel "IMStore/module/chat/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

// 发号全走单次 findAndModify，mock 服务端即可验证两件事：
// 返回值恒取更新前的计数器，以及发给存储的条件算术本身。

func counterDoc(v int64) bson.E {
	return bson.E{Key: "value", Value: bson.D{{Key: chatmodel.ConvFieldSeqCounter, Value: v}}}
}

// backwardCond 取出 $cond 的三元分支：[比较, counter==H 分支, 其余分支]
func backwardCond(mt *mtest.T) bson.Raw {
	evt := mt.GetStartedEvent()
	if evt == nil || evt.CommandName != "findAndModify" {
		mt.Fatalf("want a findAndModify command, got %v", evt)
	}
	update, err := evt.Command.LookupErr("update")
	if err != nil {
		mt.Fatalf("command has no update: %v", err)
	}
	stages, ok := update.ArrayOK()
	if !ok {
		mt.Fatalf("update must be an aggregation pipeline, got %v", update.Type)
	}
	cond := stages.Lookup("0").Document().
		Lookup("$set", chatmodel.ConvFieldSeqCounter, "$cond")
	arr, ok := cond.ArrayOK()
	if !ok {
		mt.Fatalf("counter update must be a $cond, got %s", stages)
	}
	return arr
}

func TestAllocateBackward(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("single claim keeps horizon counter", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(counterDoc(chatmodel.SeqHorizon)))
		l := &Ledger{Coll: mt.Coll}

		anchor, err := l.AllocateBackward(context.Background(), "p2p:u_1_u_2", 1)
		if err != nil {
			mt.Fatalf("allocate backward: %v", err)
		}
		if anchor != chatmodel.SeqHorizon {
			mt.Fatalf("anchor = %d, want pre-update counter %d", anchor, chatmodel.SeqHorizon)
		}

		cond := backwardCond(mt)
		eq := cond.Lookup("0").Document().Lookup("$eq").Array()
		if got, _ := eq.Lookup("1").AsInt64OK(); got != chatmodel.SeqHorizon {
			mt.Fatalf("counter compared against %d, want horizon", got)
		}
		// counter==H 且 count==1：计数器原样保留，H 本身被认领一次
		if s, _ := cond.Lookup("1").StringValueOK(); s != "$"+chatmodel.ConvFieldSeqCounter {
			mt.Fatalf("horizon branch must keep the counter, got %v", cond.Lookup("1"))
		}
	})

	mt.Run("block at horizon decrements by count-1", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(counterDoc(chatmodel.SeqHorizon)))
		l := &Ledger{Coll: mt.Coll}

		anchor, err := l.AllocateBackward(context.Background(), "grp:g_7", 5)
		if err != nil {
			mt.Fatalf("allocate backward: %v", err)
		}
		// 块区间 [anchor-count+1, anchor] = [99996, 100000]，H 为块内最低值
		if anchor != chatmodel.SeqHorizon {
			mt.Fatalf("anchor = %d, want %d", anchor, chatmodel.SeqHorizon)
		}

		cond := backwardCond(mt)
		atH := cond.Lookup("1").Document().Lookup("$subtract").Array()
		if got, _ := atH.Lookup("1").AsInt64OK(); got != 4 {
			mt.Fatalf("horizon branch decrement = %d, want count-1", got)
		}
		elseBr := cond.Lookup("2").Document().Lookup("$subtract").Array()
		if got, _ := elseBr.Lookup("1").AsInt64OK(); got != 5 {
			mt.Fatalf("non-horizon branch decrement = %d, want count", got)
		}
	})

	mt.Run("below horizon decrements by count", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(counterDoc(99980)))
		l := &Ledger{Coll: mt.Coll}

		anchor, err := l.AllocateBackward(context.Background(), "grp:g_7", 3)
		if err != nil {
			mt.Fatalf("allocate backward: %v", err)
		}
		if anchor != 99980 {
			mt.Fatalf("anchor = %d, want pre-update counter 99980", anchor)
		}

		cond := backwardCond(mt)
		elseBr := cond.Lookup("2").Document().Lookup("$subtract").Array()
		if got, _ := elseBr.Lookup("1").AsInt64OK(); got != 3 {
			mt.Fatalf("decrement = %d, want count", got)
		}
	})

	mt.Run("rejects non-positive count", func(mt *mtest.T) {
		l := &Ledger{Coll: mt.Coll}
		if _, err := l.AllocateBackward(context.Background(), "grp:g_7", 0); err == nil {
			mt.Fatalf("count=0 must be rejected before touching storage")
		}
	})
}

func TestAllocateForward(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("single message gets next seq", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(counterDoc(100004)))
		l := &Ledger{Coll: mt.Coll}

		seq, err := l.AllocateForward(context.Background(), "p2p:u_1_u_2", 1)
		if err != nil {
			mt.Fatalf("allocate forward: %v", err)
		}
		if seq != 100005 {
			mt.Fatalf("seq = %d, want pre-update counter + 1", seq)
		}

		evt := mt.GetStartedEvent()
		inc := evt.Command.Lookup("update", "$inc", chatmodel.ConvFieldSeqCounter)
		if got, _ := inc.AsInt64OK(); got != 1 {
			mt.Fatalf("$inc = %d, want 1", got)
		}
	})

	mt.Run("block returns pre-update counter", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(counterDoc(100010)))
		l := &Ledger{Coll: mt.Coll}

		pre, err := l.AllocateForward(context.Background(), "grp:g_7", 4)
		if err != nil {
			mt.Fatalf("allocate forward: %v", err)
		}
		// 块区间 [pre+1, pre+count]
		if pre != 100010 {
			mt.Fatalf("base = %d, want pre-update counter", pre)
		}
	})
}
