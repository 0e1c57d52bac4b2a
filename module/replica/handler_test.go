package replica

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"IMStore/module/cdc"
	chatmodel "IMStore/module/chat/model"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func msgEvent(t *testing.T, op string, seq int64) *cdc.Event {
	t.Helper()
	raw, err := bson.Marshal(&chatmodel.MessageModel{
		ServerMsgID:    "s-1",
		ConversationID: "p2p:u_1_u_2",
		Seq:            seq,
		Content:        "hi",
	})
	require.NoError(t, err)
	return &cdc.Event{OpType: op, Coll: "message_202608", FullDocument: bson.Raw(raw)}
}

func TestHandlerBuffersInsertAndUpdateOnly(t *testing.T) {
	var got []published
	bridge := &Bridge{Publish: capturePublish(&got), Ceiling: 1 << 20}
	h := NewMessageHandler(bridge)

	h.Buffer(msgEvent(t, cdc.OpInsert, 100001))
	h.Buffer(msgEvent(t, cdc.OpUpdate, 100002))
	h.Buffer(msgEvent(t, cdc.OpDelete, 100003)) // 不复制 delete
	h.Buffer(msgEvent(t, cdc.OpReplace, 100004))

	require.NoError(t, h.Flush(context.Background()))

	// insert 一批，update 一批（replace 折算成 update）
	require.Len(t, got, 2)
	byOp := map[string]int{}
	for _, p := range got {
		var b Batch
		require.NoError(t, json.Unmarshal(p.data, &b))
		require.Equal(t, "message", b.Entity)
		byOp[b.Op] += len(b.Docs)
	}
	require.Equal(t, 1, byOp["insert"])
	require.Equal(t, 2, byOp["update"])
}

func TestHandlerSupportsPartitionsOnly(t *testing.T) {
	h := NewMessageHandler(&Bridge{Publish: capturePublish(&[]published{}), Ceiling: 1 << 20})
	require.True(t, h.Supports("message_202608"))
	require.False(t, h.Supports("conversation"))
	require.False(t, h.Supports("cdc_checkpoint"))
}

func TestHandlerDropsUndecodableEvents(t *testing.T) {
	h := NewConversationHandler(&Bridge{Publish: capturePublish(&[]published{}), Ceiling: 1 << 20})

	h.Buffer(&cdc.Event{OpType: cdc.OpInsert, Coll: "conversation",
		FullDocument: bson.Raw([]byte{0x01, 0x02})})
	require.Equal(t, int64(1), h.Dropped())
}

func TestHandlerFlushFailureRetainsDocs(t *testing.T) {
	calls := 0
	failing := func(_ context.Context, _ string, _ []byte, _ map[string]string) error {
		calls++
		if calls == 1 {
			return errors.New("broker down")
		}
		return nil
	}
	bridge := &Bridge{Publish: failing, Ceiling: 1 << 20}
	h := NewMessageHandler(bridge)

	h.Buffer(msgEvent(t, cdc.OpInsert, 100001))
	require.Error(t, h.Flush(context.Background()))

	// 失败的留在缓冲，下一轮原样重发
	require.NoError(t, h.Flush(context.Background()))
	require.Equal(t, 2, calls)
}
