package ingest

import (
	"context"
	"testing"
	"time"

	chatmodel "IMStore/module/chat/model"

	"github.com/stretchr/testify/require"
)

func newLiveWorker() (*LiveWorker, *fakeLedger, *fakeMember, *fakeStore) {
	ledger := newFakeLedger()
	m := &fakeMember{}
	st := &fakeStore{}
	w := &LiveWorker{
		Ledger:     ledger,
		Member:     m,
		Store:      st,
		StagingCap: 16,
		StallSleep: time.Millisecond,
	}
	return w, ledger, m, st
}

func TestLiveFirstMessageSeqAboveHorizon(t *testing.T) {
	w, ledger, m, st := newLiveWorker()

	req := &SendReq{
		ConvType:    chatmodel.ConvTypeDirect,
		SenderID:    "u_1",
		RecipientID: "u_2",
		MsgType:     1,
		Content:     "hello",
		ClientMsgID: "c-1",
		SentAt:      time.Now(),
	}
	require.NoError(t, w.Handle(context.Background(), req))

	require.Len(t, st.appended, 1)
	got := st.appended[0]
	// 全新会话第一条实时消息落在地平线之上
	require.Equal(t, chatmodel.SeqHorizon+1, got.Seq)
	require.Equal(t, "p2p:u_1_u_2", got.ConversationID)
	require.NotEmpty(t, got.ServerMsgID)

	// 建成员时的版本快照是发号前的计数器
	require.Equal(t, 1, m.directCalls)
	require.Equal(t, chatmodel.SeqHorizon, m.lastVersion)
	require.Equal(t, chatmodel.SeqHorizon+1, ledger.counter("p2p:u_1_u_2"))
}

func TestLiveSequencesAreMonotonic(t *testing.T) {
	w, _, _, st := newLiveWorker()

	for i := 0; i < 3; i++ {
		req := &SendReq{
			ConvType:    chatmodel.ConvTypeGroup,
			SenderID:    "u_1",
			GroupID:     "g_9",
			Content:     "m",
			ClientMsgID: "c",
			SentAt:      time.Now(),
		}
		require.NoError(t, w.Handle(context.Background(), req))
	}

	require.Len(t, st.appended, 3)
	for i, m := range st.appended {
		require.Equal(t, chatmodel.SeqHorizon+int64(i+1), m.Seq)
		require.Equal(t, "grp:g_9", m.ConversationID)
	}
}

func TestLiveGroupRequiresGroupID(t *testing.T) {
	w, _, _, st := newLiveWorker()

	err := w.Handle(context.Background(), &SendReq{
		ConvType: chatmodel.ConvTypeGroup,
		SenderID: "u_1",
	})
	require.Error(t, err)
	require.Empty(t, st.appended)
}

func TestLiveBackpressureRejects(t *testing.T) {
	w, _, _, _ := newLiveWorker()
	w.StagingCap = 2
	w.inflight.Store(2) // 在途已满

	err := w.Handle(context.Background(), &SendReq{
		ConvType:    chatmodel.ConvTypeDirect,
		SenderID:    "u_1",
		RecipientID: "u_2",
	})
	require.Error(t, err)
	// 拒绝后不泄漏在途计数
	require.Equal(t, int32(2), w.InflightDepth())
}

func TestLiveAppendFailureSurfaces(t *testing.T) {
	w, _, _, st := newLiveWorker()
	st.appendErr = context.DeadlineExceeded

	err := w.Handle(context.Background(), &SendReq{
		ConvType:    chatmodel.ConvTypeDirect,
		SenderID:    "u_1",
		RecipientID: "u_2",
	})
	require.Error(t, err)
	require.Equal(t, int32(0), w.InflightDepth())
}
