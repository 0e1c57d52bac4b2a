package cdc

import (
	"context"
	"testing"

	"IMStore/tools/errs"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// ----- 替身 -----

type fakeSource struct {
	events []*Event
	pos    int
	token  bson.Raw
	closed bool
}

func (s *fakeSource) TryNext(_ context.Context) (*Event, bool, error) {
	if s.pos >= len(s.events) {
		return nil, false, nil
	}
	ev := s.events[s.pos]
	s.pos++
	s.token = bson.Raw(append([]byte(nil), byte(s.pos)))
	return ev, true, nil
}

func (s *fakeSource) ResumeToken() bson.Raw         { return s.token }
func (s *fakeSource) Close(_ context.Context) error { s.closed = true; return nil }

type fakeOpener struct {
	src          *fakeSource
	rejectResume bool
	openedWith   []bson.Raw
}

func (o *fakeOpener) Open(_ context.Context, resume bson.Raw) (Source, error) {
	o.openedWith = append(o.openedWith, resume)
	if o.rejectResume && len(resume) > 0 {
		return nil, errs.ErrCheckpointInvalid.WrapMsg("token rejected")
	}
	return o.src, nil
}

type fakeCkpt struct {
	token   bson.Raw
	saves   int
	cleared int
}

func (c *fakeCkpt) Load(_ context.Context) (bson.Raw, error) { return c.token, nil }
func (c *fakeCkpt) Save(_ context.Context, t bson.Raw) error { c.token = t; c.saves++; return nil }
func (c *fakeCkpt) Clear(_ context.Context) error            { c.token = nil; c.cleared++; return nil }

type fakeHeartbeat struct{ beats int }

func (h *fakeHeartbeat) Beat(_ context.Context) error { h.beats++; return nil }

type recHandler struct {
	name     string
	coll     string
	buffered []*Event
	flushes  int
	flushErr error
}

func (h *recHandler) Name() string              { return h.name }
func (h *recHandler) Supports(coll string) bool { return coll == h.coll }
func (h *recHandler) Buffer(ev *Event)          { h.buffered = append(h.buffered, ev) }
func (h *recHandler) Flush(_ context.Context) error {
	h.flushes++
	return h.flushErr
}

// ----- 用例 -----

func TestCycleRoutesBySourceCollection(t *testing.T) {
	src := &fakeSource{events: []*Event{
		{OpType: OpInsert, Coll: "message_202608"},
		{OpType: OpInsert, Coll: "conversation"},
		{OpType: OpUpdate, Coll: "message_202608"},
	}}
	opener := &fakeOpener{src: src}
	ckpt := &fakeCkpt{}
	hb := &fakeHeartbeat{}

	msgs := &recHandler{name: "msg", coll: "message_202608"}
	convs := &recHandler{name: "conv", coll: "conversation"}

	r := NewRouter(opener, ckpt, hb)
	r.Register(msgs)
	r.Register(convs)

	require.NoError(t, r.RunCycle(context.Background()))

	require.Len(t, msgs.buffered, 2)
	require.Len(t, convs.buffered, 1)
	require.Equal(t, 1, msgs.flushes)
	require.Equal(t, 1, convs.flushes)
	require.Equal(t, 1, ckpt.saves)
	require.True(t, src.closed)
	require.Equal(t, StateIdle, r.State())
}

func TestCycleSkipsBookkeepingCollections(t *testing.T) {
	src := &fakeSource{events: []*Event{
		{OpType: OpUpdate, Coll: "cdc_checkpoint"},
		{OpType: OpUpdate, Coll: "cdc_heartbeat"},
	}}
	ckpt := &fakeCkpt{}
	h := &recHandler{name: "all", coll: "cdc_checkpoint"}

	r := NewRouter(&fakeOpener{src: src}, ckpt, &fakeHeartbeat{})
	r.Register(h)

	require.NoError(t, r.RunCycle(context.Background()))

	// 簿记集合的事件推进位置但不进 handler
	require.Empty(t, h.buffered)
	require.Equal(t, 1, ckpt.saves)
}

func TestCycleResumesFromCheckpoint(t *testing.T) {
	src := &fakeSource{events: []*Event{{OpType: OpInsert, Coll: "conversation"}}}
	opener := &fakeOpener{src: src}
	ckpt := &fakeCkpt{token: bson.Raw([]byte{0x7f})}

	r := NewRouter(opener, ckpt, &fakeHeartbeat{})
	require.NoError(t, r.RunCycle(context.Background()))

	require.Len(t, opener.openedWith, 1)
	require.Equal(t, bson.Raw([]byte{0x7f}), opener.openedWith[0])
}

func TestCycleDiscardsRejectedToken(t *testing.T) {
	src := &fakeSource{events: []*Event{{OpType: OpInsert, Coll: "conversation"}}}
	opener := &fakeOpener{src: src, rejectResume: true}
	ckpt := &fakeCkpt{token: bson.Raw([]byte{0x7f})}
	hb := &fakeHeartbeat{}

	r := NewRouter(opener, ckpt, hb)
	require.NoError(t, r.RunCycle(context.Background()))

	// 坏 token：清掉、全新开流、打一次心跳逼出新位置
	require.Equal(t, 1, ckpt.cleared)
	require.Len(t, opener.openedWith, 2)
	require.Nil(t, opener.openedWith[1])
	require.Equal(t, 1, hb.beats)
	require.Equal(t, 1, ckpt.saves)
}

func TestCycleHandlerFailureIsIsolated(t *testing.T) {
	src := &fakeSource{events: []*Event{
		{OpType: OpInsert, Coll: "conversation"},
		{OpType: OpInsert, Coll: "membership"},
	}}
	ckpt := &fakeCkpt{}

	bad := &recHandler{name: "bad", coll: "conversation", flushErr: errs.ErrHandlerFlush}
	good := &recHandler{name: "good", coll: "membership"}

	r := NewRouter(&fakeOpener{src: src}, ckpt, &fakeHeartbeat{})
	r.Register(bad)
	r.Register(good)

	// 单 handler 失败不拖垮本轮
	require.NoError(t, r.RunCycle(context.Background()))
	require.Equal(t, 1, good.flushes)
	require.Equal(t, 1, ckpt.saves)
}

func TestCycleHonorsBatchLimit(t *testing.T) {
	src := &fakeSource{events: []*Event{
		{OpType: OpInsert, Coll: "conversation"},
		{OpType: OpInsert, Coll: "conversation"},
		{OpType: OpInsert, Coll: "conversation"},
	}}
	h := &recHandler{name: "conv", coll: "conversation"}

	r := NewRouter(&fakeOpener{src: src}, &fakeCkpt{}, &fakeHeartbeat{})
	r.BatchLimit = 2
	r.Register(h)

	require.NoError(t, r.RunCycle(context.Background()))
	require.Len(t, h.buffered, 2)
}
