package ingest

import (
	"context"
	"sync"
	"time"

	chatmodel "IMStore/module/chat/model"
	"IMStore/tools/errs"
)

// 内存账本替身，语义与 mongo 版 Ledger 对齐
type fakeLedger struct {
	mu       sync.Mutex
	counters map[string]int64
	advanced map[string]int64 // AdvanceBy 累计量
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		counters: make(map[string]int64),
		advanced: make(map[string]int64),
	}
}

func (f *fakeLedger) EnsureExists(_ context.Context, conversationID string, convType int32) (*chatmodel.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.counters[conversationID]; !ok {
		f.counters[conversationID] = chatmodel.SeqHorizon
	}
	return &chatmodel.Conversation{
		ConversationID: conversationID,
		ConvType:       convType,
		SeqCounter:     f.counters[conversationID],
	}, nil
}

func (f *fakeLedger) AllocateForward(_ context.Context, conversationID string, count int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	before, ok := f.counters[conversationID]
	if !ok {
		return 0, errs.ErrConversationNotFound.WrapMsg("allocate forward", "conv", conversationID)
	}
	f.counters[conversationID] = before + count
	if count == 1 {
		return before + 1, nil
	}
	return before, nil
}

func (f *fakeLedger) AdvanceBy(_ context.Context, conversationID string, n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.counters[conversationID]; !ok {
		return errs.ErrConversationNotFound.WrapMsg("advance", "conv", conversationID)
	}
	f.counters[conversationID] += n
	f.advanced[conversationID] += n
	return nil
}

func (f *fakeLedger) counter(conversationID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[conversationID]
}

type lowerCall struct {
	ConvID  string
	JoinSeq int64
	JoinAt  time.Time
}

type fakeMember struct {
	mu           sync.Mutex
	directCalls  int
	groupCalls   int
	lastVersion  int64
	loweredCalls []lowerCall
}

func (f *fakeMember) EnsureForDirect(_ context.Context, _, _, _ string, currentVersion int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.directCalls++
	f.lastVersion = currentVersion
	return nil
}

func (f *fakeMember) EnsureForGroup(_ context.Context, _, _ string, currentVersion int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupCalls++
	f.lastVersion = currentVersion
	return nil
}

func (f *fakeMember) LowerJoinBoundaryForAllActiveMembers(_ context.Context, conversationID string, newJoinSeq int64, newJoinTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loweredCalls = append(f.loweredCalls, lowerCall{conversationID, newJoinSeq, newJoinTime})
	return nil
}

type fakeStore struct {
	mu        sync.Mutex
	appended  []*chatmodel.MessageModel
	appendErr error
}

func (f *fakeStore) Append(_ context.Context, m *chatmodel.MessageModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, m)
	return nil
}

func (f *fakeStore) BulkAppend(_ context.Context, msgs []*chatmodel.MessageModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, msgs...)
	return nil
}
