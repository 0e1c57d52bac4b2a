package natsx

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemIdemMarkThenSeen(t *testing.T) {
	store := NewMemIdem(time.Minute)
	defer store.Close()

	seen, err := store.Seen("k1")
	if err != nil || seen {
		t.Fatalf("unmarked key should not be seen, got seen=%v err=%v", seen, err)
	}
	if err := store.Mark("k1", 0); err != nil {
		t.Fatalf("mark: %v", err)
	}
	seen, _ = store.Seen("k1")
	if !seen {
		t.Fatalf("marked key should be seen")
	}
	seen, _ = store.Seen("k2")
	if seen {
		t.Fatalf("different key should not be seen")
	}
}

func TestIdemMiddlewareSwallowsDuplicates(t *testing.T) {
	store := NewMemIdem(time.Minute)
	defer store.Close()
	calls := 0
	h := NatsxChain(func(_ context.Context, _ NatsxMessage) error {
		calls++
		return nil
	}, NatsxIdemMiddleware(store, time.Minute))

	msg := NatsxMessage{
		Subject: "im.cdc.message",
		Data:    []byte(`{"batch_id":"b1"}`),
		Header:  map[string]string{"Nats-Msg-Id": "b1"},
	}
	if err := h(context.Background(), msg); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := h(context.Background(), msg); err != nil {
		t.Fatalf("duplicate delivery should ack silently: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler should run once, ran %d times", calls)
	}
}

// 首投失败 → NAK，去重键不得落下；重投必须再次进 handler，
// 成功之后的下一次重复投递才被吞掉。
func TestIdemMiddlewareRedeliversAfterFailure(t *testing.T) {
	store := NewMemIdem(time.Minute)
	defer store.Close()
	calls := 0
	h := NatsxChain(func(_ context.Context, _ NatsxMessage) error {
		calls++
		if calls == 1 {
			return errors.New("staging full")
		}
		return nil
	}, NatsxIdemMiddleware(store, time.Minute))

	msg := NatsxMessage{
		Subject: "im.msg.live",
		Data:    []byte(`{"client_msg_id":"c1"}`),
		Header:  map[string]string{"Nats-Msg-Id": "c1"},
	}
	if err := h(context.Background(), msg); err == nil {
		t.Fatalf("failed delivery must surface the error so the broker redelivers")
	}
	if err := h(context.Background(), msg); err != nil {
		t.Fatalf("redelivery after failure: %v", err)
	}
	if calls != 2 {
		t.Fatalf("redelivery must reach the handler, ran %d times", calls)
	}
	if err := h(context.Background(), msg); err != nil {
		t.Fatalf("duplicate after success: %v", err)
	}
	if calls != 2 {
		t.Fatalf("post-success duplicate should be swallowed, ran %d times", calls)
	}
}

type brokenIdem struct{}

func (brokenIdem) Seen(string) (bool, error)        { return false, errors.New("store down") }
func (brokenIdem) Mark(string, time.Duration) error { return errors.New("store down") }

func TestIdemMiddlewarePassesThroughOnStoreError(t *testing.T) {
	calls := 0
	h := NatsxChain(func(_ context.Context, _ NatsxMessage) error {
		calls++
		return nil
	}, NatsxIdemMiddleware(brokenIdem{}, time.Minute))

	msg := NatsxMessage{Subject: "im.msg.live", Header: map[string]string{"Nats-Msg-Id": "x"}}
	if err := h(context.Background(), msg); err != nil {
		t.Fatalf("store outage must not block consumption: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler should run despite store outage, ran %d times", calls)
	}
}

func TestIdemMiddlewareFallsBackToContentKey(t *testing.T) {
	store := NewMemIdem(time.Minute)
	defer store.Close()
	calls := 0
	h := NatsxChain(func(_ context.Context, _ NatsxMessage) error {
		calls++
		return nil
	}, NatsxIdemMiddleware(store, time.Minute))

	// 无消息ID：subject+内容当弱ID
	msg := NatsxMessage{Subject: "im.msg.live", Data: []byte("same body")}
	_ = h(context.Background(), msg)
	_ = h(context.Background(), msg)
	if calls != 1 {
		t.Fatalf("identical payloads should dedupe, ran %d times", calls)
	}
}
