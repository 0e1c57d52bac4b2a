package replica

import (
	"context"
	"encoding/json"
	"sync"

	"IMStore/module/cdc"
	"IMStore/tools/errs"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// EntityHandler 把某一类实体的变更事件攒成批，flush 时经桥发布。
// Buffer 内把 bson 全文档解码成 JSON 可序列化的类型，解不开的事件丢弃并计数。
type EntityHandler struct {
	name     string
	biz      string
	supports func(coll string) bool
	decode   func(raw bson.Raw) (any, error)
	bridge   *Bridge

	mu      sync.Mutex
	pending map[string][]json.RawMessage // op -> docs
	dropped int64
}

func NewEntityHandler(name, biz string, supports func(string) bool, decode func(bson.Raw) (any, error), bridge *Bridge) *EntityHandler {
	return &EntityHandler{
		name:     name,
		biz:      biz,
		supports: supports,
		decode:   decode,
		bridge:   bridge,
		pending:  make(map[string][]json.RawMessage),
	}
}

func (h *EntityHandler) Name() string              { return h.name }
func (h *EntityHandler) Supports(coll string) bool { return h.supports(coll) }

// Buffer 只攒 insert/update；delete 由软删标记经 update 覆盖，不单独复制
func (h *EntityHandler) Buffer(ev *cdc.Event) {
	if ev.OpType != cdc.OpInsert && ev.OpType != cdc.OpUpdate && ev.OpType != cdc.OpReplace {
		return
	}
	if len(ev.FullDocument) == 0 {
		return
	}
	doc, err := h.decode(ev.FullDocument)
	if err != nil {
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
		return
	}
	data, err := json.Marshal(doc)
	if err != nil {
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
		return
	}
	op := ev.OpType
	if op == cdc.OpReplace {
		op = cdc.OpUpdate
	}
	h.mu.Lock()
	h.pending[op] = append(h.pending[op], data)
	h.mu.Unlock()
}

// Flush 按操作类型各发一批；发出去才清缓冲，失败的留到下一轮
func (h *EntityHandler) Flush(ctx context.Context) error {
	h.mu.Lock()
	snapshot := h.pending
	h.pending = make(map[string][]json.RawMessage)
	h.mu.Unlock()

	var firstErr error
	for op, docs := range snapshot {
		if len(docs) == 0 {
			continue
		}
		batch := &Batch{BatchID: uuid.NewString(), Entity: h.name, Op: op, Docs: docs}
		if _, err := h.bridge.PublishBatch(ctx, h.biz, batch); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			// 发布失败塞回缓冲，等下一轮
			h.mu.Lock()
			h.pending[op] = append(docs, h.pending[op]...)
			h.mu.Unlock()
		}
	}
	if firstErr != nil {
		return errs.ErrHandlerFlush.WrapMsg("flush", "handler", h.name, "cause", firstErr.Error())
	}
	return nil
}

// Dropped 解码失败被丢弃的事件数（运维可见）
func (h *EntityHandler) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
