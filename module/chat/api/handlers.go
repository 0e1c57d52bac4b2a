package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"IMStore/module/chat/ledger"
	"IMStore/module/chat/member"
	"IMStore/module/chat/message"
	"IMStore/tools/errs"

	"github.com/gin-gonic/gin"
)

// Handlers 存储面的读与维护接口。
// 写入全部走队列（live / import），这里不收消息。
type Handlers struct {
	Ledger *ledger.Ledger
	Member *member.Member
	Store  *message.Store
}

func (h *Handlers) Register(r *gin.Engine) {
	g := r.Group("/conv/:id")
	g.GET("/messages", h.history)
	g.GET("/gap", h.gapFill)
	g.POST("/read", h.readTo)
	g.POST("/leave", h.leave)
	g.POST("/backfill-block", h.backfillBlock)
	g.POST("/messages/status", h.setStatus)
	g.DELETE("/messages", h.softDelete)
}

// history 往回翻页：seq 降序，最多 limit 条
func (h *Handlers) history(c *gin.Context) {
	convID := c.Param("id")
	before := queryInt64(c, "before", 0)
	limit := queryInt64(c, "limit", 50)
	if before <= 0 {
		// 不带游标：从当前计数器上方开始
		conv, err := h.Ledger.Get(c.Request.Context(), convID)
		if err != nil {
			fail(c, err)
			return
		}
		before = conv.SeqCounter + 1
	}
	msgs, err := h.Store.QueryBefore(c.Request.Context(), convID, before, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// gapFill 补洞：(since, until] 升序
func (h *Handlers) gapFill(c *gin.Context) {
	convID := c.Param("id")
	since := queryInt64(c, "since", 0)
	until := queryInt64(c, "until", 0)
	if until <= since {
		fail(c, errs.ErrArgs.WrapMsg("until must exceed since"))
		return
	}
	msgs, err := h.Store.QueryRange(c.Request.Context(), convID, since, until)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type readToReq struct {
	UserID  string `json:"user_id" binding:"required"`
	UpToSeq int64  `json:"up_to_seq" binding:"required"`
}

// readTo 推进已读水位；只进不退
func (h *Handlers) readTo(c *gin.Context) {
	var req readToReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg(err.Error()))
		return
	}
	got, err := h.Member.MarkReadTo(c.Request.Context(), c.Param("id"), req.UserID, req.UpToSeq)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"last_read_seq": got})
}

type leaveReq struct {
	UserID string `json:"user_id" binding:"required"`
}

// leave 离开会话：可见上界钉在当前计数器
func (h *Handlers) leave(c *gin.Context) {
	var req leaveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg(err.Error()))
		return
	}
	convID := c.Param("id")
	conv, err := h.Ledger.Get(c.Request.Context(), convID)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.Member.Leave(c.Request.Context(), convID, req.UserID, conv.SeqCounter, time.Now()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leave_seq": conv.SeqCounter})
}

type backfillBlockReq struct {
	Count int64 `json:"count" binding:"required"`
}

// backfillBlock 给外部迁移工具预留一段历史区间（向下发号）
func (h *Handlers) backfillBlock(c *gin.Context) {
	var req backfillBlockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg(err.Error()))
		return
	}
	anchor, err := h.Ledger.AllocateBackward(c.Request.Context(), c.Param("id"), req.Count)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"min_seq": anchor - req.Count + 1, "max_seq": anchor})
}

type statusReq struct {
	Seq    int64     `json:"seq" binding:"required"`
	SentAt time.Time `json:"sent_at" binding:"required"` // 定位月分区
	Status int32     `json:"status"`
}

func (h *Handlers) setStatus(c *gin.Context) {
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg(err.Error()))
		return
	}
	if err := h.Store.SetStatus(c.Request.Context(), req.SentAt, c.Param("id"), req.Seq, req.Status); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type deleteReq struct {
	Seq    int64     `json:"seq" binding:"required"`
	SentAt time.Time `json:"sent_at" binding:"required"`
}

// softDelete 软删：置位不移除，复制链路经 update 带到分析侧
func (h *Handlers) softDelete(c *gin.Context) {
	var req deleteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.ErrArgs.WrapMsg(err.Error()))
		return
	}
	if err := h.Store.SoftDelete(c.Request.Context(), req.SentAt, c.Param("id"), req.Seq); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func queryInt64(c *gin.Context, key string, def int64) int64 {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// fail 业务码映射 HTTP 状态
func fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrArgs):
		code = http.StatusBadRequest
	case errors.Is(err, errs.ErrConversationNotFound):
		code = http.StatusNotFound
	}
	var codeErr *errs.CodeError
	if errors.As(err, &codeErr) {
		c.JSON(code, gin.H{"code": codeErr.Code, "msg": codeErr.Msg, "detail": codeErr.Detail})
		return
	}
	c.JSON(code, gin.H{"code": errs.ServerInternalError, "msg": err.Error()})
}
