package admin

import (
	"fmt"
	"net/http"

	"IMStore/logger"
	"IMStore/module/cdc"
	"IMStore/module/chat/api"
	"IMStore/module/chat/ingest"
	"IMStore/service/mgo"

	"github.com/gin-gonic/gin"
)

// Server 运维薄面：只读状态 + checkpoint 重置；业务读接口由 Chat 挂上来
type Server struct {
	Ckpt *cdc.MongoCheckpoint
	Live *ingest.LiveWorker
	Chat *api.Handlers
}

func (s *Server) Run(port int) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	r.GET("/cdc/checkpoint", s.checkpointStatus)
	r.DELETE("/cdc/checkpoint", s.checkpointClear)
	r.GET("/ingest/staging", s.stagingDepth)
	if s.Chat != nil {
		s.Chat.Register(r)
	}

	addr := fmt.Sprintf(":%d", port)
	logger.Infof("admin listening on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Errorf("admin server: %v", err)
	}
}

func (s *Server) health(c *gin.Context) {
	_, mongoUp := mgo.TryGetDB()
	out := gin.H{"mongo": mongoUp}
	if err := mgo.Err(); err != nil {
		out["mongo_last_err"] = err.Error()
	}
	code := http.StatusOK
	if !mongoUp {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, out)
}

func (s *Server) checkpointStatus(c *gin.Context) {
	exists, updatedAt, err := s.Ckpt.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists, "updated_at": updatedAt})
}

// checkpointClear 清掉 resume token，下一轮 CDC 全新开流（等价全量重扫）
func (s *Server) checkpointClear(c *gin.Context) {
	if err := s.Ckpt.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Warn("cdc checkpoint cleared by operator")
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (s *Server) stagingDepth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"inflight": s.Live.InflightDepth()})
}
