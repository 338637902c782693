package gateway

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/burstlab/burstd/internal/config"
)

const apiPrefix = "/api"

func (s *Server) apiAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if !s.authenticate(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) registerAPIRoutes(engine *gin.Engine) {
	api := engine.Group(apiPrefix, s.apiAuthMiddleware())
	api.GET("/health", s.ginAPIHealth)
	api.GET("/config", s.ginAPIConfig)
	api.GET("/batch/status", s.ginAPIBatchStatus)
	api.POST("/batch/flush", s.ginAPIBatchFlush)
}

func (s *Server) ginAPIHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"bridges": s.Conns.ListBridges(),
		"agents":  s.Conns.CountRole(RoleAgent),
		"clients": s.Conns.CountRole(RoleClient),
	})
}

func (s *Server) ginAPIConfig(c *gin.Context) {
	cfg := config.Get()
	if cfg == nil {
		cfg = s.Config
	}
	c.JSON(http.StatusOK, gin.H{
		"configPath": config.Path(),
		"gateway":    gin.H{"port": cfg.Gateway.Port},
		"batching":   cfg.Batching,
		"bridges":    cfg.Bridges,
	})
}

func (s *Server) ginAPIBatchStatus(c *gin.Context) {
	chatID := c.Query("chatId")
	if chatID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "chatId required"})
		return
	}
	c.JSON(http.StatusOK, s.scopeStatus(chatID, c.Query("participantId")))
}

func (s *Server) ginAPIBatchFlush(c *gin.Context) {
	var body ScopeParams
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if body.ChatID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "chatId required"})
		return
	}
	flushed := s.Engine.Flush(body.ChatID, body.ParticipantID)
	c.JSON(http.StatusOK, gin.H{"flushed": flushed})
}
