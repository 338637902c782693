package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/burstlab/burstd/internal/batch"
	"github.com/burstlab/burstd/internal/config"
	"github.com/burstlab/burstd/internal/message"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the burstd gateway: the host event loop feeding the batch engine
// from bridge connections and exposing its status/control surface.
type Server struct {
	Config  *config.Config
	Engine  *batch.Engine
	Conns   *ConnManager
	Dedup   *message.Dedup
	httpSrv *http.Server
	startAt time.Time
}

func NewServer(cfg *config.Config, engine *batch.Engine, conns *ConnManager, dedup *message.Dedup) *Server {
	return &Server{
		Config:  cfg,
		Engine:  engine,
		Conns:   conns,
		Dedup:   dedup,
		startAt: time.Now(),
	}
}

// Start begins listening for connections.
func (s *Server) Start(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", s.ginHealth)
	engine.GET("/ws", s.ginWebSocket)
	s.registerAPIRoutes(engine)

	addr := fmt.Sprintf(":%d", s.Config.Gateway.Port)
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	slog.Info("burstd gateway starting", "port", s.Config.Gateway.Port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}()

	if err := s.httpSrv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) ginHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startAt).String(),
		"bridges": len(s.Conns.ListBridges()),
		"agents":  s.Conns.CountRole(RoleAgent),
		"clients": s.Conns.CountRole(RoleClient),
	})
}

func (s *Server) ginWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	conn := &Conn{
		ID:          "conn_" + uuid.NewString(),
		WS:          ws,
		ConnectedAt: time.Now(),
	}

	// First message must be a connect request.
	frame, err := ReadFrame(ws)
	if err != nil {
		slog.Warn("failed to read connect frame", "error", err)
		return
	}
	if frame.Method != "connect" {
		conn.Send(ResErr(frame.ID, "HANDSHAKE_REQUIRED", "first message must be a connect request"))
		return
	}

	var connectParams ConnectParams
	if err := json.Unmarshal(frame.Params, &connectParams); err != nil {
		conn.Send(ResErr(frame.ID, "INVALID_PARAMS", "invalid connect params"))
		return
	}

	if !s.authenticate(connectParams.Token) {
		conn.Send(ResErr(frame.ID, "AUTH_FAILED", "invalid token"))
		return
	}

	switch connectParams.Role {
	case RoleBridge, RoleAgent, RoleClient:
	default:
		conn.Send(ResErr(frame.ID, "INVALID_ROLE", "role must be bridge, agent or client"))
		return
	}

	conn.Role = connectParams.Role
	conn.Channel = connectParams.Channel
	conn.Capabilities = connectParams.Capabilities
	s.Conns.Add(conn)
	defer s.Conns.Remove(conn.ID)

	slog.Info("connection established", "id", conn.ID, "role", conn.Role, "channel", conn.Channel)

	conn.Send(ResOK(frame.ID, map[string]any{
		"connId":   conn.ID,
		"protocol": 1,
	}))

	// Message loop.
	for {
		frame, err := ReadFrame(ws)
		if err != nil {
			slog.Debug("connection closed", "id", conn.ID, "error", err)
			return
		}
		if frame.Type != "req" {
			continue
		}
		s.handleRequest(conn, frame)
	}
}

func (s *Server) authenticate(token string) bool {
	expected := s.Config.Gateway.Auth.Token
	if expected == "" {
		return true // no auth configured
	}
	return token == expected
}
