package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kaomiru/internal/config"
	"kaomiru/internal/session"
)

// StatusProvider はセッション状態の取得元
type StatusProvider interface {
	Status() session.Status
}

// Server はステータスHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	status     StatusProvider
	hub        *Hub
	engine     *gin.Engine
	httpServer *http.Server
	startedAt  time.Time
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, status StatusProvider, hub *Hub) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config:    cfg,
		status:    status,
		hub:       hub,
		engine:    engine,
		startedAt: time.Now(),
		httpServer: &http.Server{
			Addr:        cfg.ServerAddress(),
			Handler:     engine,
			ReadTimeout: cfg.Server.ReadTimeout,
		},
	}
	s.setupRoutes()
	return s
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/api/status", s.handleStatus)
	s.engine.GET("/api/events", s.handleEvents)
	s.engine.GET("/", s.handleRoot)
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleStatus はセッション状態を返す
func (s *Server) handleStatus(c *gin.Context) {
	present, absent := s.config.Presence.PresentThreshold, s.config.Presence.AbsentThreshold
	c.JSON(http.StatusOK, gin.H{
		"session": s.status.Status(),
		"thresholds": gin.H{
			"present": present,
			"absent":  absent,
		},
		"subscribers": s.hub.Count(),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}

// handleEvents は在席イベントをWebSocketで配信する
func (s *Server) handleEvents(c *gin.Context) {
	s.hub.Serve(c.Writer, c.Request)
}

// handleRoot はルートパスのハンドラ
func (s *Server) handleRoot(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(`<!DOCTYPE html>
<html lang="ja">
<head>
    <meta charset="UTF-8">
    <title>kaomiru</title>
</head>
<body>
    <h1>kaomiru</h1>
    <p>ステータス: <a href="/api/status">/api/status</a></p>
    <p>ヘルスチェック: <a href="/health">/health</a></p>
    <p>イベント: ws://&lt;host&gt;/api/events</p>
</body>
</html>`))
}

// Start はサーバーを起動し、コンテキストがキャンセルされるまで待つ
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.hub.CloseAll()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}
