// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mccodeai/mmgamerag/pkg/status"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Assistant answers questions and reports its flow state.
type Assistant interface {
	AskStream(ctx context.Context, question string, onChunk func(string) error) (string, error)
	Status() *status.Value
}

// Converter renders Markdown to HTML.
type Converter interface {
	ToHTML(markdown string) (string, error)
}

type Options struct {
	// Assistants by chat mode. DefaultMode must be present.
	Assistants  map[string]Assistant
	DefaultMode string
	Converter   Converter
	Logger      *slog.Logger
}

type Server struct {
	opts   Options
	logger *slog.Logger
	router *gin.Engine
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type askRequest struct {
	Question string `json:"question"`
	Mode     string `json:"mode,omitempty"`
}

type convertRequest struct {
	Markdown string `json:"markdown"`
}

type sseEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type statusEvent struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func New(opts Options) (*Server, error) {
	if _, ok := opts.Assistants[opts.DefaultMode]; !ok {
		return nil, fmt.Errorf("no assistant for default mode %q", opts.DefaultMode)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{opts: opts, logger: logger}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/ask", s.handleAsk)
	api.GET("/stream", s.handleStream)
	api.POST("/convert_markdown", s.handleConvert)
	api.GET("/status", s.handleStatus)
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) assistant(mode string) (Assistant, bool) {
	if mode == "" {
		mode = s.opts.DefaultMode
	}
	a, ok := s.opts.Assistants[mode]
	return a, ok
}

func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	a, ok := s.assistant(req.Mode)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mode"})
		return
	}

	answer, err := a.AskStream(c.Request.Context(), req.Question, nil)
	if err != nil {
		s.logger.Error("Ask failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to answer question"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

// handleStream streams raw answer tokens as server-sent events, then the
// formatted answer, then a [DONE] marker.
func (s *Server) handleStream(c *gin.Context) {
	question := strings.TrimSpace(c.Query("msg"))
	if question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "msg is required"})
		return
	}
	a, ok := s.assistant(c.Query("mode"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mode"})
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unavailable"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	send := func(ev sseEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	answer, err := a.AskStream(c.Request.Context(), question, func(chunk string) error {
		return send(sseEvent{Type: "token", Content: chunk})
	})
	if err != nil {
		s.logger.Error("Stream failed", "error", err)
		_ = send(sseEvent{Type: "error", Content: "failed to answer question"})
	} else {
		_ = send(sseEvent{Type: "answer", Content: answer})
	}
	_, _ = fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleConvert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	html, err := s.opts.Converter.ToHTML(req.Markdown)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to convert markdown"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"html": html})
}

// handleStatus pushes flow status changes over a websocket until the client
// goes away.
func (s *Server) handleStatus(c *gin.Context) {
	a, _ := s.assistant("")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Reads only detect the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	updates := a.Status().Watch(ctx)
	if err := writeStatus(conn, a.Status().Get()); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := writeStatus(conn, st); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeStatus(conn *websocket.Conn, st string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(statusEvent{Status: st, Timestamp: time.Now().UTC()})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("HTTP server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
