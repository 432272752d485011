// Package control exposes the character operations over HTTP and streams
// state snapshots over a websocket.
package control

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/spaghettifunk/marionette/engine/core"
	"github.com/spaghettifunk/marionette/engine/systems"
)

// Target is what the control server drives.
type Target interface {
	Snapshot() systems.State
	Profiles() []string
	SelectProfile(ctx context.Context, name string) error
	Say(ctx context.Context, text string) error
	StartTalking(ctx context.Context, audio []byte) error
	StopTalking(ctx context.Context) error
	PlayGeneratedSequence(ctx context.Context, clipIDs []string) error
	ApplyEmotion(ctx context.Context, name string) error
	PointerMoved(x, y float32)
}

type Config struct {
	Addr string
	// Snapshot period on /ws.
	StreamInterval time.Duration
	// Upper bound for a request waiting on the engine.
	RequestTimeout time.Duration
}

type Server struct {
	cfg    Config
	target Target
	router *gin.Engine
	http   *http.Server
	log    *log.Logger
}

type characterRequest struct {
	Name string `json:"name" binding:"required"`
}

// talkRequest carries either text to synthesize or base64 WAV audio.
type talkRequest struct {
	Text  string `json:"text"`
	Audio string `json:"audio"`
}

type sequenceRequest struct {
	Clips []string `json:"clips" binding:"required"`
}

type emotionRequest struct {
	Name string `json:"name" binding:"required"`
}

type pointerRequest struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(cfg Config, target Target) *Server {
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 250 * time.Millisecond
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = time.Minute
	}
	s := &Server{
		cfg:    cfg,
		target: target,
		log:    core.Logger("control"),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	r.GET("/state", s.getState)
	r.GET("/characters", s.getCharacters)
	r.POST("/character", s.postCharacter)
	r.POST("/talk", s.postTalk)
	r.DELETE("/talk", s.deleteTalk)
	r.POST("/sequence", s.postSequence)
	r.POST("/emotion", s.postEmotion)
	r.POST("/pointer", s.postPointer)
	r.GET("/ws", s.stream)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.log.Info("control server listening", "addr", l.Addr().String())
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request", "method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status(), "took", time.Since(start))
	}
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.target.Snapshot())
}

func (s *Server) getCharacters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"characters": s.target.Profiles()})
}

func (s *Server) postCharacter(c *gin.Context) {
	var req characterRequest
	if !s.bind(c, &req) {
		return
	}
	s.run(c, func(ctx context.Context) error { return s.target.SelectProfile(ctx, req.Name) })
}

func (s *Server) postTalk(c *gin.Context) {
	var req talkRequest
	if !s.bind(c, &req) {
		return
	}
	switch {
	case req.Audio != "":
		audio, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "audio must be base64: " + err.Error()})
			return
		}
		s.run(c, func(ctx context.Context) error { return s.target.StartTalking(ctx, audio) })
	case req.Text != "":
		s.run(c, func(ctx context.Context) error { return s.target.Say(ctx, req.Text) })
	default:
		c.JSON(http.StatusBadRequest, errorResponse{Error: "text or audio is required"})
	}
}

func (s *Server) deleteTalk(c *gin.Context) {
	s.run(c, s.target.StopTalking)
}

func (s *Server) postSequence(c *gin.Context) {
	var req sequenceRequest
	if !s.bind(c, &req) {
		return
	}
	s.run(c, func(ctx context.Context) error { return s.target.PlayGeneratedSequence(ctx, req.Clips) })
}

func (s *Server) postEmotion(c *gin.Context) {
	var req emotionRequest
	if !s.bind(c, &req) {
		return
	}
	s.run(c, func(ctx context.Context) error { return s.target.ApplyEmotion(ctx, req.Name) })
}

func (s *Server) postPointer(c *gin.Context) {
	var req pointerRequest
	if !s.bind(c, &req) {
		return
	}
	s.target.PointerMoved(req.X, req.Y)
	c.Status(http.StatusNoContent)
}

func (s *Server) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return false
	}
	return true
}

// run calls fn bounded by the request timeout and answers with the state it left.
func (s *Server) run(c *gin.Context, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		c.JSON(statusOf(err), errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.target.Snapshot())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownEmotion), errors.Is(err, core.ErrEmptySequence):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNoCharacter):
		return http.StatusConflict
	case errors.Is(err, core.ErrClipLoad), errors.Is(err, core.ErrCharacterLoad),
		errors.Is(err, core.ErrAudioSource), errors.Is(err, core.ErrEmptyClip):
		return http.StatusBadGateway
	case errors.Is(err, core.ErrShuttingDown), errors.Is(err, core.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
