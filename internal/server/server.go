// Package server exposes the interview controller over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/amanullahtanweer/interview-orchestrator/internal/flow"
	"github.com/amanullahtanweer/interview-orchestrator/internal/notify"
)

const (
	shutdownTimeout = 5 * time.Second
	resultWait      = 2 * time.Second
	writeWait       = 5 * time.Second
)

// Controller is the part of *flow.Controller the API drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	State() flow.SessionState
	SessionID() string
	Wait(ctx context.Context) (flow.Result, error)
}

type Config struct {
	Addr         string
	AllowOrigins []string
}

type Server struct {
	cfg      Config
	engine   *gin.Engine
	ctl      Controller
	tracker  *Tracker
	upgrader websocket.Upgrader

	// ctx outlives requests; sessions started over HTTP run under it.
	ctx context.Context
}

// New builds the API. Sessions started through it are cancelled with ctx.
func New(ctx context.Context, cfg Config, ctl Controller, tracker *Tracker) *Server {
	s := &Server{
		cfg:     cfg,
		ctl:     ctl,
		tracker: tracker,
		ctx:     ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger())
	engine.Use(CORS(cfg.AllowOrigins))
	s.registerRoutes(engine)
	s.engine = engine
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) registerRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/session", s.handleSession)
		api.POST("/session/start", s.handleStart)
		api.POST("/session/stop", s.handleStop)
		api.GET("/session/events", s.handleEvents)
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info().Msgf("Control API listening on %s", s.cfg.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down control API...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "state": s.ctl.State()})
}

func (s *Server) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.view(c.Request.Context()))
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.ctl.Start(s.ctx); err != nil {
		if errors.Is(err, flow.ErrAlreadyRunning) {
			respondError(c, http.StatusConflict, err)
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": s.ctl.SessionID(), "state": s.ctl.State()})
}

func (s *Server) handleStop(c *gin.Context) {
	state := s.ctl.State()
	if !state.Startable() {
		s.ctl.Stop()
	}
	c.JSON(http.StatusAccepted, gin.H{"id": s.ctl.SessionID(), "state": state, "stopping": !state.Startable()})
}

type streamMessage struct {
	Type    string        `json:"type"`
	Session *View         `json:"session,omitempty"`
	Event   *notify.Event `json:"event,omitempty"`
}

// handleEvents streams a snapshot followed by every live event.
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Msgf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := s.tracker.Subscribe()
	defer cancel()

	view := s.view(c.Request.Context())
	if err := s.write(conn, streamMessage{Type: "snapshot", Session: &view}); err != nil {
		return
	}

	// The reader only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e := <-events:
			if err := s.write(conn, streamMessage{Type: "event", Event: &e}); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, msg streamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// view merges the tracked events with the controller's live state. A
// finished session also reports its error.
func (s *Server) view(ctx context.Context) View {
	v := s.tracker.Snapshot()
	state := s.ctl.State()
	v.State = state.String()
	if v.ID == "" {
		v.ID = s.ctl.SessionID()
	}
	if state == flow.StateFailed && v.Error == "" {
		waitCtx, cancel := context.WithTimeout(ctx, resultWait)
		defer cancel()
		if res, err := s.ctl.Wait(waitCtx); err == nil && res.Err != nil {
			v.Error = res.Err.Error()
		}
	}
	if v.Statuses == nil {
		v.Statuses = []string{}
	}
	return v
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
