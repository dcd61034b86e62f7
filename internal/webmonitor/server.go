package webmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/m3-muru/facial-rpi/internal/faceproc"
	"github.com/m3-muru/facial-rpi/internal/logger"
	"github.com/m3-muru/facial-rpi/internal/mailbox"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

// Options wires the monitor to the rest of the kiosk. Any field may be nil.
type Options struct {
	Display       *mailbox.Slot[types.DisplayFrame]
	DisplayWidth  int
	DisplayHeight int
	Status        StatusFunc
	Commands      Commander
	Ready         func() bool
	Metrics       http.Handler
}

// Server serves the kiosk monitor endpoints.
type Server struct {
	cfg        Config
	opts       Options
	router     *chi.Mux
	httpServer *http.Server
	frames     *FrameBroadcaster
	feedback   *FeedbackBroadcaster
	blank      []byte
}

// NewServer returns a configured monitor server. The frame broadcaster is
// started immediately when a display slot is given.
func NewServer(cfg Config, opts Options) (*Server, error) {
	cfg = cfg.withDefaults()
	if opts.DisplayWidth <= 0 || opts.DisplayHeight <= 0 {
		opts.DisplayWidth, opts.DisplayHeight = 300, 450
	}

	blank, err := blankJPEG(opts.DisplayWidth, opts.DisplayHeight, cfg.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("render placeholder frame: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		opts:     opts,
		router:   chi.NewRouter(),
		feedback: NewFeedbackBroadcaster(cfg.ActivityLogSize),
		blank:    blank,
	}
	if opts.Display != nil {
		s.frames = NewFrameBroadcaster(opts.Display, cfg.JPEGQuality)
		s.frames.Start()
	}

	s.router.Use(chiMiddleware.RequestID)
	s.router.Use(chiMiddleware.RealIP)
	s.router.Use(chiMiddleware.Recoverer)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	r := s.router

	// Streams stay open indefinitely, so they sit outside the timeout group
	r.Get("/stream", s.handleStream)
	r.Get("/api/feedback/stream", s.handleFeedbackStream)

	r.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(s.cfg.RequestTimeout))

		r.Get("/", s.handleIndex)
		r.Get("/api/status", s.handleStatus)
		r.Post("/api/commands", s.handleCommand)
		r.Get("/health", s.handleHealth)
		r.Get("/readiness", s.handleReadiness)
		if s.opts.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
		}
	})
}

// Feedback returns the sink that records and streams feedback messages.
func (s *Server) Feedback() *FeedbackBroadcaster {
	return s.feedback
}

// Frames returns the MJPEG broadcaster, nil without a display slot.
func (s *Server) Frames() *FrameBroadcaster {
	return s.frames
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	logger.Info("WebMonitor", "Serving on http://%s", ln.Addr())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and halts the frame broadcaster.
// Open streams end when their request contexts are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("WebMonitor", "Shutting down")
	if s.frames != nil {
		s.frames.Stop()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.frames == nil {
		http.Error(w, "camera preview not configured", http.StatusServiceUnavailable)
		return
	}
	id, frameCh := s.frames.Subscribe()
	defer s.frames.Unsubscribe(id)
	streamMJPEGFromChannel(w, r, frameCh, s.cfg.MJPEGIdle, s.blank)
}

func (s *Server) handleFeedbackStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.feedback.Subscribe()
	defer s.feedback.Unsubscribe(id)
	streamEventsFromChannel(w, r, eventCh, wantsProtobuf(r), s.cfg.KeepaliveInterval)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var status Status
	if s.opts.Status != nil {
		status = s.opts.Status()
	}
	status.Activity = s.feedback.Activity()
	status.Timestamp = float64(time.Now().UnixMilli()) / 1000
	writeJSON(w, status)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.opts.Commands == nil {
		writeJSONWithStatus(w, map[string]any{"error": "command source disabled"}, http.StatusServiceUnavailable)
		return
	}

	var req types.CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid command"}, http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		writeJSONWithStatus(w, map[string]any{"error": "command is required"}, http.StatusBadRequest)
		return
	}

	cmd := req.ToCommand()
	if err := s.opts.Commands.Submit(cmd); err != nil {
		if errors.Is(err, faceproc.ErrQueueFull) {
			writeJSONWithStatus(w, map[string]any{"error": "command queue full"}, http.StatusServiceUnavailable)
			return
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}

	logger.Info("WebMonitor", "Queued command %q from %s", req.Command, r.RemoteAddr)
	writeJSONWithStatus(w, map[string]any{"status": "queued", "command": cmd.Name.String()}, http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil && !s.opts.Ready() {
		writeJSONWithStatus(w, map[string]any{"ready": false}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, map[string]any{"ready": true})
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
