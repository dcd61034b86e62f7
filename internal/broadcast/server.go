// Package broadcast runs the WebSocket server that pushes authentication
// results and heartbeats to display terminals.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/m3-muru/facial-rpi/internal/logger"
	"github.com/m3-muru/facial-rpi/pkg/types"
)

// Config for the broadcast server
type Config struct {
	Addr         string        // Listen address, empty to serve only through ServeHTTP
	PingInterval time.Duration // Heartbeat period
	WriteTimeout time.Duration // Per-message write deadline
	QueueSize    int           // Publish hand-off capacity
	Pin          string        // Pin sent with results
}

// DefaultConfig returns the kiosk broadcast settings
func DefaultConfig() Config {
	return Config{
		Addr:         ":9998",
		PingInterval: 60 * time.Second,
		WriteTimeout: 5 * time.Second,
		QueueSize:    64,
		Pin:          DefaultPin,
	}
}

// Stats is a snapshot of server counters
type Stats struct {
	Clients int64
	Sent    uint64
	Pruned  uint64
	Dropped uint64
}

// conn is the part of *websocket.Conn the loop writes through
type conn interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
	Close() error
}

type client struct {
	id     string
	remote string
	conn   conn
}

// Server fans messages out to every connected terminal. The client set is
// owned by a single loop goroutine; other goroutines reach it over channels.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader

	publish  chan interface{}
	register chan *client
	countReq chan chan int
	done     chan struct{}
	running  atomic.Bool

	clients atomic.Int64
	sent    atomic.Uint64
	pruned  atomic.Uint64
	dropped atomic.Uint64

	httpServer *http.Server
	addr       net.Addr
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a server. Zero config fields take DefaultConfig values.
func New(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Pin == "" {
		cfg.Pin = def.Pin
	}
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Terminals are browsers on other hosts of the plant network
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		publish:  make(chan interface{}, cfg.QueueSize),
		register: make(chan *client),
		countReq: make(chan chan int),
		done:     make(chan struct{}),
	}
}

// Start runs the loop and, when Addr is set, the listener
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)
	s.wg.Add(1)
	go s.run(ctx)

	if s.cfg.Addr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.cancel()
		s.wg.Wait()
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.addr = ln.Addr()
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Broadcast", "Server error: %v", err)
		}
	}()
	logger.Info("Broadcast", "WebSocket server listening on %s", s.addr)
	return nil
}

// Addr returns the bound listen address, nil before Start
func (s *Server) Addr() net.Addr { return s.addr }

// Stop closes the listener and every client connection
func (s *Server) Stop() {
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Broadcast", "Shutdown: %v", err)
		}
		cancel()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// ServeHTTP upgrades the request and registers the connection with the loop.
// The handler goroutine then acts as the connection's read pump.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Broadcast", "Upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	id, ok := s.add(ws, r.RemoteAddr)
	if !ok {
		ws.Close()
		return
	}

	// Inbound frames are ignored. A read error closes the socket so the
	// loop's next write to it fails and prunes it.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			logger.Debug("Broadcast", "Client[%s] read ended: %v", id, err)
			ws.Close()
			return
		}
	}
}

func (s *Server) add(c conn, remote string) (string, bool) {
	cl := &client{id: uuid.NewString(), remote: remote, conn: c}
	select {
	case s.register <- cl:
		return cl.id, true
	case <-s.done:
		return "", false
	}
}

// Publish hands msg to the loop without blocking. It reports false when the
// hand-off is full and the message was dropped.
func (s *Server) Publish(msg interface{}) bool {
	select {
	case s.publish <- msg:
		return true
	default:
		n := s.dropped.Add(1)
		logger.Warn("Broadcast", "Publish queue full, message dropped (total dropped: %d)", n)
		return false
	}
}

// PublishResult broadcasts an authentication result
func (s *Server) PublishResult(employeeID string, attendance types.Attendance) bool {
	return s.Publish(NewResult(employeeID, s.cfg.Pin, attendance))
}

// ClientCount asks the loop for the number of live clients
func (s *Server) ClientCount() int {
	if !s.running.Load() {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case s.countReq <- reply:
		return <-reply
	case <-s.done:
		return 0
	}
}

// Stats returns current counters
func (s *Server) Stats() Stats {
	return Stats{
		Clients: s.clients.Load(),
		Sent:    s.sent.Load(),
		Pruned:  s.pruned.Load(),
		Dropped: s.dropped.Load(),
	}
}

func (s *Server) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.done)

	clients := make(map[string]*client)
	defer func() {
		for _, c := range clients {
			c.conn.Close()
		}
		s.clients.Store(0)
	}()

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	s.sendAll(clients, pingMessage)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Broadcast", "Stopping, closing %d client(s)", len(clients))
			return

		case c := <-s.register:
			clients[c.id] = c
			s.clients.Store(int64(len(clients)))
			logger.Info("Broadcast", "Client[%s] connected from %s (total: %d)", c.id, c.remote, len(clients))

		case msg := <-s.publish:
			if r, ok := msg.(Result); ok {
				logger.Info("Broadcast", "Broadcasting to %d client(s) ---> user: %s, pin: %s", len(clients), r.User, r.Pin)
			}
			s.sendAll(clients, msg)

		case <-ticker.C:
			s.sendAll(clients, pingMessage)
			logger.Debug("Broadcast", "Active client connections: %d", len(clients))

		case reply := <-s.countReq:
			reply <- len(clients)
		}
	}
}

// sendAll writes msg to every client, pruning those whose write fails
func (s *Server) sendAll(clients map[string]*client, msg interface{}) {
	for id, c := range clients {
		_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			logger.Info("Broadcast", "Client[%s] send failed, removing: %v", id, err)
			c.conn.Close()
			delete(clients, id)
			s.pruned.Add(1)
			continue
		}
		s.sent.Add(1)
	}
	s.clients.Store(int64(len(clients)))
}
