package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vexmx/avotex/internal/assistant"
	"github.com/vexmx/avotex/internal/capture"
	"github.com/vexmx/avotex/internal/database"
	"github.com/vexmx/avotex/internal/metrics"
)

const (
	maxMessageSize  = 8 << 20
	shutdownTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, this should be more restrictive
	},
}

// Options configures a Server. DB and Classifier are required.
type Options struct {
	DB         database.DB
	Classifier capture.Classifier
	Assistant  *assistant.Assistant
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	StaticDir       string
	CaptureInterval time.Duration
	// AutoCapture allows clients to start the fixed-interval capture timer.
	AutoCapture bool
}

// Server serves the websocket API and the static client.
type Server struct {
	db         database.DB
	classifier capture.Classifier
	assistant  *assistant.Assistant
	metrics    *metrics.Metrics
	logger     *slog.Logger

	staticDir   string
	interval    time.Duration
	autoCapture bool
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	asst := opts.Assistant
	if asst == nil {
		asst = assistant.New(nil, "", logger)
	}
	return &Server{
		db:          opts.DB,
		classifier:  opts.Classifier,
		assistant:   asst,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "server"),
		staticDir:   opts.StaticDir,
		interval:    opts.CaptureInterval,
		autoCapture: opts.AutoCapture,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	if reg := s.metrics.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := r.PathPrefix("/api/users/{user_id}").Subrouter()
	api.HandleFunc("/scans", s.handleListScans).Methods("GET")
	api.HandleFunc("/summary", s.handleSummary).Methods("GET")
	api.HandleFunc("/recommendations", s.handleRecommendations).Methods("GET")

	// Serve static files. Restricted to reads so other methods on the API
	// routes still answer 405.
	if s.staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir))).Methods("GET", "HEAD")
	}
	return r
}

// Start listens on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	sess, err := s.newSession(r.Context(), uuid.New().String(), conn)
	if err != nil {
		s.logger.Error("failed to create session", "error", err)
		return
	}
	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()
	defer sess.close()

	sess.logger.Debug("client connected", "remote", r.RemoteAddr)
	sess.readLoop()
	sess.logger.Debug("client disconnected")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
