// Package server is the HTTP front door: it accepts trading messages,
// acknowledges them straight away and runs them in the background.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"instabot-trader/internal/models"
	"instabot-trader/internal/resilience"
)

// maxBody bounds the size of a posted message.
const maxBody = 64 << 10

// Executor runs one message to completion.
type Executor interface {
	ExecuteMessage(ctx context.Context, msg string) error
}

// EventSource streams placed orders.
type EventSource interface {
	Subscribe(ctx context.Context, exchange string) (<-chan models.OrderRecord, error)
}

// Config configures the server.
type Config struct {
	Addr string
	// Path accepts POSTed messages.
	Path           string
	AllowedOrigins []string
	// Events, when set, is served as a server-sent event stream on /events.
	Events EventSource
	// ShutdownTimeout bounds how long in-flight requests get on shutdown.
	ShutdownTimeout time.Duration
}

// Server accepts messages over HTTP.
type Server struct {
	cfg    Config
	exec   Executor
	health *resilience.HealthMonitor
	logger zerolog.Logger

	mu      sync.Mutex
	workCtx context.Context

	inflight sync.WaitGroup
}

// New creates a server handing messages to exec. health may be nil.
func New(cfg Config, exec Executor, health *resilience.HealthMonitor, logger zerolog.Logger) *Server {
	if cfg.Path == "" {
		cfg.Path = "/trade"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		cfg:     cfg,
		exec:    exec,
		health:  health,
		logger:  logger.With().Str("component", "server").Logger(),
		workCtx: context.Background(),
	}
}

// Handler returns the routes: the message path and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleMessage)
	if s.health != nil {
		mux.Handle("/health", s.health.HealthHTTPHandler())
	}
	if s.cfg.Events != nil {
		mux.HandleFunc("/events", s.handleEvents)
	}

	if len(s.cfg.AllowedOrigins) == 0 {
		return mux
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(mux)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	s.logger.Info().Str("remote", r.RemoteAddr).Msg("HTTP POST request received")

	msg, err := messageFrom(w, r)
	if err != nil {
		s.logger.Error().Err(err).Msg("Could not read request")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if msg == "" {
		s.logger.Error().Msg("Request did not include a message. POST messages in a field called subject, Body or message")
		http.Error(w, "missing message: POST it in a field called subject, Body or message", http.StatusBadRequest)
		return
	}

	s.dispatch(msg)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, msg)
}

// messageFrom reads the message from a form, a JSON object or a plain
// text body.
func messageFrom(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "text/plain":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", fmt.Errorf("reading body: %w", err)
		}
		return strings.TrimSpace(string(body)), nil

	case "application/json":
		var payload struct {
			Subject string `json:"subject"`
			Body    string `json:"Body"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("decoding body: %w", err)
		}
		return firstNonEmpty(payload.Subject, payload.Body, payload.Message), nil

	default:
		if err := r.ParseForm(); err != nil {
			return "", fmt.Errorf("parsing form: %w", err)
		}
		return firstNonEmpty(r.PostFormValue("subject"), r.PostFormValue("Body"), r.PostFormValue("message")), nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// handleEvents streams every order placed while the client is connected.
// ?exchange= limits the stream to one exchange.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	workCtx := s.workCtx
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(workCtx, cancel)
	defer stop()

	events, err := s.cfg.Events.Subscribe(ctx, r.URL.Query().Get("exchange"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-events:
			if !ok {
				return
			}
			if err := writeOrderFrame(w, rec); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to write order event")
				return
			}
			flusher.Flush()
		}
	}
}

func writeOrderFrame(w io.Writer, rec models.OrderRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: order\ndata: %s\n\n", data)
	return err
}

// dispatch runs msg on its own goroutine under the server's work context.
func (s *Server) dispatch(msg string) {
	s.mu.Lock()
	ctx := s.workCtx
	s.mu.Unlock()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.exec.ExecuteMessage(ctx, msg); err != nil {
			s.logger.Warn().Err(err).Msg("Message finished with errors")
		}
	}()
}

// Wait blocks until every dispatched message has finished.
func (s *Server) Wait() {
	s.inflight.Wait()
}

// ListenAndServe listens on the configured address and serves until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts requests on ln until ctx is cancelled. Messages run under
// ctx, so cancelling it also stops running algorithmic orders; Serve
// returns once they have all wound down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.workCtx = ctx
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Str("path", s.cfg.Path).Msg("Server is listening for commands")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info().Msg("Shutdown requested")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Warn().Err(err).Msg("Server shutdown error")
	}

	s.inflight.Wait()
	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}
