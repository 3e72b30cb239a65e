package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/AlexYaroshenko/hades/internal/dispatch"
	"github.com/AlexYaroshenko/hades/internal/metrics"
	"github.com/AlexYaroshenko/hades/internal/telegram"
)

// SecretHeader carries the secret_token given to setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxUpdateBytes = 1 << 20

type Dispatcher interface {
	Dispatch(ctx context.Context, u telegram.Update) (int64, error)
}

type ErrorReporter func(ctx context.Context, u telegram.Update, err error)

// Server serves the health, status and metrics endpoints, plus the webhook
// in webhook mode. It is also a Dispatcher: updates passed through it show
// up in /status whether they came from the webhook or from the poller, and
// are handled one at a time.
type Server struct {
	next       Dispatcher
	dispatchMu sync.Mutex
	secret string
	mode   string
	report ErrorReporter
	log    zerolog.Logger

	state struct {
		mu           sync.RWMutex
		started      time.Time
		lastUpdateID int64
		lastUpdate   time.Time
		handled      int64
		failed       int64
	}
}

type Option func(*Server)

// WithSecret makes the webhook reject requests without the matching secret header.
func WithSecret(secret string) Option { return func(s *Server) { s.secret = secret } }

// WithMode sets the bot mode shown in /status. Only "webhook" mounts the webhook route.
func WithMode(mode string) Option { return func(s *Server) { s.mode = mode } }

func WithErrorReporter(r ErrorReporter) Option { return func(s *Server) { s.report = r } }

func WithLogger(log zerolog.Logger) Option { return func(s *Server) { s.log = log } }

func New(next Dispatcher, opts ...Option) *Server {
	s := &Server{next: next, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.state.started = time.Now()
	return s
}

// Dispatch forwards u and records the outcome.
func (s *Server) Dispatch(ctx context.Context, u telegram.Update) (int64, error) {
	s.dispatchMu.Lock()
	id, err := s.next.Dispatch(ctx, u)
	s.dispatchMu.Unlock()

	s.state.mu.Lock()
	s.state.lastUpdateID = id
	s.state.lastUpdate = time.Now()
	if err != nil {
		s.state.failed++
	} else {
		s.state.handled++
	}
	s.state.mu.Unlock()
	return id, err
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if s.mode == "webhook" {
		r.Post("/telegram/webhook", s.handleWebhook)
	}
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// ListenAndServe blocks until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("starting web server")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.log.Error().Err(err).Msg("server forced to shutdown")
		return err
	}
	return nil
}

// handleWebhook consumes one update. Handler failures still answer 200 so
// Telegram does not redeliver an update the bot cannot process.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	var upd telegram.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&upd); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}

	if _, err := s.Dispatch(r.Context(), upd); err != nil {
		kind := dispatch.Classify(upd)
		metrics.IncDispatchFailure(kind.String())
		s.log.Error().Err(err).Int64("update_id", upd.UpdateID).Str("kind", kind.String()).Msg("webhook dispatch failed")
		if s.report != nil {
			s.report(r.Context(), upd, err)
		}
	}
	w.WriteHeader(http.StatusOK)
}

type statusView struct {
	Status       string `json:"status"`
	Mode         string `json:"mode,omitempty"`
	Uptime       string `json:"uptime"`
	Handled      int64  `json:"handled"`
	Failed       int64  `json:"failed"`
	LastUpdateID int64  `json:"last_update_id,omitempty"`
	LastUpdate   string `json:"last_update,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.state.mu.RLock()
	view := statusView{
		Status:       "ok",
		Mode:         s.mode,
		Uptime:       time.Since(s.state.started).Truncate(time.Second).String(),
		Handled:      s.state.handled,
		Failed:       s.state.failed,
		LastUpdateID: s.state.lastUpdateID,
	}
	if !s.state.lastUpdate.IsZero() {
		view.LastUpdate = s.state.lastUpdate.Format(time.RFC3339)
	}
	s.state.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}
