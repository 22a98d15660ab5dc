package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"moneymarket/core"
	"moneymarket/crypto"
	"moneymarket/integrations/eventlog"
	"moneymarket/native/lending"
	"moneymarket/observability"
)

const (
	requestIDHeader   = "X-Request-ID"
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type ctxKey int

const requestIDKey ctxKey = iota

// Backend is the node surface the API reads from.
type Backend interface {
	WithLending(fn func(*lending.Proxy) error) error
	Votes(account crypto.Address) (*core.VoteSummary, error)
	PriorVotes(account crypto.Address, block uint64) (*uint256.Int, error)
	Block() (uint64, uint64)
	GovernanceAsset() string
}

// EventSource lists persisted events.
type EventSource interface {
	List(ctx context.Context, f eventlog.Filter) ([]eventlog.Record, error)
}

type Config struct {
	RateLimit   RateLimit
	ServiceName string
	Logger      *slog.Logger
}

// Server exposes protocol state over read-only HTTP endpoints.
type Server struct {
	backend Backend
	events  EventSource
	logger  *slog.Logger
	limiter *RateLimiter
	handler http.Handler
}

func NewServer(backend Backend, events EventSource, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "moneymarket-rpc"
	}
	s := &Server{
		backend: backend,
		events:  events,
		logger:  logger,
		limiter: NewRateLimiter(cfg.RateLimit, logger),
	}
	s.handler = otelhttp.NewHandler(s.routes(), cfg.ServiceName)
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.limiter.Middleware)
		v1.Get("/status", s.handleStatus)
		v1.Get("/params", s.handleParams)
		v1.Get("/markets", s.handleMarkets)
		v1.Get("/markets/{market}", s.handleMarket)
		v1.Get("/accounts/{account}/liquidity", s.handleLiquidity)
		v1.Get("/accounts/{account}/positions", s.handlePositions)
		v1.Get("/accounts/{account}/rewards", s.handleRewards)
		v1.Get("/accounts/{account}/votes", s.handleVotes)
		v1.Get("/accounts/{account}/votes/prior", s.handlePriorVotes)
		v1.Get("/events", s.handleEvents)
	})
	return r
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: readHeaderTimeout}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("rpc shutdown", slog.Any("error", err))
			_ = srv.Close()
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		observability.API().Observe(r.Method+" "+route, rec.status, time.Since(start))
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message, RequestID: requestIDFrom(r)})
}
