// Package rpc exposes the hub over HTTP: read-only queries for every module,
// a JWT guarded transaction endpoint and a websocket event stream.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"whalehub/app"
	"whalehub/services/indexer"
)

const shutdownTimeout = 10 * time.Second

// Config tunes the HTTP surface.
type Config struct {
	Auth               AuthConfig
	RateLimitPerSecond float64
	RateLimitBurst     int
	ReadHeaderTimeout  time.Duration
	AllowedOrigins     []string
}

// EventIndex answers historical event queries.
type EventIndex interface {
	Events(ctx context.Context, f indexer.Filter) ([]indexer.Record, error)
}

// Server serves the hub API.
type Server struct {
	app     *app.App
	cfg     Config
	logger  *slog.Logger
	auth    *Authenticator
	limiter *RateLimiter
	hub     *EventHub
	index   EventIndex
}

// NewServer wires the API around hub. The returned server subscribes its
// event stream to committed events.
func NewServer(hub *app.App, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	s := &Server{
		app:     hub,
		cfg:     cfg,
		logger:  logger,
		auth:    NewAuthenticator(cfg.Auth, logger),
		limiter: NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		hub:     NewEventHub(logger),
	}
	hub.Subscribe(s.hub)
	return s
}

// SetIndex enables the historical event route.
func (s *Server) SetIndex(index EventIndex) { s.index = index }

// Events returns the hub feeding the websocket stream.
func (s *Server) Events() *EventHub { return s.hub }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// The stream hijacks the connection and stays outside the recorder.
		r.Get("/events/ws", s.handleEventStream)

		r.Group(func(r chi.Router) {
			r.Use(observe(s.logger))
			r.Use(s.limiter.Middleware("v1"))

			r.Get("/status", s.handleStatus)
			r.Get("/msg-types", s.handleMsgTypes)
			r.With(s.auth.Middleware).Post("/tx", s.handleTx)

			r.Route("/epochs", func(r chi.Router) {
				r.Get("/current", s.handleCurrentEpoch)
				r.Get("/config", s.handleEpochConfig)
				r.Get("/hooks", s.handleHooks)
				r.Get("/{id}", s.handleEpoch)
			})

			r.Route("/bonding", func(r chi.Router) {
				r.Get("/config", s.handleBondingConfig)
				r.Get("/bonded", s.handleBonded)
				r.Get("/unbonding/{addr}", s.handleUnbonding)
				r.Get("/withdrawable/{addr}", s.handleWithdrawable)
				r.Get("/weight/{addr}", s.handleBondingWeight)
				r.Get("/global-index", s.handleGlobalIndex)
				r.Get("/claimable", s.handleClaimable)
				r.Get("/rewards/{addr}", s.handleBondingRewards)
				r.Get("/buckets/{id}", s.handleRewardBucket)
			})

			r.Route("/incentives", func(r chi.Router) {
				r.Get("/", s.handleIncentives)
				r.Get("/config", s.handleIncentiveConfig)
				r.Get("/lp-weight", s.handleLPWeight)
				r.Get("/{identifier}", s.handleIncentive)
			})

			r.Route("/positions", func(r chi.Router) {
				r.Get("/by-id/{identifier}", s.handlePosition)
				r.Get("/{addr}", s.handlePositions)
				r.Get("/{addr}/weight", s.handlePositionWeight)
			})

			r.Get("/rewards/{addr}", s.handleRewards)
			r.Get("/balances/{addr}", s.handleBalances)
			r.Get("/dispatches", s.handleDispatches)
			r.Get("/dispatches/{id}", s.handleDispatch)
			r.Get("/indexer/events", s.handleIndexedEvents)
		})
	})
	return r
}

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
