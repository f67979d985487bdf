package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/auth"
	"github.com/gokatarajesh/pairwise/internal/choice"
	"github.com/gokatarajesh/pairwise/internal/config"
	"github.com/gokatarajesh/pairwise/internal/logging"
	"github.com/gokatarajesh/pairwise/internal/prompt"
)

// WSUpgrader handles WebSocket upgrades for the question stats feed.
var WSUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the configured frontend origins once they are in config.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handlers groups the route handlers mounted on the API server. Nil members
// leave their routes unregistered.
type Handlers struct {
	Auth         *auth.HTTPHandlers
	Choices      *choice.HTTPHandler
	Ranking      http.HandlerFunc
	PromptQueue  *prompt.HTTPHandler
	QuestionFeed http.HandlerFunc
}

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

// NewHTTPServer wires the API routes for the pairwise service.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, pool *pgxpool.Pool, redis *redis.Client, tokens auth.TokenValidator, h Handlers) *http.Server {
	ping := func(ctx context.Context) error {
		return pingDependencies(ctx, pool, redis)
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewHandler(logger, ping, tokens, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewHandler builds the routed handler with request logging and visitor
// authentication applied to every route.
func NewHandler(logger zerolog.Logger, ping Pinger, tokens auth.TokenValidator, h Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/ping", func(w http.ResponseWriter, r *http.Request) {
		if ping == nil {
			http.Error(w, "no dependencies configured", http.StatusServiceUnavailable)
			return
		}
		if err := ping(r.Context()); err != nil {
			l := logging.FromContext(r.Context())
			l.Error().Err(err).Msg("dependency ping failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	if h.Auth != nil {
		mux.HandleFunc("POST /v1/visitors", h.Auth.CreateVisitor)
	}

	if c := h.Choices; c != nil {
		mux.Handle("POST /v1/questions/{id}/choices", auth.RequireVisitor(http.HandlerFunc(c.Create)))
		mux.HandleFunc("POST /v1/questions/{id}/choices/finalize", c.FinalizeBatch)
		mux.HandleFunc("POST /v1/choices/{id}/activate", c.Activate)
		mux.HandleFunc("POST /v1/choices/{id}/deactivate", c.Deactivate)
		mux.HandleFunc("PUT /v1/choices/{id}/question", c.Reassign)
		mux.HandleFunc("POST /v1/choices/{id}/prompts", c.GeneratePrompts)
		mux.HandleFunc("POST /v1/choices/{id}/score", c.Score)
		mux.HandleFunc("POST /v1/choices/{id}/aggregate-score", c.AggregateScore)
	}

	if h.Ranking != nil {
		mux.HandleFunc("GET /v1/questions/{id}/ranking", h.Ranking)
	}

	if pq := h.PromptQueue; pq != nil {
		mux.HandleFunc("GET /v1/questions/{id}/prompt-queue", pq.Status)
		mux.HandleFunc("POST /v1/questions/{id}/prompt-queue/next", pq.Next)
	}

	if h.QuestionFeed != nil {
		mux.HandleFunc("GET /ws/questions/{id}", h.QuestionFeed)
	} else {
		mux.HandleFunc("GET /ws/questions/{id}", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "question feed not enabled", http.StatusNotImplemented)
		})
	}

	var handler http.Handler = mux
	if tokens != nil {
		handler = auth.Middleware(tokens, logger)(handler)
	}
	return requestLogger(logger, handler)
}

// requestLogger attaches a request-scoped logger and logs completion. It
// does not wrap the ResponseWriter so WebSocket hijacking keeps working.
func requestLogger(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLogger := logger.With().
			Str("request_id", uuid.NewString()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		next.ServeHTTP(w, r.WithContext(logging.IntoContext(r.Context(), reqLogger)))

		reqLogger.Debug().Dur("duration", time.Since(start)).Msg("request handled")
	})
}

func pingDependencies(ctx context.Context, pool *pgxpool.Pool, redis *redis.Client) error {
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	if err := redis.Ping(ctx).Err(); err != nil {
		return err
	}
	return nil
}
