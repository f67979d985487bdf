package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"pairwise"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres    Postgres
	Redis       Redis
	Security    Security
	Tasks       Tasks
	PromptQueue PromptQueue
	Feed        Feed
	Scoring     Scoring
	Ranking     Ranking
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host      string        `env:"PG_HOST,notEmpty"`
	Port      int           `env:"PG_PORT" envDefault:"5432"`
	User      string        `env:"PG_USER,notEmpty"`
	Password  string        `env:"PG_PASSWORD,notEmpty"`
	Database  string        `env:"PG_DATABASE,notEmpty"`
	SSLMode   string        `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns  int           `env:"PG_MAX_CONNS" envDefault:"10"`
	TxRetries int           `env:"PG_TX_RETRIES" envDefault:"3"`
	TxBackoff time.Duration `env:"PG_TX_BACKOFF" envDefault:"20ms"`
}

// DSN renders the pgx connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode, p.MaxConns)
}

// Redis holds task queue, prompt queue and pub/sub configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Security stores secrets for signing and auth.
type Security struct {
	JWTSecret string        `env:"JWT_SECRET,notEmpty"`
	TokenTTL  time.Duration `env:"JWT_TTL" envDefault:"24h"`
}

// Tasks tunes the deferred task queue and its workers.
type Tasks struct {
	KeyPrefix      string        `env:"TASKS_KEY_PREFIX" envDefault:"tasks"`
	Concurrency    int           `env:"TASKS_CONCURRENCY" envDefault:"4"`
	MaxAttempts    int           `env:"TASKS_MAX_ATTEMPTS" envDefault:"5"`
	BaseBackoff    time.Duration `env:"TASKS_BASE_BACKOFF" envDefault:"200ms"`
	DequeueTimeout time.Duration `env:"TASKS_DEQUEUE_TIMEOUT" envDefault:"2s"`
	TaskTimeout    time.Duration `env:"TASKS_TIMEOUT" envDefault:"30s"`
	LedgerTTL      time.Duration `env:"TASKS_LEDGER_TTL" envDefault:"168h"`
}

// PromptQueue governs the per-question catchup prompt lists.
type PromptQueue struct {
	KeyPrefix string        `env:"PROMPT_QUEUE_KEY_PREFIX" envDefault:"prompt_queue"`
	TTL       time.Duration `env:"PROMPT_QUEUE_TTL" envDefault:"24h"`
}

// Feed configures the live question stats channel.
type Feed struct {
	Channel string `env:"FEED_CHANNEL" envDefault:"pairwise:question_stats"`
}

// Scoring points at the statistics service that models Bradley–Terry
// probabilities. Aggregate scores are disabled when the URL is empty.
type Scoring struct {
	ProbabilitiesURL string        `env:"SCORING_PROBABILITIES_URL" envDefault:""`
	ProbabilitiesKey string        `env:"SCORING_PROBABILITIES_API_KEY" envDefault:""`
	HTTPTimeout      time.Duration `env:"SCORING_HTTP_TIMEOUT" envDefault:"5s"`
	CacheTTL         time.Duration `env:"SCORING_CACHE_TTL" envDefault:"1m"`
}

// Ranking governs the cached per-question choice rankings.
type Ranking struct {
	KeyPrefix string        `env:"RANKING_KEY_PREFIX" envDefault:"ranking"`
	TopN      int           `env:"RANKING_TOP_N" envDefault:"50"`
	TTL       time.Duration `env:"RANKING_TTL" envDefault:"10m"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
