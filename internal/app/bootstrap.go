package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/config"
	"expense-tracker/internal/db"
	"expense-tracker/internal/expense"
	"expense-tracker/internal/observability"
)

type Options struct {
	LoadDotEnv bool
	// RunMigrations is the default when RUN_MIGRATIONS_ON_STARTUP is unset.
	RunMigrations bool
}

type Runtime struct {
	Config  *config.Config
	Logger  *observability.Logger
	Handler http.Handler
	Close   func() error
}

// Build loads configuration, connects to Postgres and wires every handler.
// Configuration errors are returned before any connection is opened.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(options.RunMigrations)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.LogFormat)
	if cfg.UsingDevSecret {
		logger.Warn("dev_signing_secret_in_use", map[string]any{"env": cfg.Env})
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Env); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
	if err != nil {
		return nil, err
	}

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	hasher, err := auth.NewBcryptHasher(cfg.BcryptCost, cfg.HashWorkers)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	tokens := auth.NewTokenManager(cfg)
	service := auth.NewService(auth.NewRepository(pool), hasher, tokens, cfg, logger)

	handler := NewRouter(Dependencies{
		Config:   cfg,
		Logger:   logger,
		Auth:     auth.NewHandler(service),
		Guard:    auth.NewGuard(tokens, logger),
		Expenses: expense.NewHandler(expense.NewRepository(pool)),
		Health:   pool,
	})

	logger.Info("app_ready", map[string]any{
		"env":            cfg.Env,
		"token_lifetime": cfg.TokenLifetime.String(),
		"migrations":     cfg.RunMigrations,
	})

	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			pool.Close()
			return nil
		},
	}, nil
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Config   *config.Config
	Logger   *observability.Logger
	Auth     *auth.Handler
	Guard    *auth.Guard
	Expenses *expense.Handler
	Health   Pinger
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(observability.RealIPMiddleware(deps.Config.TrustedProxies))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.Config.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Retry-After", "WWW-Authenticate"},
		MaxAge:         300,
	}))
	r.Use(observability.RecoverMiddleware(deps.Logger))
	r.Use(observability.RequestLoggingMiddleware(deps.Logger))

	r.Get("/health", healthHandler(deps.Health))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", deps.Auth.Register)

		login := http.Handler(http.HandlerFunc(deps.Auth.Login))
		if deps.Config.LoginRateLimitMax > 0 {
			login = auth.NewLoginRateLimiter(deps.Config.LoginRateLimitMax, deps.Config.LoginRateLimitWindow).Middleware(login)
		}
		r.Method(http.MethodPost, "/login", login)

		r.Group(func(r chi.Router) {
			r.Use(deps.Guard.RequireAuth)
			r.Get("/me", deps.Auth.Me)
			r.Post("/logout", deps.Auth.Logout)
		})
	})

	r.With(deps.Guard.RequireAuth).Mount("/expenses", deps.Expenses.Routes())

	return r
}

func healthHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := pinger.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
