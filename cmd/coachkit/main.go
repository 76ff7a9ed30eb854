package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/wodworks/coachkit/modules/coach"
	"github.com/wodworks/coachkit/pkg/config"
	"github.com/wodworks/coachkit/pkg/credits"
	"github.com/wodworks/coachkit/pkg/entitlement"
	"github.com/wodworks/coachkit/pkg/httpserver"
	"github.com/wodworks/coachkit/pkg/ledger"
	"github.com/wodworks/coachkit/pkg/logger"
	"github.com/wodworks/coachkit/pkg/pg"
	"github.com/wodworks/coachkit/pkg/plans"
	"github.com/wodworks/coachkit/pkg/redis"
	"github.com/wodworks/coachkit/pkg/subscription"
	"github.com/wodworks/coachkit/pkg/trial"
	"github.com/wodworks/coachkit/pkg/usage"
	coachsvc "github.com/wodworks/coachkit/svc/coach"
)

type appConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development"`

	// PlansPath points at a YAML plan catalog. Empty uses the built-in tiers.
	PlansPath string `env:"PLANS_PATH"`

	// UsageCacheEnabled turns on the Redis usage-count cache for the
	// advisory entitlement check.
	UsageCacheEnabled bool `env:"USAGE_CACHE_ENABLED" envDefault:"false"`

	// BillingEnabled wires the Paddle provider; requires PADDLE_* vars.
	BillingEnabled bool `env:"BILLING_ENABLED" envDefault:"false"`
}

func main() {
	ctx := context.Background()

	var appCfg appConfig
	config.MustLoad(&appCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Environment, "coachkit"))
	logger.SetAsDefault(log)

	if err := run(ctx, appCfg, log); err != nil {
		log.Error("fatal", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, appCfg appConfig, log *slog.Logger) error {
	var pgCfg pg.Config
	config.MustLoad(&pgCfg)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	store := ledger.NewPGStore(pool)
	engine := credits.NewEngine(store, credits.WithLogger(log))

	catalog, err := loadCatalog(ctx, appCfg.PlansPath)
	if err != nil {
		return err
	}

	trials := trial.NewManager(trial.NewPGStore(pool), catalog)

	subOpts := []subscription.ServiceOption{
		subscription.WithCreditGranter(engine),
		subscription.WithTrialManager(trials),
		subscription.WithLogger(log),
	}
	if appCfg.BillingEnabled {
		var paddleCfg subscription.PaddleConfig
		config.MustLoad(&paddleCfg)
		provider, err := subscription.NewPaddleProvider(paddleCfg)
		if err != nil {
			return err
		}
		subOpts = append(subOpts, subscription.WithProvider(provider))
	}
	subs := subscription.NewService(catalog, subscription.NewPGStore(pool), subOpts...)

	recorder, stopRecorder := usage.NewRecorder(store, log, usage.Options{})
	defer func() {
		if err := stopRecorder(ctx); err != nil {
			log.Warn("usage recorder drain failed", logger.Error(err))
		}
	}()

	readiness := []func(context.Context) error{pg.Healthcheck(pool)}

	var resolverOpts []entitlement.Option
	if appCfg.UsageCacheEnabled {
		var redisCfg redis.Config
		config.MustLoad(&redisCfg)
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()
		resolverOpts = append(resolverOpts, entitlement.WithUsageCache(entitlement.NewRedisCache(client, 0)))
		readiness = append(readiness, redis.Healthcheck(client))
	}

	resolver := entitlement.NewResolver(catalog, subs, trials, store, engine, resolverOpts...)

	var genCfg coachsvc.GeneratorConfig
	config.MustLoad(&genCfg)

	var coachCfg coachsvc.Config
	config.MustLoad(&coachCfg)

	svc := coachsvc.NewService(resolver, engine, coachsvc.NewHTTPGenerator(genCfg), recorder, log, coachCfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log))
	r.Get("/readyz", httpserver.HealthCheckHandler(ctx, log, readiness...))

	routerOpts := coach.RouterOptions{
		Coach:   svc,
		Credits: engine,
		Trials:  trials,
	}
	if appCfg.BillingEnabled {
		routerOpts.Subscription = subs
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(gatewayUser)
		v1.Mount("/", coach.Router(routerOpts))
	})

	// Back-office endpoints; the ingress must keep /internal off the
	// public hostname.
	r.Mount("/internal", coach.AdminRouter(engine))

	var httpCfg httpserver.Config
	config.MustLoad(&httpCfg)

	srv := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func(l *slog.Logger) {
			l.Info("listening", slog.String("addr", httpCfg.Addr))
		}),
		httpserver.WithStopHook(func(l *slog.Logger) {
			l.Info("http server stopped")
		}),
	)
	return srv.Run(ctx, r)
}

func loadCatalog(ctx context.Context, path string) (*plans.Catalog, error) {
	src := plans.NewInMemSource(plans.DefaultSeed())
	if path != "" {
		src = plans.NewFileSource(path)
	}
	return plans.NewCatalog(ctx, src)
}

// gatewayUser trusts the authenticated user id injected by the API gateway.
func gatewayUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get("X-User-ID"))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(coach.WithUserID(r.Context(), id)))
	})
}
