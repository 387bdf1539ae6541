package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/cart"
	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/events"
	"github.com/noah-isme/toko-pricing/internal/health"
	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/ratelimit"
	"github.com/noah-isme/toko-pricing/internal/resilience"
	"github.com/noah-isme/toko-pricing/internal/store"
)

func main() {
	cartPath := flag.String("cart", "-", "path of the cart request JSON, - for stdin")
	checkout := flag.Bool("checkout", false, "check the cart out and consume its rules")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address until interrupted")
	flag.Parse()

	cfg := config.MustLoad()
	// stdout carries the quote, logs go to stderr.
	logger := obs.NewLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.EnableTracing {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   obs.ServiceName,
			Endpoint:      cfg.OTLPEndpoint,
			SamplingRatio: cfg.TraceSampleRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrateOnStart {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migrate database")
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = obs.ServiceName

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(connectCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	transitions, err := resilience.NewTransitionCounter(cfg.MetricsNamespace, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal().Err(err).Msg("register breaker metrics")
	}
	products := catalog.NewProtected(store.Products{DB: pool}, &resilience.Breaker{
		Target:      "products",
		MinRequests: 5,
		OpenFor:     30 * time.Second,
		Logger:      logger,
		Transitions: transitions,
	})

	svc := &cart.Service{
		Products: catalog.Cached{
			Next:   products,
			Cache:  catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
			Logger: logger,
		},
		Rules:    store.Rules{DB: pool},
		Locker:   lock.Redis{R: redisClient, TTL: cfg.CartLockTTL, Prefix: "pricer:lock:"},
		Currency: cfg.Currency(),
		Logger:   logger,
		Metrics:  obs.NewPricingMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer),
		Events: &events.Bus{
			Store:     store.Events{DB: pool},
			Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
		},
	}
	guard, err := ratelimit.NewRedisGuard(redisClient, ratelimit.Options{
		Prefix: "pricer:attempts",
		Rate:   cfg.RuleAttemptRate,
		Window: cfg.RuleAttemptWindow,
		Max:    cfg.RuleAttemptMax,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rule attempt limiter")
	}
	if guard != nil {
		svc.Attempts = guard
	}

	req, err := readRequest(*cartPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("read cart request")
	}
	if *checkout {
		req.Checkout = true
	}

	quote, err := svc.Run(ctx, req)
	if err != nil {
		logger.Fatal().Err(err).Str("customer", req.Customer).Msg("price cart")
	}
	if err := cart.WriteQuote(os.Stdout, quote); err != nil {
		logger.Fatal().Err(err).Msg("write quote")
	}

	if *metricsAddr != "" {
		probes := health.Handler{Probes: map[string]health.Probe{
			"db":    pool.Ping,
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}}
		serveMetrics(ctx, *metricsAddr, probes, logger)
	}
}

func readRequest(path string) (cart.Request, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return cart.Request{}, err
		}
		defer f.Close()
		r = f
	}
	return cart.DecodeRequest(r)
}

func serveMetrics(ctx context.Context, addr string, probes health.Handler, logger zerolog.Logger) {
	srv := &http.Server{Addr: addr, Handler: probes.Router(promhttp.Handler()), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server")
	}
}
