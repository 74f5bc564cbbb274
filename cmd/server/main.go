package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"immimate/internal/audit"
	clbhandler "immimate/internal/clb/handler"
	clbmetrics "immimate/internal/clb/metrics"
	clbservice "immimate/internal/clb/service"
	"immimate/internal/clb/source"
	drafthandler "immimate/internal/draft/handler"
	draftservice "immimate/internal/draft/service"
	draftstore "immimate/internal/draft/store"
	jwttoken "immimate/internal/jwt_token"
	"immimate/internal/platform/config"
	"immimate/internal/platform/httpserver"
	"immimate/internal/platform/logger"
	"immimate/internal/platform/metrics"
	"immimate/internal/platform/postgres"
	"immimate/internal/platform/redis"
	profilehandler "immimate/internal/profile/handler"
	profileservice "immimate/internal/profile/service"
	profilestore "immimate/internal/profile/store"
	"immimate/pkg/platform/tx"
)

// main wires dependencies and runs the HTTP server until SIGINT or SIGTERM.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
	}
	redisClient, err := redis.Open(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tables, err := tableSource(cfg.Tables, db, log)
	if err != nil {
		return err
	}
	conversions := clbservice.New(tables, log,
		clbservice.WithMetrics(clbmetrics.New(reg)),
		clbservice.WithCacheEnabled(cfg.Tables.CacheTTL > 0),
	)

	drafts, err := draftStore(cfg.Drafts, db, redisClient)
	if err != nil {
		return err
	}

	auditStore, closeAudit, err := auditSink(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closeAudit()
	publisher := audit.NewPublisher(auditStore,
		audit.WithMetrics(audit.NewMetrics(reg)),
		audit.WithLogger(log),
	)

	draftSvc := draftservice.New(drafts, log, draftservice.WithAuditPublisher(publisher))
	var profileStore profileservice.Store = profilestore.NewInMemoryStore()
	profileOpts := []profileservice.Option{
		profileservice.WithDraftCleaner(draftSvc),
		profileservice.WithAuditPublisher(publisher),
	}
	if db != nil {
		profileStore = profilestore.NewPostgres(db)
		if cfg.Drafts.Store == "postgres" {
			profileOpts = append(profileOpts, profileservice.WithTransactor(tx.NewRunner(db)))
		}
	}
	profileSvc := profileservice.New(profileStore, conversions, log, profileOpts...)

	health := map[string]HealthCheck{}
	if db != nil {
		health["postgres"] = db.PingContext
	}
	if redisClient != nil {
		health["redis"] = redis.Check(redisClient)
	}

	router := newRouter(routerDeps{
		logger:      log,
		validator:   jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)),
		corsOrigins: cfg.CORSOrigins,
		metrics:     metrics.New(reg),
		gatherer:    reg,
		health:      health,
		conversions: clbhandler.New(conversions, log),
		drafts:      drafthandler.New(draftSvc, log),
		profiles:    profilehandler.New(profileSvc, log),
	})
	srv := httpserver.New(cfg.Addr, router, cfg.HTTP, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := publisher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("audit publisher: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting immimate", "addr", cfg.Addr, "table_source", cfg.Tables.Source, "draft_store", cfg.Drafts.Store)
		return srv.Run(gctx)
	})
	return g.Wait()
}

func tableSource(cfg config.TablesConfig, db *sql.DB, log *slog.Logger) (source.Source, error) {
	var src source.Source
	switch cfg.Source {
	case "", "embedded":
		src = source.Embedded{}
	case "postgres":
		if db == nil {
			return nil, errors.New("CLB_TABLE_SOURCE=postgres requires DATABASE_URL")
		}
		src = source.NewPostgres(db)
	default:
		return nil, fmt.Errorf("unknown CLB_TABLE_SOURCE %q", cfg.Source)
	}
	if cfg.CacheTTL <= 0 {
		return src, nil
	}
	return source.NewCached(src, cfg.CacheTTL, source.WithLogger(log)), nil
}

func draftStore(cfg config.DraftsConfig, db *sql.DB, rc *goredis.Client) (draftservice.Store, error) {
	switch cfg.Store {
	case "", "memory":
		return draftstore.NewInMemoryStore(), nil
	case "postgres":
		if db == nil {
			return nil, errors.New("DRAFT_STORE=postgres requires DATABASE_URL")
		}
		return draftstore.NewPostgres(db), nil
	case "redis":
		if rc == nil {
			return nil, errors.New("DRAFT_STORE=redis requires REDIS_URL")
		}
		return draftstore.NewRedis(rc, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown DRAFT_STORE %q", cfg.Store)
	}
}

func auditSink(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (audit.Store, func(), error) {
	if len(cfg.Brokers) == 0 {
		log.Info("no kafka brokers configured, lifecycle events stay in memory")
		return audit.NewInMemoryStore(), func() {}, nil
	}
	store, err := audit.NewKafkaStore(ctx, cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}
