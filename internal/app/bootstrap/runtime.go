package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"gorm.io/gorm"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/adapters/analysis"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/adapters/cache"
	eventadapter "github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/adapters/events"
	grpcadapter "github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/adapters/grpc"
	httpadapter "github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/adapters/http"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/adapters/metrics"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/application"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	health     *grpcadapter.HealthServer
	consumers  []*eventadapter.ConsumerWorker
	pruner     *eventadapter.InboxPruneWorker
	cleanupFn  func(context.Context)
}

// NewRuntime wires every adapter for the configured role. A non-empty role
// overrides both the config file and SERVICE_ROLE.
func NewRuntime(ctx context.Context, configPath, role string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath, role)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	var closers []io.Closer
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}

	var db *gorm.DB
	var repos postgres.Repositories
	if cfg.DatabaseURL != "" {
		db, err = postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
		if err != nil {
			return nil, err
		}
		closers = append(closers, closerFunc(func() error { return postgres.Close(db) }))
		if err := postgres.RunMigrations(ctx, db); err != nil {
			cleanup()
			return nil, err
		}
		repos = postgres.NewRepositories(db)
	}

	var redisClient *redis.Client
	var replies ports.ReplyChannels
	if cfg.RedisURL != "" {
		redisClient, err = cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, err
		}
		closers = append(closers, redisClient)
		replies = cache.NewRedisReplyChannels(redisClient, logger)
	} else {
		logger.WarnContext(ctx, "redis not configured, reply channels are process-local",
			"module", "bootstrap", "layer", "bootstrap", "operation", "wire_replies", "outcome", "fallback")
		replies = cache.NewMemoryReplyChannels()
	}

	var publisher ports.BusPublisher
	var memoryBus *eventadapter.MemoryBus
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, pubErr := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers)
		if pubErr != nil {
			cleanup()
			return nil, pubErr
		}
		closers = append(closers, kafkaPublisher)
		publisher = kafkaPublisher
	} else {
		logger.WarnContext(ctx, "kafka not configured, using in-memory bus",
			"module", "bootstrap", "layer", "bootstrap", "operation", "wire_bus", "outcome", "fallback")
		memoryBus = eventadapter.NewMemoryBus()
		publisher = memoryBus
	}
	publisher = eventadapter.NewLoggingPublisher(publisher, logger)

	promMetrics := metrics.NewPrometheus("case_resolver")
	deps := application.Dependencies{
		Config: application.Config{
			ServiceName:       cfg.ServiceID,
			Role:              cfg.Role,
			RequestsTopic:     cfg.RequestsTopic,
			ResponsesTopic:    cfg.ResponsesTopic,
			ReplyTimeout:      cfg.ReplyTimeout,
			DispatchTimeout:   cfg.DispatchTimeout,
			WorkerTimeout:     cfg.WorkerTimeout,
			EntityIdleTimeout: cfg.EntityIdleTimeout,
			InboxDedupTTL:     cfg.InboxDedupTTL,
		},
		Publisher:     publisher,
		ReplyChannels: replies,
		Analyzer:      analysis.NewSimulatedLogAnalyzer(cfg.WorkerMinLatency, cfg.WorkerMaxLatency),
		Probe:         analysis.NewStaticDeploymentProbe(cfg.HealthyServices, cfg.FailedServices),
		Metrics:       promMetrics,
		Logger:        logger,
	}
	if db != nil {
		deps.EventLog = repos.Events
		deps.Inbox = repos.Inbox
	}
	service, err := application.NewService(deps)
	if err != nil {
		cleanup()
		return nil, err
	}

	var consumers []*eventadapter.ConsumerWorker
	for _, sub := range subscriptions(cfg) {
		var consumer ports.BusConsumer
		if memoryBus != nil {
			consumer = memoryBus.Consumer(sub.group, sub.topics)
		} else {
			kafkaConsumer, conErr := eventadapter.NewKafkaConsumer(cfg.KafkaBrokers, sub.group, sub.topics)
			if conErr != nil {
				service.Close()
				cleanup()
				return nil, conErr
			}
			closers = append(closers, kafkaConsumer)
			consumer = kafkaConsumer
		}
		consumers = append(consumers, eventadapter.NewConsumerWorker(logger, consumer, service, cfg.ConsumerPollInterval, cfg.ConsumerBatchSize))
	}

	var pruner *eventadapter.InboxPruneWorker
	if db != nil {
		pruner = eventadapter.NewInboxPruneWorker(logger, repos.Inbox, cfg.InboxPruneInterval, 500)
	}

	ready := readiness(db, redisClient)
	routerOpts := httpadapter.RouterOptions{
		Metrics: promMetrics.Handler(),
		Ready:   ready,
	}
	if cfg.Role.Resolves() {
		routerOpts.Cases = httpadapter.NewHandler(service)
		routerOpts.Limiter = httpadapter.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(routerOpts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := grpcadapter.NewHealthServer(cfg.ServiceID, ready, 5*time.Second, logger)
	healthSrv.Register(grpcServer)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		service.Close()
		cleanup()
		return nil, err
	}

	logger.InfoContext(ctx, "runtime wired",
		"module", "bootstrap",
		"layer", "bootstrap",
		"operation", "wire",
		"outcome", "success",
		"role", string(cfg.Role),
		"topics", strings.Join(service.Topics(), ","),
		"durable_log", db != nil,
	)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		health:     healthSrv,
		consumers:  consumers,
		pruner:     pruner,
		cleanupFn: func(context.Context) {
			service.Close()
			cleanup()
		},
	}, nil
}

type subscription struct {
	group  string
	topics []string
}

// subscriptions gives each role its own consumer group so a standalone
// process behaves like one resolver plus one responder.
func subscriptions(cfg Config) []subscription {
	var out []subscription
	if cfg.Role.Resolves() {
		out = append(out, subscription{group: cfg.ResolverGroup, topics: []string{cfg.ResponsesTopic}})
	}
	if cfg.Role.Responds() {
		out = append(out, subscription{group: cfg.ResponderGroup, topics: []string{cfg.RequestsTopic}})
	}
	return out
}

func readiness(db *gorm.DB, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if db != nil {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}

func newLogger(cfg Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", cfg.ServiceID, "role", string(cfg.Role))
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Run serves HTTP and gRPC and drives the bus consumers until ctx is done
// or a component fails, then shuts everything down.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.InfoContext(ctx, "runtime started",
		"module", "bootstrap",
		"layer", "bootstrap",
		"operation", "run",
		"outcome", "started",
		"http_port", r.cfg.HTTPPort,
		"grpc_port", r.cfg.GRPCPort,
		"consumers", len(r.consumers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.grpcServer.Serve(r.grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return ignoreCanceled(r.health.Run(gctx)) })
	for _, consumer := range r.consumers {
		g.Go(func() error { return ignoreCanceled(consumer.Run(gctx)) })
	}
	if r.pruner != nil {
		g.Go(func() error { return ignoreCanceled(r.pruner.Run(gctx)) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = r.httpServer.Shutdown(shutdownCtx)
		r.grpcServer.GracefulStop()
		return nil
	})

	err := g.Wait()
	if err != nil {
		r.logger.ErrorContext(ctx, "runtime failure",
			"module", "bootstrap", "layer", "bootstrap", "operation", "run", "outcome", "failure", "error", err)
	}
	r.cleanupFn(context.Background())
	return err
}

func ignoreCanceled(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
