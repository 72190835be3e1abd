package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aescanero/localdag/internal/application/orchestrator"
	"github.com/aescanero/localdag/internal/application/workers"
	"github.com/aescanero/localdag/internal/config"
	eventsmemory "github.com/aescanero/localdag/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/localdag/pkg/adapters/events/redis"
	"github.com/aescanero/localdag/pkg/adapters/literal"
	"github.com/aescanero/localdag/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/localdag/pkg/adapters/ordering"
	"github.com/aescanero/localdag/pkg/adapters/runner"
	storagememory "github.com/aescanero/localdag/pkg/adapters/storage/memory"
	storageredis "github.com/aescanero/localdag/pkg/adapters/storage/redis"
	"github.com/aescanero/localdag/pkg/api/grpc"
	"github.com/aescanero/localdag/pkg/api/http"
	"github.com/aescanero/localdag/pkg/api/websocket"
	"github.com/aescanero/localdag/pkg/ports"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	app := &cli{}
	err := newRootCmd(app).Execute()
	if app.logger != nil {
		_ = app.logger.Sync()
	}
	if err != nil {
		var exit *exitError
		if !errors.As(err, &exit) || exit.err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	os.Exit(exitCode(err))
}

// cli carries what every subcommand needs. Tests set cfg and logger
// directly; otherwise they are loaded before the first command runs.
type cli struct {
	cfg    *config.Config
	logger *zap.Logger
}

// exitError ends the process with code. err, when set, is printed.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return 1
}

func newRootCmd(app *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "localdag",
		Short: "Local pipeline DAG orchestrator",
		Long: `localdag runs compiled pipeline specifications on the local machine.

Settings come from the environment (LOCALDAG_*, REDIS_*, WORKER_*, TIMEOUT_*,
LOG_LEVEL). Without a subcommand localdag starts the servers.`,
		Version:           fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: app.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(app.cfg, app.logger)
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP, WebSocket and gRPC servers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(app.cfg, app.logger)
			},
		},
		newRunCmd(app),
	)
	return root
}

// load reads the configuration and builds the logger
func (c *cli) load(cmd *cobra.Command, args []string) error {
	if c.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		c.cfg = cfg
	}
	if c.logger == nil {
		c.logger = initLogger(c.cfg.LogLevel)
	}
	return nil
}

// backends holds the storage and event adapters chosen by configuration
type backends struct {
	runs     ports.RunStore
	stores   ports.ValueStoreFactory
	eventBus ports.EventBus
	close    func()
}

func newBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	if cfg.Execution.StorageBackend != config.BackendRedis {
		bus := eventsmemory.NewInMemoryEventBus()
		return &backends{
			runs:     storagememory.NewRunStore(),
			stores:   storagememory.NewValueStoreFactory(),
			eventBus: bus,
			close:    func() { _ = bus.Close() },
		}, nil
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	// Test Redis connection
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	eventBus, err := eventsredis.NewStreamsEventBus(
		redisClient,
		"localdag-servers",
		fmt.Sprintf("localdag-%d", os.Getpid()),
		logger,
	)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	return &backends{
		runs:     storageredis.NewRunStore(redisClient, cfg.Redis.ValueTTL, logger),
		stores:   storageredis.NewValueStoreFactory(redisClient, cfg.Redis.ValueTTL, logger),
		eventBus: eventBus,
		close: func() {
			_ = eventBus.Close()
			if err := redisClient.Close(); err != nil {
				logger.Error("Redis close error", zap.Error(err))
			}
		},
	}, nil
}

func newOrchestrator(cfg *config.Config, eventBus ports.EventBus, metrics ports.MetricsCollector, logger *zap.Logger) (*orchestrator.Orchestrator, error) {
	taskRunner, err := runner.New(&runner.Config{
		Kind:   cfg.Execution.Runner,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	return orchestrator.NewOrchestrator(
		taskRunner,
		ordering.NewTopological(),
		literal.NewDecoder(),
		eventBus,
		metrics,
		logger,
	), nil
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting localdag",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	ctx := context.Background()
	b, err := newBackends(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize backends: %w", err)
	}

	registry := promclient.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsCollector := prometheus.NewCollector(registry)

	orch, err := newOrchestrator(cfg, b.eventBus, metricsCollector, logger)
	if err != nil {
		b.close()
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	workerPool := workers.NewPool(
		cfg.Workers.PoolSize,
		cfg.Workers.QueueSize,
		metricsCollector,
		logger,
		cfg.Workers.HealthCheckInterval,
	)

	// Start worker pool
	if err := workerPool.Start(); err != nil {
		b.close()
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	runManager := orchestrator.NewManager(
		orch,
		workerPool,
		b.runs,
		b.stores,
		b.eventBus,
		metricsCollector,
		logger,
		orchestrator.ManagerConfig{
			PipelineRoot: cfg.Execution.PipelineRoot,
			RunTimeout:   cfg.Timeouts.RunTimeout,
		},
	)

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:     cfg.HTTPPort,
		Runs:     runManager,
		Pool:     workerPool,
		Gatherer: registry,
		Logger:   logger,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(b.eventBus, logger)
	httpServer.SetupWebSocket(wsHandler.HandleRunStream)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:          cfg.GRPCPort,
		Check:         workerPool.Health().IsHealthy,
		CheckInterval: cfg.Workers.HealthCheckInterval,
		Logger:        logger,
	})
	if err != nil {
		_ = workerPool.Shutdown(context.Background())
		b.close()
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("localdag started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("storage_backend", cfg.Execution.StorageBackend),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	if err := runManager.Shutdown(shutdownCtx); err != nil {
		logger.Error("run manager shutdown error", zap.Error(err))
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	b.close()

	logger.Info("localdag shut down complete")
	return nil
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
