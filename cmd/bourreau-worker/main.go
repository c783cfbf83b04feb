// Bourreau Worker — обрабатывает tasks одного вычислительного ресурса.
//
// Worker:
//   - Опрашивает таблицу tasks и двигает каждую task по её жизненному циклу
//   - Засыпает, когда работы нет; просыпается по SIGUSR1, AMQP-событию
//     task.submitted или POST /api/v1/worker/wake
//   - Уведомляет владельцев о завершении tasks
//   - Отдаёт admin API и /metrics
//
// Использование:
//
//	bourreau-worker --resource-id <uuid> [--config bourreau.yaml]
//	bourreau-worker schema
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Bourreau/internal/api"
	"github.com/shaiso/Bourreau/internal/cluster"
	"github.com/shaiso/Bourreau/internal/config"
	"github.com/shaiso/Bourreau/internal/lifecycle"
	"github.com/shaiso/Bourreau/internal/mq"
	"github.com/shaiso/Bourreau/internal/notify"
	"github.com/shaiso/Bourreau/internal/repo"
	"github.com/shaiso/Bourreau/internal/telemetry"
	"github.com/shaiso/Bourreau/internal/worker"
)

// version задаётся через ldflags при сборке.
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "bourreau-worker",
		Short:         "Bourreau worker — drives tasks of one computing resource",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "Path to YAML config file")
	flags.String("resource-id", "", "UUID of the resource this worker serves")
	flags.String("http-addr", "", "Admin API listen address")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	mustBind(v, "resource_id", flags.Lookup("resource-id"))
	mustBind(v, "http.addr", flags.Lookup("http-addr"))
	mustBind(v, "log.level", flags.Lookup("log-level"))

	rootCmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the SQL schema of the tasks and messages tables",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), repo.Schema)
		},
	})

	return rootCmd
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// run собирает зависимости и запускает воркер, admin API, AMQP consumer
// и обработку сигналов. Возвращается, когда воркер остановлен.
func run(ctx context.Context, cfg *config.Config) (err error) {
	logger, err := telemetry.SetupLogger(telemetry.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	resourceID := cfg.ResourceUUID()
	logger.Info("starting bourreau-worker",
		zap.String("version", version),
		zap.String("resource_id", resourceID.String()),
	)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// DB pool
	pool, err := repo.NewPool(ctx, repo.PoolConfig{
		URL:      cfg.DB.URL,
		MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	taskRepo := repo.NewTaskRepo(pool)
	messageRepo := repo.NewMessageRepo(pool)

	// Cluster backend
	backend, closeBackend := newBackend(cfg.Cluster, logger)
	defer closeBackend()

	// RabbitMQ (опционально: без него воркер работает только опросом)
	var mqConn *mq.Connection
	if cfg.RabbitMQ.Enabled {
		mqConn, err = mq.Dial(mq.ConnectionConfig{
			URL:    cfg.RabbitMQ.URL,
			Name:   cfg.WorkerName,
			Logger: logger,
		})
		if err != nil {
			logger.Warn("RabbitMQ not available, running in polling-only mode", zap.Error(err))
			mqConn = nil
		} else {
			defer func() {
				err = multierr.Append(err, mqConn.Close())
			}()
			if err := mq.SetupTopology(ctx, mqConn, resourceID); err != nil {
				logger.Warn("failed to setup topology", zap.Error(err))
			} else {
				logger.Debug(mq.TopologyInfo(resourceID))
			}
		}
	}

	notifyCfg := notify.Config{
		Store:   messageRepo,
		Logger:  logger,
		Metrics: metrics,
	}
	apiCfg := api.Config{
		Tasks:      taskRepo,
		Messages:   messageRepo,
		ResourceID: resourceID,
		Logger:     logger,
	}
	// Интерфейсы заполняются только живым publisher: typed nil не равен nil.
	if mqConn != nil {
		publisher := mq.NewPublisher(mqConn, logger)
		notifyCfg.Publisher = publisher
		apiCfg.Announcer = publisher
	}

	manager := lifecycle.New(lifecycle.Config{
		Store:    taskRepo,
		Backend:  backend,
		WorkRoot: cfg.Cluster.WorkRoot,
		Logger:   logger,
		Metrics:  metrics,
	})

	w := worker.New(worker.Config{
		Store:        taskRepo,
		Lifecycle:    manager,
		Notifier:     notify.New(notifyCfg),
		ResourceID:   resourceID,
		Name:         cfg.WorkerName,
		PollInterval: cfg.Worker.PollInterval,
		SleepCeiling: cfg.Worker.SleepCeiling,
		Logger:       logger,
		Metrics:      metrics,
	})

	apiCfg.Worker = w
	handler := api.NewHandler(apiCfg)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Остановка воркера завершает процесс целиком.
		defer cancel()
		err := w.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		w.HandleSignals(gctx, cancel)
		return nil
	})

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		return srv.Shutdown(shutdownCtx)
	})

	if mqConn != nil {
		consumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
			Queue:   string(mq.SubmittedQueue(resourceID)),
			Tag:     cfg.WorkerName,
			Handler: w.HandleTaskSubmitted,
		})
		g.Go(func() error {
			err := consumer.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, worker.ErrDefect) {
			logger.Error("worker stopped on a defect", zap.Error(err))
		}
		return err
	}

	logger.Info("bourreau-worker stopped")
	return nil
}

// newBackend выбирает backend кластера по конфигурации.
func newBackend(cfg config.ClusterConfig, logger *zap.Logger) (cluster.Backend, func()) {
	if cfg.Backend == "http" {
		return cluster.NewHTTPBackend(cluster.HTTPConfig{
			BaseURL:    cfg.URL,
			RatePerSec: cfg.RatePerSec,
		}), func() {}
	}

	local := cluster.NewLocalBackend(cluster.LocalConfig{
		JobsDir: filepath.Join(cfg.WorkRoot, "jobs"),
		Logger:  logger,
	})
	return local, local.Close
}
