package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"praxischat/controller"
	"praxischat/model"
	"praxischat/platform"
	"praxischat/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "praxischat",
		Short:         "Praxis chat assistant backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the environment")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFile)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(envFile)
		},
	})
	return rootCmd
}

// bootstrap 加载配置、日志和数据库，serve 与 migrate 共用
func bootstrap(envFile string) (*platform.Config, *logrus.Logger, *gorm.DB, error) {
	cfg, err := platform.LoadConfig(envFile)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := platform.NewLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := platform.OpenDB(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := model.Migrate(db); err != nil {
		_ = platform.CloseDB(db)
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return cfg, logger, db, nil
}

func runMigrate(envFile string) error {
	_, logger, db, err := bootstrap(envFile)
	if err != nil {
		return err
	}
	defer platform.CloseDB(db)
	logger.Info("Database schema is up to date")
	return nil
}

func runServe(ctx context.Context, envFile string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, db, err := bootstrap(envFile)
	if err != nil {
		return err
	}
	defer platform.CloseDB(db)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	var limiter controller.Limiter
	var sweeper service.Sweeper
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		limiter = controller.NewRedisLimiter(rdb)
		logger.Info("Rate limits shared through Redis")
	} else {
		mem := controller.NewMemoryLimiter()
		limiter, sweeper = mem, mem
		logger.Info("Rate limits kept in process memory")
	}

	metrics := platform.NewMetrics("praxischat")
	assistant := service.NewAssistant(platform.NewLLMClient(cfg), service.AssistantOptions{
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		MaxTokens:   cfg.OpenAIMaxTokens,
	}, logger)
	store := model.NewStore(db)
	hub := service.NewHub(logger, metrics)
	chat := service.NewChatService(store, hub, assistant, logger, metrics)

	scheduler := service.NewScheduler(store, sweeper, cfg.RetentionDays, logger)
	if _, err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() { <-scheduler.Stop().Done() }()

	router, err := controller.NewRouter(controller.RouterDeps{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		Chat:    chat,
		Hub:     hub,
		Limiter: limiter,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server started on %s (%s)", srv.Addr, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Graceful shutdown failed, %s", err)
		return err
	}
	return nil
}
