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

	_ "go.uber.org/automaxprocs"

	"github.com/campvibe/backend/internal/community"
	"github.com/campvibe/backend/internal/config"
	"github.com/campvibe/backend/internal/logging"
	"github.com/campvibe/backend/internal/metrics"
	"github.com/campvibe/backend/internal/server"
	"github.com/campvibe/backend/internal/storage"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "campvibe-api",
		Short: "Camp Vibe community backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute denormalized counters and purge orphaned records",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context())
		},
	}
	rootCmd.AddCommand(reconcileCmd)

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("data-dir", defaults.GetString("data.dir"), "Directory holding the collection files")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-file", defaults.GetString("log.file"), "Rotated log file (empty disables)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "data.dir", "data-dir")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.file", "log-file")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newLogger(appConfig config.AppConfig) (*zap.Logger, error) {
	if appConfig.LogFile != "" {
		return logging.NewRotatingLogger(appConfig.LogLevel, appConfig.LogFile)
	}
	return logging.NewLogger(appConfig.LogLevel)
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := newLogger(appConfig)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	store, err := storage.NewStore(storage.StoreConfig{
		DataDir: appConfig.DataDir,
		Logger:  logger,
		Metrics: collector,
	})
	if err != nil {
		return err
	}

	communityService, err := community.NewService(community.ServiceConfig{
		Store:   store,
		Clock:   time.Now,
		IDs:     community.NewMillisProvider(),
		Logger:  logger,
		Metrics: collector,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Community:      communityService,
		Logger:         logger,
		Gatherer:       registry,
		RateLimitRPS:   appConfig.RateLimitRPS,
		RateLimitBurst: appConfig.RateLimitBurst,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("data_dir", appConfig.DataDir))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runReconcile(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := newLogger(appConfig)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := storage.NewStore(storage.StoreConfig{
		DataDir: appConfig.DataDir,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	communityService, err := community.NewService(community.ServiceConfig{
		Store:  store,
		Clock:  time.Now,
		IDs:    community.NewMillisProvider(),
		Logger: logger,
	})
	if err != nil {
		return err
	}

	report, err := communityService.ReconcileAll(ctx)
	if err != nil {
		return err
	}

	if !report.Changed() {
		fmt.Println("collections are consistent, nothing to repair")
		return nil
	}
	fmt.Printf("repaired drift: %d orphaned comments, %d orphaned likes, %d posts adjusted, %d users adjusted\n",
		report.OrphanComments, report.OrphanLikes, report.PostsAdjusted, report.UsersAdjusted)
	return nil
}
