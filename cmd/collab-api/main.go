package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vitalforms/collab-backend/internal/collab"
	"github.com/vitalforms/collab-backend/internal/config"
	"github.com/vitalforms/collab-backend/internal/logging"
	"github.com/vitalforms/collab-backend/internal/server"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "collab-api",
		Short: "Real-time collaborative form editing service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

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
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("ws.allowed_origins"), "Origins allowed to open websocket connections")
	cmd.PersistentFlags().Int("send-buffer", defaults.GetInt("ws.send_buffer"), "Outbound event buffer per connection")
	cmd.PersistentFlags().Int("lock-ttl-seconds", defaults.GetInt("lock.ttl_seconds"), "Stale field-lock TTL in seconds (0 disables expiry)")
	cmd.PersistentFlags().Int("lock-sweep-interval-seconds", defaults.GetInt("lock.sweep_interval_seconds"), "Interval between stale-lock sweeps in seconds")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "ws.allowed_origins", "allowed-origins")
	bindFlag(cmd, "ws.send_buffer", "send-buffer")
	bindFlag(cmd, "lock.ttl_seconds", "lock-ttl-seconds")
	bindFlag(cmd, "lock.sweep_interval_seconds", "lock-sweep-interval-seconds")
	bindFlag(cmd, "log.level", "log-level")
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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	collabService := collab.NewService(collab.ServiceConfig{
		SendBuffer: appConfig.SendBuffer,
		Logger:     logger,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Collab:         collabService,
		Logger:         logger,
		AllowedOrigins: appConfig.AllowedOrigins,
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

	if appConfig.LockTTL > 0 {
		janitor := collab.NewJanitor(collab.JanitorConfig{
			Service:  collabService,
			TTL:      appConfig.LockTTL,
			Interval: appConfig.SweepInterval,
			Logger:   logger,
		})
		go janitor.Run(signalCtx)
		logger.Info("stale-lock janitor enabled",
			zap.Duration("ttl", appConfig.LockTTL),
			zap.Duration("interval", appConfig.SweepInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
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
