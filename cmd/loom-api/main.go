package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loomlabs/loom/backend/internal/auth"
	"github.com/loomlabs/loom/backend/internal/config"
	"github.com/loomlabs/loom/backend/internal/database"
	"github.com/loomlabs/loom/backend/internal/logging"
	"github.com/loomlabs/loom/backend/internal/scheduler"
	"github.com/loomlabs/loom/backend/internal/server"
	"github.com/loomlabs/loom/backend/internal/stories"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "loom-api",
		Short: "Loom writing app content service",
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
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("max-snapshots", defaults.GetInt("retention.max_snapshots"), "Snapshots retained per version")
	cmd.PersistentFlags().Int("autosave-delay-seconds", defaults.GetInt("autosave.delay_seconds"), "Idle seconds before autosave")
	cmd.PersistentFlags().String("snapshot-trigger-mode", defaults.GetString("snapshot.trigger_mode"), "History snapshot trigger (on_leave, character_count)")
	cmd.PersistentFlags().Int("snapshot-character-threshold", defaults.GetInt("snapshot.character_threshold"), "Character growth before a history snapshot")
	cmd.PersistentFlags().String("ipc-signing-secret", "", "IPC token signing secret (overrides env)")
	cmd.PersistentFlags().String("ipc-pairing-secret", "", "IPC pairing secret the UI shell is launched with (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "retention.max_snapshots", "max-snapshots")
	bindFlag(cmd, "autosave.delay_seconds", "autosave-delay-seconds")
	bindFlag(cmd, "snapshot.trigger_mode", "snapshot-trigger-mode")
	bindFlag(cmd, "snapshot.character_threshold", "snapshot-character-threshold")
	bindFlag(cmd, "ipc.signing_secret", "ipc-signing-secret")
	bindFlag(cmd, "ipc.pairing_secret", "ipc-pairing-secret")
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

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.IPCSigningSecret),
		Issuer:        "loom-backend",
		Audience:      "loom-shell",
		TokenTTL:      appConfig.IPCTokenTTL,
	})

	storiesService, err := stories.NewService(stories.ServiceConfig{
		Database:     db,
		Clock:        time.Now,
		IDProvider:   stories.NewUUIDProvider(),
		Logger:       logger,
		MaxSnapshots: appConfig.MaxSnapshots,
	})
	if err != nil {
		return err
	}

	triggerMode, err := scheduler.ParseTriggerMode(appConfig.TriggerMode)
	if err != nil {
		return err
	}

	dispatcher := server.NewSaveStateDispatcher()
	persistenceScheduler, err := scheduler.New(scheduler.Config{
		Persister:     storiesService,
		Logger:        logger,
		AutosaveDelay: appConfig.AutosaveDelay,
		Trigger: scheduler.TriggerConfig{
			Mode:               triggerMode,
			CharacterThreshold: appConfig.CharacterThreshold,
		},
		Notify: server.NotifyFromScheduler(dispatcher),
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:   tokenManager,
		StoriesService: storiesService,
		Scheduler:      persistenceScheduler,
		Dispatcher:     dispatcher,
		PairingSecret:  appConfig.IPCPairingSecret,
		Logger:         logger,
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
		// Best-effort flush of any pending autosave before teardown.
		persistenceScheduler.Close(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
