package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/supby/nodeconf/internal/configuration"
	"github.com/supby/nodeconf/internal/db"
	"github.com/supby/nodeconf/internal/handler"
	"github.com/supby/nodeconf/internal/logger"
	"github.com/supby/nodeconf/internal/mqtt"
	"github.com/supby/nodeconf/internal/router"
	"github.com/supby/nodeconf/internal/service"
)

var (
	configFile string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "nodeconf",
		Short:         "Configuration records for Wi-Fi/MQTT sensor nodes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./configuration.yaml", "path to config file name")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "overrides loglevel from the config file (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCmd(),
		newInitConfigCmd(),
		newMigrateCmd(),
		newShowCmd(),
		newListCmd(),
		newSetCmd(),
		newSetPortCmd(),
		newConfirmCmd(),
		newUnconfirmCmd(),
		newDeleteCmd(),
		newExportCmd(),
		newImportCmd(),
	)

	return rootCmd
}

// app holds what every command needs; close releases the database.
type app struct {
	config  configuration.Configuration
	logger  logger.Logger
	db      db.RecordDB
	service *service.ProvisioningService
}

func openApp(ctx context.Context) (*app, error) {
	configService, err := configuration.Init(configFile)
	if err != nil {
		return nil, errors.Annotate(err, "configuration initialization")
	}
	cfg := configService.GetConfiguration()

	level := cfg.LogLevel
	if logLevel != "" {
		if level, err = logger.ParseLevel(logLevel); err != nil {
			return nil, errors.Annotate(err, "--log-level")
		}
	}

	l := logger.GetLogger("[main]", level)

	recordDB, err := db.NewRecordDB(cfg.DBConfiguration.Directory, db.RecordDBOptions{
		InMemory:          cfg.DBConfiguration.InMemory,
		ValueLogFileSize:  cfg.DBConfiguration.ValueLogFileSize,
		GCPeriodInSeconds: cfg.DBConfiguration.GCPeriodInSeconds,
		Logger:            l.WithPrefix("[DB]"),
	})
	if err != nil {
		return nil, errors.Annotate(err, "db initialization")
	}

	return &app{
		config:  cfg,
		logger:  l,
		db:      recordDB,
		service: service.NewProvisioningService(recordDB, l),
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.db.Close(ctx); err != nil {
		a.logger.Error("Closing db: %v", err)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve records over MQTT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			mqttClient, mqttDisconnect, err := mqtt.NewClient(&a.config.MqttConfiguration, a.logger)
			if err != nil {
				return errors.Annotate(err, "mqtt initialization")
			}
			defer mqttDisconnect()

			mqttRouter := router.NewMQTTRouter(mqttClient, a.logger)
			provisioningHandler := handler.NewProvisioningHandler(ctx, mqttRouter, a.service, a.logger)

			if _, err := a.service.Migrate(ctx); err != nil {
				return errors.Annotate(err, "migrating records")
			}

			if err := provisioningHandler.PublishConfigs(ctx); err != nil {
				return errors.Annotate(err, "publishing configurations")
			}

			waitForInterruptSignal()

			a.logger.Info("exiting app...")

			return nil
		},
	}
}

func waitForInterruptSignal() {
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigchan)
	}()
	<-sigchan
}
