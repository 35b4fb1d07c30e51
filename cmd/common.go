package cmd

import (
	"context"
	"fmt"

	"github.com/EO-DataHub/eodhp-directory-services/db"
	"github.com/EO-DataHub/eodhp-directory-services/db/memstore"
	"github.com/EO-DataHub/eodhp-directory-services/internal/appconfig"
	awsclient "github.com/EO-DataHub/eodhp-directory-services/internal/aws"
	"github.com/EO-DataHub/eodhp-directory-services/internal/directory"
	"github.com/EO-DataHub/eodhp-directory-services/internal/events"
	"github.com/rs/zerolog/log"
)

var appCfg *appconfig.Config

// commonSetUp sets the log level and loads, resolves and validates the
// configuration into appCfg.
func commonSetUp() {
	setUp()

	var err error
	appCfg, err = loadConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if err := appCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
}

func loadConfig(ctx context.Context) (*appconfig.Config, error) {
	cfg, err := appconfig.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if cfg.AWS.SecretName != "" {
		awsCfg, err := awsclient.LoadAWSConfig(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		if err := cfg.ResolveSecrets(ctx, awsclient.NewSecretsManagerClient(awsCfg)); err != nil {
			return nil, err
		}
		log.Info().Str("secret", cfg.AWS.SecretName).Msg("Resolved secrets from AWS Secrets Manager")
	}
	return cfg, nil
}

// openStore connects the configured database driver.
func openStore(cfg *appconfig.Config) (directory.Store, func(), error) {
	switch cfg.Database.Driver {
	case appconfig.DriverMemory:
		store, err := memstore.New()
		if err != nil {
			return nil, nil, err
		}
		log.Warn().Msg("Using the in-memory store, data is lost on exit")
		return store, func() {}, nil

	case appconfig.DriverPostgres:
		directoryDB, err := db.NewDirectoryDB(cfg.Database.Source, &log.Logger)
		if err != nil {
			return nil, nil, err
		}
		return directoryDB, func() { directoryDB.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

// openNotifier publishes to Pulsar when a broker is configured.
func openNotifier(cfg *appconfig.Config) (events.Notifier, error) {
	if cfg.Pulsar.URL == "" {
		log.Info().Msg("No pulsar url configured, directory changes will not be published")
		return events.NoopNotifier{}, nil
	}
	return events.NewEventPublisher(cfg.Pulsar.URL, cfg.Pulsar.TopicProducer)
}
