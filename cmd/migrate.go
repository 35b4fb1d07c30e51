package cmd

import (
	"context"

	"github.com/EO-DataHub/eodhp-directory-services/db"
	"github.com/EO-DataHub/eodhp-directory-services/internal/appconfig"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "init-db-migrate",
	Short: "Initialize tables and run database migrations",
	Long:  `This job ensures the directory tables exist by running the embedded goose migrations.`,
	Run: func(cmd *cobra.Command, args []string) {

		// Load the config and set up logging
		commonSetUp()

		if appCfg.Database.Driver != appconfig.DriverPostgres {
			log.Fatal().Str("driver", appCfg.Database.Driver).Msg("Migrations only apply to the postgres driver")
		}

		directoryDB, err := db.NewDirectoryDB(appCfg.Database.Source, &log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize DirectoryDB")
		}
		defer directoryDB.Close()

		// Run the migrations
		log.Info().Msgf("Running migrations...")
		if err := directoryDB.Migrate(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}

		log.Info().Msg("Migrations complete")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
