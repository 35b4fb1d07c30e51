package cmd

import (
	"context"
	"fmt"

	"github.com/EO-DataHub/eodhp-directory-services/internal/directory"
	"github.com/EO-DataHub/eodhp-directory-services/internal/events"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var refreshDomain string

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Republish every user and group so the directory projection can be rebuilt",
	Run: func(cmd *cobra.Command, args []string) {

		// Load the config and set up logging
		commonSetUp()

		if appCfg.Pulsar.URL == "" {
			log.Fatal().Msg("pulsar.url must be configured to publish a refresh")
		}

		store, closeStore, err := openStore(appCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize directory store")
		}
		defer closeStore()

		// Initialize event publisher
		publisher, err := events.NewEventPublisher(appCfg.Pulsar.URL, appCfg.Pulsar.TopicProducer)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize event publisher")
		}
		defer publisher.Close()

		log.Info().Str("domain", refreshDomain).Msg("Starting refresh...")

		count, err := directory.NewService(appCfg.Directory(), store, publisher).Refresh(context.Background(), refreshDomain)
		if err != nil {
			log.Fatal().Err(err).Msg("Refresh failed")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "published %d entries\n", count)
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	refreshCmd.Flags().StringVar(&refreshDomain, "domain", "", "only refresh entries of this domain")
}
