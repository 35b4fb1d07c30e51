package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/EO-DataHub/eodhp-directory-services/api/handlers"
	"github.com/EO-DataHub/eodhp-directory-services/api/services"
	"github.com/EO-DataHub/eodhp-directory-services/internal/directory"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server for handling API requests",
	Run: func(cmd *cobra.Command, args []string) {

		// Load the config and set up logging
		commonSetUp()

		// Connect the configured store
		store, closeStore, err := openStore(appCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize directory store")
		}
		defer closeStore()

		// Initialize event publisher
		notifier, err := openNotifier(appCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize event publisher")
		}
		defer notifier.Close()

		nodename, err := os.Hostname()
		if err != nil {
			nodename = appCfg.Host
		}

		service := &services.Service{
			Directory: directory.NewService(appCfg.Directory(), store, notifier),
			Nodename:  nodename,
		}

		// Create routes
		r := handlers.NewRouter(service, appCfg.API)

		log.Info().Msg(fmt.Sprintf("Server started at %s:%d", host, port))

		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", host, port),
			r); err != nil {

			log.Error().Err(err).Msg("could not start server")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&host, "host", "0.0.0.0", "host to run the server on")
	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run the server on")
}
