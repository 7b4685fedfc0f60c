/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/contactsbook/identity/config"
	"github.com/contactsbook/identity/internal/logging"
	"github.com/contactsbook/identity/internal/server"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the identity HTTP server",
	Long: `Starts the identity HTTP server. Usage:

	contacts-identity server
`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
			os.Exit(1)
		}
		logger := logging.New(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := server.New(ctx, cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}

		go func() {
			<-ctx.Done()
			if err := srv.Shutdown(); err != nil {
				logger.Error().Err(err).Msg("shutdown failed")
			}
		}()

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
		logger.Info().Msg("server stopped")
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
