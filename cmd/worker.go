/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/contactsbook/identity/config"
	"github.com/contactsbook/identity/internal/logging"
	"github.com/contactsbook/identity/internal/mailer"
	"github.com/contactsbook/identity/internal/mq"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Delivers queued verification email",
	Long: `Consumes the mail queue and delivers each message over SMTP.
Requires MAIL_QUEUE_BACKEND to be rabbitmq or pubsub.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		switch cfg.Queue.Backend {
		case config.QueueBackendNone:
			return errors.New("MAIL_QUEUE_BACKEND is none; nothing to consume")
		case config.QueueBackendMemory:
			return errors.New("MAIL_QUEUE_BACKEND is memory; the server consumes it in-process")
		}
		logger := logging.New(cfg.Log).With().Str("component", "mail-worker").Logger()

		sender, err := mailer.NewSMTPSender(cfg.Mail)
		if err != nil {
			return fmt.Errorf("init mailer: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init mail queue: %w", err)
		}
		defer func() {
			_ = queue.Close()
		}()

		logger.Info().Str("backend", cfg.Queue.Backend).Str("channel", cfg.Queue.Channel).Msg("worker started")
		if err := mailer.Consume(ctx, queue, cfg.Queue.Channel, sender, logger); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logger.Info().Msg("worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
