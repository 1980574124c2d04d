package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pizzeria-system/internal/telemetry"
	"pizzeria-system/internal/tracker"
)

var trackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Consume the event stream into Postgres and serve the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return tracker.Run(ctx, tracker.Config{
			Rabbit: telemetry.RabbitConfig{
				Host:     cfg.RabbitMQ.Host,
				Port:     cfg.RabbitMQ.Port,
				User:     cfg.RabbitMQ.User,
				Password: cfg.RabbitMQ.Password,
				VHost:    cfg.RabbitMQ.VHost,
				UseTLS:   cfg.RabbitMQ.UseTLS,
			},
			DSN:  cfg.Database.DSN(),
			Port: cfg.Tracker.Port,
		})
	},
}
