// Package tracker consumes the pizzeria event stream from RabbitMQ, stores
// it in Postgres, and serves the dashboard query API over it.
package tracker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pizzeria-system/internal/telemetry"
)

type Config struct {
	Rabbit telemetry.RabbitConfig
	DSN    string
	Port   int
}

// Run wires store, consumer and HTTP API together and blocks until ctx is
// cancelled or a fatal startup error occurs.
func Run(ctx context.Context, cfg Config) error {
	log := logrus.WithField("component", "tracker")

	db, err := ConnectDB(ctx, cfg.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	store := NewEventStore(db)
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	consumer, err := NewConsumer(cfg.Rabbit, store)
	if err != nil {
		return err
	}
	defer consumer.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(store).Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("consumer: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	log.WithField("port", cfg.Port).Info("tracker started")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	wg.Wait()
	return runErr
}
