package main

import (
	"context"
	"fmt"
	"math/rand"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pizzeria-system/internal/config"
	"pizzeria-system/internal/pizzeria"
	"pizzeria-system/internal/statusapi"
	"pizzeria-system/internal/telemetry"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the pizzeria kitchen simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runSimulation(ctx, cfg)
	},
}

func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		found, err := config.FindConfig()
		if err != nil {
			logrus.Info("no config file found, using defaults")
			cfg := config.Default()
			return cfg, cfg.Validate()
		}
		path = found
	}
	return config.Load(path)
}

func buildSink(cfg config.Config) (telemetry.Sink, func() error, error) {
	var transport telemetry.Transport
	switch cfg.Telemetry.Transport {
	case "none":
		return telemetry.NopSink{}, func() error { return nil }, nil
	case "nats":
		t, err := telemetry.DialNATS(cfg.NATS.URL)
		if err != nil {
			return nil, nil, err
		}
		transport = t
	default:
		t, err := telemetry.DialRabbit(telemetry.RabbitConfig{
			Host:     cfg.RabbitMQ.Host,
			Port:     cfg.RabbitMQ.Port,
			User:     cfg.RabbitMQ.User,
			Password: cfg.RabbitMQ.Password,
			VHost:    cfg.RabbitMQ.VHost,
			UseTLS:   cfg.RabbitMQ.UseTLS,
		})
		if err != nil {
			return nil, nil, err
		}
		transport = t
	}
	sink := telemetry.NewAsyncSink(transport, cfg.Telemetry.Buffer)
	return sink, sink.Close, nil
}

func runSimulation(ctx context.Context, cfg config.Config) error {
	log := logrus.WithField("component", "simulator")

	sink, closeSink, err := buildSink(cfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = closeSink() }()

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	prepDone := make(chan pizzeria.Completion, 128)
	bakeDone := make(chan pizzeria.Completion, 128)

	var (
		preps        []*pizzeria.PrepStation
		ovens        []*pizzeria.Oven
		prepStations []pizzeria.Station
		ovenStations []pizzeria.Station
	)
	for i, id := range cfg.Simulation.PrepStations {
		p := pizzeria.NewPrepStation(id, sink, prepDone, rand.New(rand.NewSource(seed+int64(i)+1)))
		preps = append(preps, p)
		prepStations = append(prepStations, p)
	}
	for i, oc := range cfg.Simulation.Ovens {
		o, err := pizzeria.NewOven(oc.ID, oc.Capacity, sink, bakeDone, rand.New(rand.NewSource(seed+int64(i)+100)))
		if err != nil {
			return err
		}
		ovens = append(ovens, o)
		ovenStations = append(ovenStations, o)
	}

	managerCfg, err := cfg.ManagerConfig()
	if err != nil {
		return err
	}
	manager, err := pizzeria.NewOrderManager(managerCfg, sink, prepStations, ovenStations,
		prepDone, bakeDone, rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}

	statusServer := statusapi.New(cfg.Simulation.StatusPort, manager, ovens, preps)

	log.WithFields(logrus.Fields{
		"ovens":         len(ovens),
		"prep_stations": len(preps),
		"transport":     cfg.Telemetry.Transport,
		"status_port":   cfg.Simulation.StatusPort,
	}).Info("starting pizzeria simulation")

	var wg sync.WaitGroup
	errCh := make(chan error, len(preps)+len(ovens)+2)
	runUnit := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	for _, p := range preps {
		runUnit("prep "+p.ID(), p.Run)
	}
	for _, o := range ovens {
		runUnit("oven "+o.ID(), o.Run)
	}
	runUnit("order manager", manager.Run)
	runUnit("status server", statusServer.Run)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	wg.Wait()
	log.Info("pizzeria simulation stopped")
	return runErr
}
