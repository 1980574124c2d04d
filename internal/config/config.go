// Package config loads the single YAML configuration file shared by the
// simulator and the tracker. Endpoints can be overridden from the
// environment for container deployments; everything is validated before any
// component starts.
package config

import (
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"pizzeria-system/internal/pizzeria"
)

type TelemetryConfig struct {
	Transport string `yaml:"transport"` // rabbitmq | nats | none
	Buffer    int    `yaml:"buffer"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	UseTLS   bool   `yaml:"use_tls"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Database)
}

type OvenConfig struct {
	ID       string `yaml:"id"`
	Capacity int    `yaml:"capacity"`
}

type SimulationConfig struct {
	BaseOrdersPerMinute float64               `yaml:"base_orders_per_minute"`
	RushHourMultiplier  float64               `yaml:"rush_hour_multiplier"`
	OrderProbability    float64               `yaml:"order_probability"`
	ProcessingInterval  int                   `yaml:"processing_interval_seconds"`
	MetricsInterval     int                   `yaml:"metrics_interval_seconds"`
	PrepBatchSize       int                   `yaml:"prep_batch_size"`
	DwellMinSeconds     int                   `yaml:"dwell_min_seconds"`
	DwellMaxSeconds     int                   `yaml:"dwell_max_seconds"`
	RushWindows         []pizzeria.RushWindow `yaml:"rush_windows"`
	PizzaTypes          []string              `yaml:"pizza_types"`
	PizzaSizes          []string              `yaml:"pizza_sizes"`
	Ovens               []OvenConfig          `yaml:"ovens"`
	PrepStations        []string              `yaml:"prep_stations"`
	StatusPort          int                   `yaml:"status_port"`
	Seed                int64                 `yaml:"seed"` // 0 = derive from wall clock
}

type TrackerConfig struct {
	Port int `yaml:"port"`
}

type Config struct {
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	NATS       NATSConfig       `yaml:"nats"`
	Database   DatabaseConfig   `yaml:"database"`
	Simulation SimulationConfig `yaml:"simulation"`
	Tracker    TrackerConfig    `yaml:"tracker"`
}

// Default mirrors the reference deployment: three ovens of shrinking
// capacity, two prep stations, the full menu.
func Default() Config {
	return Config{
		Telemetry: TelemetryConfig{Transport: "rabbitmq", Buffer: 256},
		RabbitMQ:  RabbitMQConfig{Host: "localhost", Port: 5672, User: "guest", Password: "guest", VHost: "/"},
		NATS:      NATSConfig{URL: "nats://localhost:4222"},
		Database:  DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "postgres", Database: "pizzeria"},
		Simulation: SimulationConfig{
			BaseOrdersPerMinute: 0.5,
			RushHourMultiplier:  3,
			OrderProbability:    0.8,
			ProcessingInterval:  5,
			MetricsInterval:     10,
			PrepBatchSize:       2,
			DwellMinSeconds:     120,
			DwellMaxSeconds:     600,
			RushWindows:         []pizzeria.RushWindow{{StartHour: 11, EndHour: 14}, {StartHour: 17, EndHour: 21}},
			PizzaTypes:          pizzaTypeNames(),
			PizzaSizes:          sizeNames(),
			Ovens: []OvenConfig{
				{ID: "oven_1", Capacity: 4},
				{ID: "oven_2", Capacity: 3},
				{ID: "oven_3", Capacity: 2},
			},
			PrepStations: []string{"prep_1", "prep_2"},
			StatusPort:   3001,
		},
		Tracker: TrackerConfig{Port: 3002},
	}
}

func pizzaTypeNames() []string {
	types := pizzeria.AllPizzaTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func sizeNames() []string {
	sizes := pizzeria.AllSizes()
	out := make([]string, len(sizes))
	for i, s := range sizes {
		out[i] = string(s)
	}
	return out
}

// Load reads the YAML file over the defaults, applies environment
// overrides, and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FindConfig probes the usual locations.
func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}

func (c *Config) applyEnv() {
	envStr("PIZZERIA_RABBITMQ_HOST", &c.RabbitMQ.Host)
	envInt("PIZZERIA_RABBITMQ_PORT", &c.RabbitMQ.Port)
	envStr("PIZZERIA_RABBITMQ_USER", &c.RabbitMQ.User)
	envStr("PIZZERIA_RABBITMQ_PASSWORD", &c.RabbitMQ.Password)
	envStr("PIZZERIA_NATS_URL", &c.NATS.URL)
	envStr("PIZZERIA_DB_HOST", &c.Database.Host)
	envInt("PIZZERIA_DB_PORT", &c.Database.Port)
	envStr("PIZZERIA_DB_USER", &c.Database.User)
	envStr("PIZZERIA_DB_PASSWORD", &c.Database.Password)
	envStr("PIZZERIA_DB_NAME", &c.Database.Database)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c Config) Validate() error {
	switch c.Telemetry.Transport {
	case "rabbitmq", "nats", "none":
	default:
		return fmt.Errorf("telemetry.transport must be rabbitmq, nats or none, got %q", c.Telemetry.Transport)
	}
	if len(c.Simulation.Ovens) == 0 {
		return fmt.Errorf("simulation.ovens must list at least one oven")
	}
	seen := map[string]bool{}
	for _, o := range c.Simulation.Ovens {
		if o.ID == "" {
			return fmt.Errorf("oven id must not be empty")
		}
		if seen[o.ID] {
			return fmt.Errorf("duplicate oven id %q", o.ID)
		}
		seen[o.ID] = true
		if o.Capacity <= 0 {
			return fmt.Errorf("oven %s: capacity must be positive, got %d", o.ID, o.Capacity)
		}
	}
	if len(c.Simulation.PrepStations) == 0 {
		return fmt.Errorf("simulation.prep_stations must list at least one station")
	}
	seen = map[string]bool{}
	for _, id := range c.Simulation.PrepStations {
		if id == "" {
			return fmt.Errorf("prep station id must not be empty")
		}
		if seen[id] {
			return fmt.Errorf("duplicate prep station id %q", id)
		}
		seen[id] = true
	}
	// The manager config re-validates rates, windows and the menu against
	// the catalog, failing fast on unknown pizza types or sizes.
	if _, err := c.ManagerConfig(); err != nil {
		return err
	}
	return nil
}

// ManagerConfig translates the YAML view into the core's config.
func (c Config) ManagerConfig() (pizzeria.ManagerConfig, error) {
	mc := pizzeria.ManagerConfig{
		BaseOrdersPerMinute: c.Simulation.BaseOrdersPerMinute,
		RushMultiplier:      c.Simulation.RushHourMultiplier,
		RushWindows:         c.Simulation.RushWindows,
		OrderProbability:    c.Simulation.OrderProbability,
		ProcessingInterval:  time.Duration(c.Simulation.ProcessingInterval) * time.Second,
		MetricsInterval:     time.Duration(c.Simulation.MetricsInterval) * time.Second,
		PrepBatchSize:       c.Simulation.PrepBatchSize,
		DwellMin:            time.Duration(c.Simulation.DwellMinSeconds) * time.Second,
		DwellMax:            time.Duration(c.Simulation.DwellMaxSeconds) * time.Second,
	}
	for _, name := range c.Simulation.PizzaTypes {
		t, err := pizzeria.ParsePizzaType(name)
		if err != nil {
			return pizzeria.ManagerConfig{}, fmt.Errorf("simulation.pizza_types: %w", err)
		}
		mc.PizzaTypes = append(mc.PizzaTypes, t)
	}
	for _, name := range c.Simulation.PizzaSizes {
		s, err := pizzeria.ParseSize(name)
		if err != nil {
			return pizzeria.ManagerConfig{}, fmt.Errorf("simulation.pizza_sizes: %w", err)
		}
		mc.Sizes = append(mc.Sizes, s)
	}
	if err := mc.Validate(); err != nil {
		return pizzeria.ManagerConfig{}, err
	}
	return mc, nil
}
