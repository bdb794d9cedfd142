package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	carenest "github.com/gaurav-seth/carenest-helper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBun      = "bun"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
	DriverEtcd     = "etcd"
)

var storeDrivers = []string{DriverMemory, DriverPostgres, DriverBun, DriverSQLite, DriverRedis, DriverMongo, DriverEtcd}

// Config is the top-level configuration.
type Config struct {
	HTTP      HTTPConfig      `json:"http" yaml:"http"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Bus       BusConfig       `json:"bus" yaml:"bus"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Claims    ClaimConfig     `json:"claims" yaml:"claims"`
	Broadcast BroadcastConfig `json:"broadcast" yaml:"broadcast"`

	OTPExpiry       Duration `json:"otpExpiry" yaml:"otpExpiry"`
	ShutdownTimeout Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`

	// APIKeys guard the DWP endpoint. Empty means any token is accepted.
	APIKeys []APIKey `json:"apiKeys" yaml:"apiKeys"`

	// Helpers run in-process next to the server and claim jobs like remote
	// helpers would.
	Helpers []EmbeddedHelper `json:"helpers" yaml:"helpers"`
}

type HTTPConfig struct {
	Addr    string `json:"addr" yaml:"addr"`
	DWPPath string `json:"dwpPath" yaml:"dwpPath"`
	// Prometheus registers job and claim counters on the default registry
	// and serves them on /metrics.
	Prometheus bool `json:"prometheus" yaml:"prometheus"`
}

// StoreConfig selects the job store. DSN is the connection string for
// postgres and bun, a file path for sqlite, an address for redis, and a
// URI for mongo. Etcd uses Endpoints.
type StoreConfig struct {
	Driver    string   `json:"driver" yaml:"driver"`
	DSN       string   `json:"dsn" yaml:"dsn"`
	Database  string   `json:"database" yaml:"database"`
	Endpoints []string `json:"endpoints" yaml:"endpoints"`
	// Migrate runs schema migrations on startup.
	Migrate bool `json:"migrate" yaml:"migrate"`
}

// BusConfig selects the event bus: "memory" (in-process broker) or
// "redis" (streams, shared across processes).
type BusConfig struct {
	Driver     string   `json:"driver" yaml:"driver"`
	RedisAddr  string   `json:"redisAddr" yaml:"redisAddr"`
	AckTimeout Duration `json:"ackTimeout" yaml:"ackTimeout"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	// Audit writes an audit line for every job and claim event.
	Audit bool `json:"audit" yaml:"audit"`
}

type ClaimConfig struct {
	Timeout             Duration `json:"timeout" yaml:"timeout"`
	MaxAttempts         int      `json:"maxAttempts" yaml:"maxAttempts"`
	RequireKnownHelpers bool     `json:"requireKnownHelpers" yaml:"requireKnownHelpers"`
}

type BroadcastConfig struct {
	Retries int `json:"retries" yaml:"retries"`
}

// APIKey grants Scopes to callers presenting Token.
type APIKey struct {
	Token   string   `json:"token" yaml:"token"`
	Subject string   `json:"subject" yaml:"subject"`
	Scopes  []string `json:"scopes" yaml:"scopes"`
}

// EmbeddedHelper is an in-process helper. Locations, when set, limits the
// jobs it claims to those whose location contains one of them.
type EmbeddedHelper struct {
	Phone     string   `json:"phone" yaml:"phone"`
	Locations []string `json:"locations" yaml:"locations"`
}

// Default returns built-in defaults: memory store and bus, text logs at
// info, and the hub's default tuning.
func Default() Config {
	hub := carenest.DefaultConfig()
	return Config{
		HTTP:  HTTPConfig{Addr: ":8080", DWPPath: "/dwp"},
		Store: StoreConfig{Driver: DriverMemory, Database: "carenest", Migrate: true},
		Bus:   BusConfig{Driver: DriverMemory, RedisAddr: "localhost:6379", AckTimeout: Duration(hub.AckTimeout)},
		Log:   LogConfig{Level: "info", Format: "text"},
		Claims: ClaimConfig{
			Timeout:             Duration(hub.ClaimTimeout),
			MaxAttempts:         hub.ClaimMaxAttempts,
			RequireKnownHelpers: hub.RequireKnownHelpers,
		},
		Broadcast:       BroadcastConfig{Retries: hub.BroadcastRetries},
		OTPExpiry:       Duration(hub.OTPExpiry),
		ShutdownTimeout: Duration(hub.ShutdownTimeout),
	}
}

// Load reads a JSON or YAML file, chosen by extension, over the defaults.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks driver names, required connection settings, and
// tuning bounds.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(storeDrivers, c.Store.Driver) {
		errs = append(errs, fmt.Errorf("store.driver %q is not one of %v", c.Store.Driver, storeDrivers))
	}
	switch c.Store.Driver {
	case DriverPostgres, DriverBun, DriverSQLite, DriverRedis, DriverMongo:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for %s", c.Store.Driver))
		}
	case DriverEtcd:
		if len(c.Store.Endpoints) == 0 {
			errs = append(errs, errors.New("store.endpoints is required for etcd"))
		}
	}
	switch c.Bus.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Bus.RedisAddr == "" {
			errs = append(errs, errors.New("bus.redisAddr is required for the redis bus"))
		}
	default:
		errs = append(errs, fmt.Errorf("bus.driver %q is not memory or redis", c.Bus.Driver))
	}
	if c.Claims.MaxAttempts < 1 {
		errs = append(errs, errors.New("claims.maxAttempts must be at least 1"))
	}
	if c.Broadcast.Retries < 0 {
		errs = append(errs, errors.New("broadcast.retries must not be negative"))
	}
	if c.Claims.Timeout < 0 || c.Bus.AckTimeout < 0 || c.OTPExpiry < 0 || c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}
	for i, k := range c.APIKeys {
		if k.Token == "" {
			errs = append(errs, fmt.Errorf("apiKeys[%d].token is empty", i))
		}
	}
	for i, h := range c.Helpers {
		if h.Phone == "" {
			errs = append(errs, fmt.Errorf("helpers[%d].phone is empty", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", carenest.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

// HubConfig returns the carenest.Config these settings describe.
func (c Config) HubConfig() carenest.Config {
	return carenest.Config{
		ClaimTimeout:        c.Claims.Timeout.Std(),
		ClaimMaxAttempts:    c.Claims.MaxAttempts,
		BroadcastRetries:    c.Broadcast.Retries,
		AckTimeout:          c.Bus.AckTimeout.Std(),
		ShutdownTimeout:     c.ShutdownTimeout.Std(),
		RequireKnownHelpers: c.Claims.RequireKnownHelpers,
		OTPExpiry:           c.OTPExpiry.Std(),
	}
}

// Duration is a time.Duration written as "5s" or "1m30s" in files.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
