// Package config provides configuration management for the graph sync service.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/colinxr/notion-graph-view-sub001/internal/errors"
)

// Environment represents the deployment environment
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
)

// Config is the root configuration object.
type Config struct {
	Environment Environment `yaml:"environment" validate:"required,oneof=development staging production"`
	Server      Server      `yaml:"server"`
	Logging     Logging     `yaml:"logging"`
	Store       Store       `yaml:"store"`
	Cache       Cache       `yaml:"cache"`
	Events      Events      `yaml:"events"`
	Extraction  Extraction  `yaml:"extraction"`
	AWS         AWS         `yaml:"aws"`

	// LoadedFrom lists the sources that contributed to this configuration.
	LoadedFrom []string `yaml:"-"`
}

// Server holds HTTP server settings.
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// Logging holds logger settings.
type Logging struct {
	Level   string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format  string `yaml:"format" validate:"required,oneof=json console"`
	Service string `yaml:"service"`
}

// Store selects and configures the authoritative page/backlink store.
type Store struct {
	Driver     string `yaml:"driver" validate:"required,oneof=memory sqlite dynamodb"`
	SQLitePath string `yaml:"sqlite_path"`
	TableName  string `yaml:"table_name"`
}

// Cache configures the cache store and TTL.
type Cache struct {
	TTL      time.Duration `yaml:"ttl" validate:"gt=0"`
	MaxItems int           `yaml:"max_items" validate:"gt=0"`
	// MaxBytes bounds the in-memory store by payload size.
	MaxBytes       int64         `yaml:"max_bytes" validate:"gt=0"`
	BreakerTimeout time.Duration `yaml:"breaker_timeout" validate:"gt=0"`
	BreakerTrips   uint32        `yaml:"breaker_trips" validate:"gt=0"`
}

// Events configures the background publisher and the optional mirror.
type Events struct {
	QueueSize     int    `yaml:"queue_size" validate:"gt=0"`
	MirrorEnabled bool   `yaml:"mirror_enabled"`
	MirrorBusName string `yaml:"mirror_bus_name"`
	MirrorSource  string `yaml:"mirror_source"`
	// MirrorRate caps PutEvents calls per second; zero disables throttling.
	MirrorRate  float64 `yaml:"mirror_rate" validate:"gte=0"`
	MirrorBurst int     `yaml:"mirror_burst" validate:"gte=0"`
}

// Extraction configures the backlink marker syntax.
type Extraction struct {
	OpenMarker     string `yaml:"open_marker" validate:"required"`
	CloseMarker    string `yaml:"close_marker" validate:"required"`
	AliasSeparator string `yaml:"alias_separator" validate:"required,len=1"`
	ContextRadius  int    `yaml:"context_radius" validate:"gte=0"`
}

// AWS holds AWS client settings.
type AWS struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Logging: Logging{
			Level:   "info",
			Format:  "json",
			Service: "graphsync",
		},
		Store: Store{
			Driver:     DriverMemory,
			SQLitePath: "graphsync.db",
			TableName:  "graphsync",
		},
		Cache: Cache{
			TTL:            time.Hour,
			MaxItems:       10000,
			MaxBytes:       64 << 20,
			BreakerTimeout: 30 * time.Second,
			BreakerTrips:   5,
		},
		Events: Events{
			QueueSize:     256,
			MirrorBusName: "default",
			MirrorSource:  "graphsync",
			MirrorRate:    10,
			MirrorBurst:   5,
		},
		Extraction: Extraction{
			OpenMarker:     "[[",
			CloseMarker:    "]]",
			AliasSeparator: "|",
			ContextRadius:  60,
		},
		AWS: AWS{
			Region: "us-east-1",
		},
	}
}

var validate = validator.New()

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.Configuration(apperrors.CodeInvalidConfig.String(), "invalid configuration").
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return invalid("store.sqlite_path is required for the sqlite driver")
		}
	case DriverDynamoDB:
		if c.Store.TableName == "" || c.AWS.Region == "" {
			return invalid("store.table_name and aws.region are required for the dynamodb driver")
		}
	}

	if c.Events.MirrorEnabled && c.Events.MirrorBusName == "" {
		return invalid("events.mirror_bus_name is required when the mirror is enabled")
	}
	if c.Extraction.OpenMarker == c.Extraction.CloseMarker {
		return invalid("extraction markers must differ")
	}
	return nil
}

// Addr returns the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func invalid(details string) error {
	return apperrors.Configuration(apperrors.CodeInvalidConfig.String(), "invalid configuration").
		WithDetails(details).
		Build()
}
