package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable holding the optional YAML file path.
const EnvConfigPath = "GRAPHSYNC_CONFIG"

const envPrefix = "GRAPHSYNC_"

// Loader builds a Config from defaults, an optional YAML file and the
// environment, in increasing order of priority.
type Loader struct {
	path   string
	lookup func(string) (string, bool)
}

// NewLoader creates a loader. An empty path falls back to $GRAPHSYNC_CONFIG.
func NewLoader(path string) *Loader {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	return &Loader{path: path, lookup: os.LookupEnv}
}

// Path returns the YAML file the loader reads, if any.
func (l *Loader) Path() string {
	return l.path
}

// Load loads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()
	cfg.LoadedFrom = []string{"defaults"}

	if l.path != "" {
		if err := l.loadFile(cfg); err != nil {
			return nil, err
		}
		cfg.LoadedFrom = append(cfg.LoadedFrom, l.path)
	}

	if err := l.applyEnvironment(cfg); err != nil {
		return nil, err
	}
	cfg.LoadedFrom = append(cfg.LoadedFrom, "environment")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(cfg *Config) error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", l.path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", l.path, err)
	}
	return nil
}

// applyEnvironment overlays GRAPHSYNC_* variables.
func (l *Loader) applyEnvironment(cfg *Config) error {
	strs := map[string]*string{
		"LOG_LEVEL":       &cfg.Logging.Level,
		"LOG_FORMAT":      &cfg.Logging.Format,
		"SERVICE_NAME":    &cfg.Logging.Service,
		"SERVER_HOST":     &cfg.Server.Host,
		"STORE_DRIVER":    &cfg.Store.Driver,
		"SQLITE_PATH":     &cfg.Store.SQLitePath,
		"TABLE_NAME":      &cfg.Store.TableName,
		"MIRROR_BUS_NAME": &cfg.Events.MirrorBusName,
		"MIRROR_SOURCE":   &cfg.Events.MirrorSource,
		"AWS_REGION":      &cfg.AWS.Region,
		"AWS_ENDPOINT":    &cfg.AWS.Endpoint,
		"OPEN_MARKER":     &cfg.Extraction.OpenMarker,
		"CLOSE_MARKER":    &cfg.Extraction.CloseMarker,
	}
	for name, dst := range strs {
		if val, ok := l.env(name); ok {
			*dst = val
		}
	}

	if val, ok := l.env("ENVIRONMENT"); ok {
		cfg.Environment = Environment(strings.ToLower(val))
	}

	ints := map[string]*int{
		"SERVER_PORT":      &cfg.Server.Port,
		"CACHE_MAX_ITEMS":  &cfg.Cache.MaxItems,
		"EVENT_QUEUE_SIZE": &cfg.Events.QueueSize,
		"MIRROR_BURST":     &cfg.Events.MirrorBurst,
		"CONTEXT_RADIUS":   &cfg.Extraction.ContextRadius,
	}
	for name, dst := range ints {
		if val, ok := l.env(name); ok {
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
			}
			*dst = n
		}
	}

	if val, ok := l.env("CACHE_TTL"); ok {
		ttl, err := parseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid %sCACHE_TTL: %w", envPrefix, err)
		}
		cfg.Cache.TTL = ttl
	}
	if val, ok := l.env("ALLOWED_ORIGINS"); ok {
		var origins []string
		for _, o := range strings.Split(val, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.AllowedOrigins = origins
	}
	if val, ok := l.env("MIRROR_RATE"); ok {
		rps, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %sMIRROR_RATE: %w", envPrefix, err)
		}
		cfg.Events.MirrorRate = rps
	}
	if val, ok := l.env("MIRROR_ENABLED"); ok {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %sMIRROR_ENABLED: %w", envPrefix, err)
		}
		cfg.Events.MirrorEnabled = enabled
	}
	return nil
}

func (l *Loader) env(name string) (string, bool) {
	val, ok := l.lookup(envPrefix + name)
	if !ok || strings.TrimSpace(val) == "" {
		return "", false
	}
	return strings.TrimSpace(val), true
}

// parseDuration accepts Go durations ("1h") and bare seconds ("3600").
func parseDuration(val string) (time.Duration, error) {
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(val)
}
