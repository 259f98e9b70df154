// Package config loads the ingester's configuration (SPEC_FULL.md §4.J):
// a YAML file of regional MQTT subscriptions, overlaid with .env and
// process environment variables for deployment-specific secrets and
// tuning, validated before anything else is constructed.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rabarar/wesense-ingester/internal/cryptoutil"
	"github.com/rabarar/wesense-ingester/internal/model"
)

// RegionEntry is one region's MQTT subscription, as loaded from the
// regions YAML file.
type RegionEntry struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	Enabled  bool   `yaml:"enabled"`
}

// regionsFile is the on-disk shape of the regions YAML file: a map keyed
// by region tag.
type regionsFile map[model.RegionTag]RegionEntry

// Config is the fully-resolved, validated configuration.
type Config struct {
	Regions map[model.RegionTag]RegionEntry

	// Mode selects the channel-key profile: "public" uses the published
	// default key when ChannelKey is unset, "community" requires an
	// explicit ChannelKey since community channels never use the default.
	Mode string

	// ChannelKey is the 16-byte AES channel key used to decrypt encrypted
	// mesh packets. Empty means "use the published default public-channel
	// key" (cryptoutil.DefaultKey) — only valid in "public" mode.
	ChannelKey []byte

	OutputBroker   string
	OutputUsername string
	OutputPassword string
	RepublishEnabled bool

	ClickhouseAddr     string
	ClickhouseDB        string
	ClickhouseTable     string
	ClickhouseUser      string
	ClickhousePassword  string
	ClickhouseTLS       bool

	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    uint64
	RetryCap      time.Duration

	// DecodeWorkers is the size of the CPU-bound decode worker pool that
	// sits between the subscriber fleet and the correlator (SPEC_FULL.md
	// §5). DecodeQueueSize and CorrelatorQueueSize bound the two channels
	// on either side of it.
	DecodeWorkers       int
	DecodeQueueSize     int
	CorrelatorQueueSize int

	GeocodeOnlineBaseURL  string
	GeocodeOnlineUserAgent string
	GeocodeOnlineRatePerSec float64

	StateDir string // directory for position/pending/geocode snapshots

	LogLevel               string
	FutureTimestampLogPath string
	Timezone               string

	LogRotateMaxSizeMB  int
	LogRotateMaxBackups int
	LogRotateMaxAgeDays int

	MetricsAddr string

	IngestionNodeID string

	Debug bool
}

// Load reads regionsPath (YAML), overlays envPath (a .env file, if present)
// and the process environment, and validates the result. Both regionsPath
// and envPath may be empty to rely entirely on the process environment.
func Load(regionsPath, envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: loading env file: %w", err)
		}
	} else {
		_ = godotenv.Load() // best-effort .env in the working directory
	}

	regions, err := loadRegions(regionsPath)
	if err != nil {
		return nil, err
	}

	channelKey, err := decodeChannelKey(envOr("MESHTASTIC_CHANNEL_KEY", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Regions: regions,

		Mode:       envOr("MESHTASTIC_MODE", "public"),
		ChannelKey: channelKey,

		OutputBroker:     envOr("WESENSE_OUTPUT_BROKER", ""),
		OutputUsername:   envOr("WESENSE_OUTPUT_USERNAME", ""),
		OutputPassword:   envOr("WESENSE_OUTPUT_PASSWORD", ""),
		RepublishEnabled: envOrBool("WESENSE_REPUBLISH_ENABLED", true),

		ClickhouseAddr:     envOr("WESENSE_CLICKHOUSE_ADDR", "localhost:9440"),
		ClickhouseDB:       envOr("WESENSE_CLICKHOUSE_DB", "default"),
		ClickhouseTable:    envOr("WESENSE_CLICKHOUSE_TABLE", "environmental_readings"),
		ClickhouseUser:     envOr("WESENSE_CLICKHOUSE_USER", "default"),
		ClickhousePassword: envOr("WESENSE_CLICKHOUSE_PASSWORD", ""),
		ClickhouseTLS:      envOrBool("WESENSE_CLICKHOUSE_TLS", false),

		BatchSize:     envOrInt("WESENSE_BATCH_SIZE", 100),
		FlushInterval: envOrDuration("WESENSE_FLUSH_INTERVAL", 10*time.Second),
		MaxRetries:    uint64(envOrInt("WESENSE_SINK_MAX_RETRIES", 5)),
		RetryCap:      envOrDuration("WESENSE_SINK_RETRY_CAP", 60*time.Second),

		DecodeWorkers:       envOrInt("WESENSE_DECODE_WORKERS", 4),
		DecodeQueueSize:     envOrInt("WESENSE_DECODE_QUEUE_SIZE", 1024),
		CorrelatorQueueSize: envOrInt("WESENSE_CORRELATOR_QUEUE_SIZE", 256),

		GeocodeOnlineBaseURL:    envOr("WESENSE_GEOCODE_ONLINE_URL", ""),
		GeocodeOnlineUserAgent:  envOr("WESENSE_GEOCODE_USER_AGENT", "wesense-ingester/1.0"),
		GeocodeOnlineRatePerSec: envOrFloat("WESENSE_GEOCODE_RATE_PER_SEC", 1.0),

		StateDir: envOr("WESENSE_STATE_DIR", "./state"),

		LogLevel:               envOr("WESENSE_LOG_LEVEL", "info"),
		FutureTimestampLogPath: envOr("WESENSE_FUTURE_TIMESTAMP_LOG", "./state/future-timestamps.log"),
		Timezone:               envOr("WESENSE_TIMEZONE", ""),

		LogRotateMaxSizeMB:  envOrInt("WESENSE_LOG_ROTATE_MAX_SIZE_MB", 50),
		LogRotateMaxBackups: envOrInt("WESENSE_LOG_ROTATE_MAX_BACKUPS", 5),
		LogRotateMaxAgeDays: envOrInt("WESENSE_LOG_ROTATE_MAX_AGE_DAYS", 30),

		MetricsAddr: envOr("WESENSE_METRICS_ADDR", ":9090"),

		IngestionNodeID: envOr("WESENSE_INGESTION_NODE_ID", hostnameOrFallback()),

		Debug: envOrBool("WESENSE_DEBUG", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRegions(path string) (map[model.RegionTag]RegionEntry, error) {
	if path == "" {
		return map[model.RegionTag]RegionEntry{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading regions file: %w", err)
	}
	var rf regionsFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("config: parsing regions file: %w", err)
	}
	return map[model.RegionTag]RegionEntry(rf), nil
}

func (c *Config) validate() error {
	if c.Mode != "public" && c.Mode != "community" {
		return fmt.Errorf("config: MESHTASTIC_MODE must be %q or %q, got %q", "public", "community", c.Mode)
	}
	if c.Mode == "community" && len(c.ChannelKey) == 0 {
		return fmt.Errorf("config: MESHTASTIC_MODE=community requires MESHTASTIC_CHANNEL_KEY")
	}

	anyEnabled := false
	for tag, r := range c.Regions {
		if !r.Enabled {
			continue
		}
		anyEnabled = true
		if r.Broker == "" {
			return fmt.Errorf("config: region %q is enabled but has no broker configured", tag)
		}
		if r.Topic == "" {
			return fmt.Errorf("config: region %q is enabled but has no topic configured", tag)
		}
	}
	if len(c.Regions) > 0 && !anyEnabled {
		return fmt.Errorf("config: no region is enabled")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch size must be positive, got %d", c.BatchSize)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("config: flush interval must be positive, got %s", c.FlushInterval)
	}
	if c.DecodeWorkers <= 0 {
		return fmt.Errorf("config: decode worker count must be positive, got %d", c.DecodeWorkers)
	}
	if c.DecodeQueueSize <= 0 {
		return fmt.Errorf("config: decode queue size must be positive, got %d", c.DecodeQueueSize)
	}
	if c.CorrelatorQueueSize <= 0 {
		return fmt.Errorf("config: correlator queue size must be positive, got %d", c.CorrelatorQueueSize)
	}
	return nil
}

// decodeChannelKey decodes a base64-encoded 16-byte AES channel key. An
// empty string is valid and means "use the published default key."
func decodeChannelKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	key, err := cryptoutil.ParseStandardKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("config: decoding MESHTASTIC_CHANNEL_KEY: %w", err)
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("config: MESHTASTIC_CHANNEL_KEY must decode to 16 bytes, got %d", len(key))
	}
	return key, nil
}

func hostnameOrFallback() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "wesense-ingester"
	}
	return h
}
