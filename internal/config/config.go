package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigPathEnv names the environment variable holding an explicit config file path
const ConfigPathEnv = "ADSB2MQTT_CONFIG_PATH"

// Config holds all configuration for the daemon
type Config struct {
	BaseStation BaseStationConfig
	MQTT        MQTTConfig
	Location    LocationConfig
	AircraftDB  AircraftDBConfig
	History     HistoryConfig
	Engine      EngineConfig
	Log         LogConfig
}

// BaseStationConfig locates the dump1090 BaseStation (port 30003) feed
type BaseStationConfig struct {
	Addr string
	TLS  bool
}

// MQTTConfig holds broker settings
type MQTTConfig struct {
	Server         string
	Port           int
	Username       string
	Password       string
	UseTLS         bool
	ClientID       string
	TopicBase      string
	PublishTimeout time.Duration
}

// LocationConfig is the reference point flights are measured from
type LocationConfig struct {
	Latitude  float64
	Longitude float64
	RadiusNM  float64
	Timezone  string // Zone of the feed's timestamps; empty means local time
}

// AircraftDBConfig selects the aircraft type sources
type AircraftDBConfig struct {
	Path       string   // dump1090 JSON db directory
	SQLitePath string   // SQLite database with an aircraft table
	CSVPaths   []string // OpenSky CSV files loaded into SQLite when its table is empty
}

// HistoryConfig controls the published-sightings log
type HistoryConfig struct {
	Enabled       bool
	DBPath        string
	BatchSize     int
	FlushInterval time.Duration
}

// EngineConfig holds the aggregation timings
type EngineConfig struct {
	PublishInterval time.Duration
	EvictInterval   time.Duration
	FlightTTL       time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	File   string // Rotated log file; empty logs to stdout
}

// Load loads configuration from config file and environment variables
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/adsb2mqtt")
	v.AddConfigPath(".")

	if configPath := os.Getenv(ConfigPathEnv); configPath != "" {
		v.SetConfigFile(configPath)
	}

	// Read config file (if it exists)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error occurred
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults + env vars
	}

	v.SetEnvPrefix("ADSB2MQTT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("basestation.addr", "localhost:30003")
	v.SetDefault("basestation.tls", false)

	v.SetDefault("mqtt.server", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.use_tls", false)
	v.SetDefault("mqtt.client_id", "adsb2mqtt")
	v.SetDefault("mqtt.topic_base", "adsb")
	v.SetDefault("mqtt.publish_timeout", 5*time.Second)

	v.SetDefault("location.latitude", 0.0)
	v.SetDefault("location.longitude", 0.0)
	v.SetDefault("location.radius_nm", 10.0)
	v.SetDefault("location.timezone", "")

	v.SetDefault("aircraft_db.path", "")
	v.SetDefault("aircraft_db.sqlite_path", "")
	v.SetDefault("aircraft_db.csv_paths", []string{})

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db_path", "adsb2mqtt.db")
	v.SetDefault("history.batch_size", 100)
	v.SetDefault("history.flush_interval", 5*time.Second)

	v.SetDefault("engine.publish_interval", time.Second)
	v.SetDefault("engine.evict_interval", 10*time.Minute)
	v.SetDefault("engine.flight_ttl", 300*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		BaseStation: BaseStationConfig{
			Addr: v.GetString("basestation.addr"),
			TLS:  v.GetBool("basestation.tls"),
		},
		MQTT: MQTTConfig{
			Server:         v.GetString("mqtt.server"),
			Port:           v.GetInt("mqtt.port"),
			Username:       v.GetString("mqtt.username"),
			Password:       v.GetString("mqtt.password"),
			UseTLS:         v.GetBool("mqtt.use_tls"),
			ClientID:       v.GetString("mqtt.client_id"),
			TopicBase:      strings.TrimRight(v.GetString("mqtt.topic_base"), "/"),
			PublishTimeout: v.GetDuration("mqtt.publish_timeout"),
		},
		Location: LocationConfig{
			Latitude:  v.GetFloat64("location.latitude"),
			Longitude: v.GetFloat64("location.longitude"),
			RadiusNM:  v.GetFloat64("location.radius_nm"),
			Timezone:  v.GetString("location.timezone"),
		},
		AircraftDB: AircraftDBConfig{
			Path:       v.GetString("aircraft_db.path"),
			SQLitePath: v.GetString("aircraft_db.sqlite_path"),
			CSVPaths:   v.GetStringSlice("aircraft_db.csv_paths"),
		},
		History: HistoryConfig{
			Enabled:       v.GetBool("history.enabled"),
			DBPath:        v.GetString("history.db_path"),
			BatchSize:     v.GetInt("history.batch_size"),
			FlushInterval: v.GetDuration("history.flush_interval"),
		},
		Engine: EngineConfig{
			PublishInterval: v.GetDuration("engine.publish_interval"),
			EvictInterval:   v.GetDuration("engine.evict_interval"),
			FlightTTL:       v.GetDuration("engine.flight_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			File:   v.GetString("log.file"),
		},
	}
}

// TimeLocation returns the zone of the feed's timestamps
func (c *Config) TimeLocation() (*time.Location, error) {
	if c.Location.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Location.Timezone)
}

// validate validates the configuration values
func validate(cfg *Config) error {
	if cfg.BaseStation.Addr == "" {
		return fmt.Errorf("basestation.addr is required")
	}

	if cfg.MQTT.Server == "" {
		return fmt.Errorf("mqtt.server is required")
	}
	if cfg.MQTT.Port <= 0 || cfg.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port must be between 1 and 65535")
	}
	if cfg.MQTT.TopicBase == "" {
		return fmt.Errorf("mqtt.topic_base is required")
	}
	if cfg.MQTT.PublishTimeout <= 0 {
		return fmt.Errorf("mqtt.publish_timeout must be greater than 0")
	}

	if cfg.Location.Latitude < -90 || cfg.Location.Latitude > 90 {
		return fmt.Errorf("location.latitude must be between -90 and 90")
	}
	if cfg.Location.Longitude < -180 || cfg.Location.Longitude > 180 {
		return fmt.Errorf("location.longitude must be between -180 and 180")
	}
	if cfg.Location.RadiusNM <= 0 {
		return fmt.Errorf("location.radius_nm must be greater than 0")
	}
	if _, err := cfg.TimeLocation(); err != nil {
		return fmt.Errorf("invalid location.timezone: %w", err)
	}

	if len(cfg.AircraftDB.CSVPaths) > 0 && cfg.AircraftDB.SQLitePath == "" {
		return fmt.Errorf("aircraft_db.csv_paths requires aircraft_db.sqlite_path")
	}

	if cfg.History.Enabled {
		if cfg.History.DBPath == "" {
			return fmt.Errorf("history.db_path is required when history is enabled")
		}
		if cfg.History.BatchSize <= 0 {
			return fmt.Errorf("history.batch_size must be greater than 0")
		}
		if cfg.History.FlushInterval <= 0 {
			return fmt.Errorf("history.flush_interval must be greater than 0")
		}
	}

	if cfg.Engine.PublishInterval <= 0 {
		return fmt.Errorf("engine.publish_interval must be greater than 0")
	}
	if cfg.Engine.EvictInterval <= 0 {
		return fmt.Errorf("engine.evict_interval must be greater than 0")
	}
	if cfg.Engine.FlightTTL <= 0 {
		return fmt.Errorf("engine.flight_ttl must be greater than 0")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Log.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[strings.ToLower(cfg.Log.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", cfg.Log.Format)
	}

	return nil
}
