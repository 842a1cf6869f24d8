package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Database drivers understood by pkg/database.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Presence sources selectable for server-side scanning.
const (
	PresenceSourceNone      = "none"
	PresenceSourceSimulator = "simulator"
)

// DefaultPeriodTable is the bell schedule used when PERIOD_TABLE is unset.
const DefaultPeriodTable = "1=9:00 AM-9:50 AM,2=9:50 AM-10:40 AM,3=10:50 AM-11:40 AM,4=11:40 AM-12:30 PM,5=1:20 PM-2:10 PM,6=2:10 PM-3:00 PM,7=3:00 PM-3:50 PM"

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Cache    CacheConfig
	Periods  PeriodsConfig
	Sessions SessionsConfig
	Realtime RealtimeConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig tunes registry read caching.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// PeriodsConfig holds the raw bell schedule, parsed by the timeslot package.
type PeriodsConfig struct {
	Table string
}

// SessionsConfig governs attendance session behaviour.
type SessionsConfig struct {
	SignalThresholdEnabled bool
	SignalThresholdDBM     int
	ArchiveCron            string
	ArchiveRetention       time.Duration
}

// RealtimeConfig configures the presence event channel.
type RealtimeConfig struct {
	SendBuffer       int
	RelayEnabled     bool
	ChannelPrefix    string
	PresenceSource   string
	SimulatorDelay   time.Duration
	ReconnectBackoff time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		SQLitePath:   v.GetString("DB_SQLITE_PATH"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_REGISTRY_CACHE"),
		TTL:     parseDuration(v.GetString("REGISTRY_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Periods = PeriodsConfig{Table: v.GetString("PERIOD_TABLE")}

	cfg.Sessions = SessionsConfig{
		SignalThresholdEnabled: v.GetBool("SIGNAL_THRESHOLD_ENABLED"),
		SignalThresholdDBM:     v.GetInt("SIGNAL_THRESHOLD_DBM"),
		ArchiveCron:            v.GetString("SESSION_ARCHIVE_CRON"),
		ArchiveRetention:       parseDuration(v.GetString("SESSION_ARCHIVE_RETENTION"), 2*time.Hour),
	}

	cfg.Realtime = RealtimeConfig{
		SendBuffer:       v.GetInt("WS_SEND_BUFFER"),
		RelayEnabled:     v.GetBool("REALTIME_RELAY_ENABLED"),
		ChannelPrefix:    v.GetString("REALTIME_CHANNEL_PREFIX"),
		PresenceSource:   strings.ToLower(v.GetString("PRESENCE_SOURCE")),
		SimulatorDelay:   parseDuration(v.GetString("SIMULATOR_DELAY"), 2*time.Second),
		ReconnectBackoff: parseDuration(v.GetString("RECONNECT_BACKOFF"), 3*time.Second),
	}

	if cfg.Realtime.RelayEnabled && !cfg.Redis.Enabled {
		return nil, errors.New("REALTIME_RELAY_ENABLED requires REDIS_ENABLED")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "presence_attendance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_SQLITE_PATH", "./presence.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "sma-presence-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_REGISTRY_CACHE", false)
	v.SetDefault("REGISTRY_CACHE_TTL", "10m")

	v.SetDefault("PERIOD_TABLE", DefaultPeriodTable)

	v.SetDefault("SIGNAL_THRESHOLD_ENABLED", false)
	v.SetDefault("SIGNAL_THRESHOLD_DBM", -85)
	v.SetDefault("SESSION_ARCHIVE_CRON", "*/15 * * * *")
	v.SetDefault("SESSION_ARCHIVE_RETENTION", "2h")

	v.SetDefault("WS_SEND_BUFFER", 32)
	v.SetDefault("REALTIME_RELAY_ENABLED", false)
	v.SetDefault("REALTIME_CHANNEL_PREFIX", "presence")
	v.SetDefault("PRESENCE_SOURCE", PresenceSourceNone)
	v.SetDefault("SIMULATOR_DELAY", "2s")
	v.SetDefault("RECONNECT_BACKOFF", "3s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
