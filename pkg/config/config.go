package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers supported by the placement core.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Default rubric layout used when no override is configured.
const (
	defaultDisciplineSlots   = "attendance:1,punctuality:1,attire:1,compliance:1,responsibility:1,teamwork:1"
	defaultProfessionalSlots = "technical_skill:2,initiative:1,communication:1"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Storage    StorageConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Evaluation EvaluationConfig
	Events     EventsConfig
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
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
	CacheTTL time.Duration
}

// JWTConfig holds the verification settings for tokens issued by the auth service.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RubricSlot is a single scored criterion with a fixed cap.
type RubricSlot struct {
	Name     string
	MaxValue float64
}

// RubricSection groups slots whose subtotal is reported separately.
type RubricSection struct {
	Name  string
	Slots []RubricSlot
}

// EvaluationConfig carries the tunable scoring constants.
type EvaluationConfig struct {
	MentorWeight  float64
	TeacherWeight float64
	SelfWeight    float64
	Sections      []RubricSection
}

// EventsConfig sizes the background queues for lifecycle events and seat release retries.
type EventsConfig struct {
	Workers           int
	BufferSize        int
	MaxRetries        int
	ReleaseRetryDelay time.Duration
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
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Storage = StorageConfig{Driver: strings.ToLower(v.GetString("STORAGE_DRIVER"))}
	if cfg.Storage.Driver != StorageMemory && cfg.Storage.Driver != StoragePostgres {
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.Storage.Driver)
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
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
		CacheTTL: parseDuration(v.GetString("AGGREGATE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	discipline, err := ParseSlots(v.GetString("RUBRIC_DISCIPLINE_SLOTS"))
	if err != nil {
		return nil, fmt.Errorf("RUBRIC_DISCIPLINE_SLOTS: %w", err)
	}
	professional, err := ParseSlots(v.GetString("RUBRIC_PROFESSIONAL_SLOTS"))
	if err != nil {
		return nil, fmt.Errorf("RUBRIC_PROFESSIONAL_SLOTS: %w", err)
	}
	cfg.Evaluation = EvaluationConfig{
		MentorWeight:  v.GetFloat64("EVALUATION_WEIGHT_MENTOR"),
		TeacherWeight: v.GetFloat64("EVALUATION_WEIGHT_TEACHER"),
		SelfWeight:    v.GetFloat64("EVALUATION_WEIGHT_SELF"),
		Sections: []RubricSection{
			{Name: "discipline", Slots: discipline},
			{Name: "professional", Slots: professional},
		},
	}

	cfg.Events = EventsConfig{
		Workers:           v.GetInt("EVENTS_WORKERS"),
		BufferSize:        v.GetInt("EVENTS_BUFFER"),
		MaxRetries:        v.GetInt("EVENTS_MAX_RETRIES"),
		ReleaseRetryDelay: parseDuration(v.GetString("SEAT_RELEASE_RETRY_DELAY"), 2*time.Second),
	}

	return cfg, nil
}

// DefaultEvaluation returns the stock rubric and role weights.
func DefaultEvaluation() EvaluationConfig {
	discipline, _ := ParseSlots(defaultDisciplineSlots)
	professional, _ := ParseSlots(defaultProfessionalSlots)
	return EvaluationConfig{
		MentorWeight:  0.5,
		TeacherWeight: 0.4,
		SelfWeight:    0.1,
		Sections: []RubricSection{
			{Name: "discipline", Slots: discipline},
			{Name: "professional", Slots: professional},
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("STORAGE_DRIVER", StorageMemory)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "internship_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("AGGREGATE_CACHE_TTL", "5m")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("EVALUATION_WEIGHT_MENTOR", 0.5)
	v.SetDefault("EVALUATION_WEIGHT_TEACHER", 0.4)
	v.SetDefault("EVALUATION_WEIGHT_SELF", 0.1)
	v.SetDefault("RUBRIC_DISCIPLINE_SLOTS", defaultDisciplineSlots)
	v.SetDefault("RUBRIC_PROFESSIONAL_SLOTS", defaultProfessionalSlots)

	v.SetDefault("EVENTS_WORKERS", 2)
	v.SetDefault("EVENTS_BUFFER", 64)
	v.SetDefault("EVENTS_MAX_RETRIES", 3)
	v.SetDefault("SEAT_RELEASE_RETRY_DELAY", "2s")
}

// ParseSlots reads "name:max,name:max" into rubric slots.
func ParseSlots(raw string) ([]RubricSlot, error) {
	parts := splitAndTrim(raw)
	if len(parts) == 0 {
		return nil, errors.New("at least one slot required")
	}
	slots := make([]RubricSlot, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		name, rawMax, ok := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed slot %q", part)
		}
		max, err := strconv.ParseFloat(strings.TrimSpace(rawMax), 64)
		if err != nil || max <= 0 {
			return nil, fmt.Errorf("slot %q needs a positive cap", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate slot %q", name)
		}
		seen[name] = struct{}{}
		slots = append(slots, RubricSlot{Name: name, MaxValue: max})
	}
	return slots, nil
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
