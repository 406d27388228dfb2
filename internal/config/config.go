package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config is the resolved process configuration for cmd/server.
type Config struct {
	Port      string
	LogMode   string
	PlansPath string

	StoreDriver   string
	DatabaseURL   string
	ChangeChannel string

	BusDriver     string
	RedisAddr     string
	EventStream   string
	RecoveryQueue string
	AlertChannel  string
	EventSource   string

	LivenessSchedule     string
	LivenessPageSize     int
	DefaultShipmentClass string
}

// LoadDotEnv reads a .env file if present. A missing file is reported, not fatal.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

// Get returns the trimmed value of key, or fallback when unset or blank.
func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// GetInt parses key as a positive integer, falling back when unset.
func GetInt(key string, fallback int) (int, error) {
	raw := Get(key, "")
	if raw == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer: %w", key, raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %d", key, n)
	}
	return n, nil
}

// Load resolves Config from the environment and validates driver requirements.
func Load() (Config, error) {
	pageSize, err := GetInt("LIVENESS_PAGE_SIZE", 100)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:      Get("PORT", "8080"),
		LogMode:   Get("LOG_MODE", "dev"),
		PlansPath: Get("PLANS_PATH", ""),

		StoreDriver:   strings.ToLower(Get("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:   Get("DATABASE_URL", ""),
		ChangeChannel: Get("CHANGE_CHANNEL", "execution_record_changes"),

		BusDriver:     strings.ToLower(Get("BUS_DRIVER", DriverRedis)),
		RedisAddr:     Get("REDIS_ADDR", ""),
		EventStream:   Get("EVENT_STREAM", "parcel-events"),
		RecoveryQueue: Get("RECOVERY_QUEUE", "parcel-recovery"),
		AlertChannel:  Get("ALERT_CHANNEL", "parcel-alerts"),
		EventSource:   Get("EVENT_SOURCE", "event.management"),

		LivenessSchedule:     Get("LIVENESS_SCHEDULE", "@every 5m"),
		LivenessPageSize:     pageSize,
		DefaultShipmentClass: Get("DEFAULT_SHIPMENT_CLASS", ""),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.BusDriver {
	case DriverRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR is required when BUS_DRIVER=redis")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown BUS_DRIVER %q", c.BusDriver)
	}

	return nil
}
