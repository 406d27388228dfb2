package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("BUS_DRIVER", "memory")
	t.Setenv("LIVENESS_PAGE_SIZE", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "@every 5m", cfg.LivenessSchedule)
	require.Equal(t, 100, cfg.LivenessPageSize)
	require.Equal(t, "event.management", cfg.EventSource)
	require.Empty(t, cfg.DefaultShipmentClass)
}

func TestLoadRequiresDriverSettings(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BUS_DRIVER", "memory")

	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("BUS_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "")

	_, err = Load()
	require.ErrorContains(t, err, "REDIS_ADDR")
}

func TestGetIntRejectsGarbage(t *testing.T) {
	t.Setenv("LIVENESS_PAGE_SIZE", "lots")
	_, err := GetInt("LIVENESS_PAGE_SIZE", 1)
	require.Error(t, err)

	t.Setenv("LIVENESS_PAGE_SIZE", "-3")
	_, err = GetInt("LIVENESS_PAGE_SIZE", 1)
	require.Error(t, err)
}
