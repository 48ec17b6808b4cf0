package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := FromEnv()
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, "FMCAB", cfg.Registry.NumberPrefix)
		assert.Equal(t, 3, cfg.Registry.SerialWidth)
		assert.Equal(t, 2, cfg.Registry.OverdueThresholdDays)
		assert.Equal(t, 5*time.Hour, cfg.Registry.AccessDuration)
		assert.Empty(t, cfg.Kafka.Brokers)
		assert.Equal(t, 300, cfg.Server.RateLimit)
		assert.Equal(t, time.Minute, cfg.Server.RateWindow)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("PIMS_NUMBER_PREFIX", "REG")
		t.Setenv("PIMS_SERIAL_WIDTH", "4")
		t.Setenv("PIMS_ACCESS_DURATION", "90m")
		t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
		t.Setenv("PIMS_RATE_LIMIT", "0")

		cfg := FromEnv()
		assert.Equal(t, "REG", cfg.Registry.NumberPrefix)
		assert.Equal(t, 4, cfg.Registry.SerialWidth)
		assert.Equal(t, 90*time.Minute, cfg.Registry.AccessDuration)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
		assert.Zero(t, cfg.Server.RateLimit)
	})

	t.Run("malformed numbers fall back", func(t *testing.T) {
		t.Setenv("PIMS_OVERDUE_THRESHOLD_DAYS", "two")
		assert.Equal(t, 2, FromEnv().Registry.OverdueThresholdDays)
	})
}
