package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays("mon, Tue,wed,mon")
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday}, days)

	_, err = ParseWeekdays("mon,funday")
	assert.Error(t, err)

	_, err = ParseWeekdays(" , ")
	assert.Error(t, err)
}

func TestLoadRequiresDSNAndSecret(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("JWT_SECRET", "x")
	_, err := Load()
	assert.EqualError(t, err, "POSTGRES_DSN is required")

	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("JWT_SECRET", "")
	_, err = Load()
	assert.EqualError(t, err, "JWT_SECRET is required")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REDIS_URL", "redis://bob:pw@cache:6380")
	t.Setenv("LOCK_TTL", "3")
	t.Setenv("CLINIC_TIMEZONE", "UTC")
	t.Setenv("CLINIC_WORKING_DAYS", "")
	t.Setenv("AMQP_URL", "")
	t.Setenv("AMQP_EVENTS_QUEUE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cache:6380", cfg.RedisAddr)
	assert.Equal(t, "bob", cfg.RedisUsername)
	assert.Equal(t, "pw", cfg.RedisPassword)
	assert.Equal(t, 3*time.Second, cfg.LockTTL)
	assert.Equal(t, "UTC", cfg.Location.String())
	assert.Len(t, cfg.WorkingDays, 5)
	assert.Empty(t, cfg.AMQPURL)
	assert.Equal(t, "appointment.events", cfg.EventsQueue)
}
