package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/outreach?sslmode=disable")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 100, cfg.HTTP.MaxUploadRows)
	assert.Equal(t, 10*time.Second, cfg.HTTP.RateLimitWindow)
	assert.Equal(t, 50, cfg.Schedule.DailyCap)
	assert.Equal(t, ClockTime{Hour: 9, Minute: 59, Second: 21}, cfg.Schedule.SendTime)
	assert.Equal(t, 40*time.Second, cfg.Schedule.MinSendDelay)
	assert.Equal(t, 160*time.Second, cfg.Schedule.MaxSendDelay)
	assert.Equal(t, "redis", cfg.Queue.Provider)
	assert.Equal(t, "std_json", string(cfg.Log.Provider))
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SEND_TIME", "08:30:00")
	t.Setenv("DAILY_CAP", "20")
	t.Setenv("QUEUE_PROVIDER", "amqp")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "08:30:00", cfg.Schedule.SendTime.String())
	assert.Equal(t, 20, cfg.Schedule.DailyCap)
	assert.Equal(t, "amqp", cfg.Queue.Provider)
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	require.NoError(t, os.Unsetenv("API_KEY"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY")
}

func TestLoad_InvalidSendTime(t *testing.T) {
	setRequired(t)
	t.Setenv("SEND_TIME", "25:00")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to envconfig.Process")
}

func TestValidate(t *testing.T) {
	base := Config{
		Queue:    QueueConfig{Provider: "memory"},
		Schedule: ScheduleConfig{DailyCap: 50, BatchBase: 50, BatchJitter: 10, MinSendDelay: time.Second, MaxSendDelay: 2 * time.Second},
	}
	require.NoError(t, base.Validate())

	bad := base
	bad.Schedule.BatchJitter = 50
	assert.Error(t, bad.Validate())

	bad = base
	bad.Queue.Provider = "kafka"
	assert.Error(t, bad.Validate())

	bad = base
	bad.Schedule.MinSendDelay = time.Minute
	assert.Error(t, bad.Validate())
}
