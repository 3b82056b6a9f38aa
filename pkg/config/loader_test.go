package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridehq/subscription-engine/pkg/config"
)

type billingTestConfig struct {
	WebhookKey string `env:"TEST_BILLING_WEBHOOK_KEY" envDefault:"fallback-key"`
	CronSecret string `env:"TEST_BILLING_CRON_SECRET"`
	GraceDays  int    `env:"TEST_BILLING_GRACE_DAYS" envDefault:"3"`
}

type requiredTestConfig struct {
	Token string `env:"TEST_REQUIRED_TOKEN_MISSING,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults apply when env is unset", func(t *testing.T) {
		var cfg billingTestConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "fallback-key", cfg.WebhookKey)
		assert.Equal(t, 3, cfg.GraceDays)
	})

	t.Run("same type is served from cache", func(t *testing.T) {
		var first billingTestConfig
		require.NoError(t, config.Load(&first))

		t.Setenv("TEST_BILLING_WEBHOOK_KEY", "changed-after-first-load")

		var second billingTestConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, first.WebhookKey, second.WebhookKey)
	})

	t.Run("missing required variable fails", func(t *testing.T) {
		var cfg requiredTestConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil destination", func(t *testing.T) {
		err := config.Load[billingTestConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})
}
