package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "memory", cfg.Broker.Backend)
	assert.Equal(t, 200*time.Millisecond, cfg.Notification.Pacing)
	assert.Equal(t, 5*time.Second, cfg.Postgres.TxTimeout)
	assert.Equal(t, []string{"ron", "eur"}, cfg.Stripe.AllowedDonationCurrencies)
	assert.Empty(t, cfg.Postgres.URL)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 5, cfg.RateLimit.Contact)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{
		"BROKER_BACKEND":                     "kafka",
		"KAFKA_BROKERS":                      "k1:9092,k2:9092",
		"STRIPE_PLAN_PRICES":                 "supporter:price_1,family:price_2",
		"STRIPE_DONATION_WEBHOOK_SECRET":     "whsec_d",
		"STRIPE_SUBSCRIPTION_WEBHOOK_SECRET": "whsec_s",
		"NOTIFY_PACING":                      "1s",
		"LOG_FORMAT":                         "text",
	}})
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, map[string]string{"supporter": "price_1", "family": "price_2"}, cfg.Stripe.PlanPrices)
	assert.Equal(t, "whsec_d", cfg.Stripe.WebhookSecret("donations"))
	assert.Equal(t, "whsec_s", cfg.Stripe.WebhookSecret("subscriptions"))
	assert.Equal(t, time.Second, cfg.Notification.Pacing)
}

func TestParse_InvalidBackend(t *testing.T) {
	_, err := Parse(env.Options{Environment: map[string]string{
		"BROKER_BACKEND": "rabbit",
		"LOG_FORMAT":     "xml",
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROKER_BACKEND")
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}
