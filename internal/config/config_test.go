package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
server:
  port: 8080
database:
  host: localhost
  user: staybook
  database: staybook
jwt:
  secret: 0123456789abcdef0123456789abcdef
booking:
  currency: khr
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "KHR", cfg.Booking.Currency)
	assert.Equal(t, 50, cfg.Booking.DepositPercent)
	assert.Equal(t, 15, cfg.Booking.PendingExpiryMinutes)
	assert.Equal(t, 48, cfg.Booking.ModifyCutoffHours)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "booking.refunds", cfg.RabbitMQ.RefundQueue)
	assert.Equal(t, "0 */5 * * * *", cfg.Scheduler.ExpirePending)
	assert.Equal(t, 60, cfg.Gateways.Bakong.PollMaxAttempts)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "sk_test_123", cfg.Gateways.Stripe.SecretKey)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"BadPort", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"ShortSecret", func(c *Config) { c.JWT.Secret = "short" }, "at least 32 characters"},
		{"DepositTooHigh", func(c *Config) { c.Booking.DepositPercent = 80 }, "deposit percent"},
		{"NoDatabase", func(c *Config) { c.Database.Host = "" }, "database host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Server:   ServerConfig{Port: 8080},
				Database: DatabaseConfig{Host: "localhost", User: "u", Database: "d"},
				JWT:      JWTConfig{Secret: "0123456789abcdef0123456789abcdef"},
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetSecurityLevel(t *testing.T) {
	assert.Equal(t, SecurityPublic, GetSecurityLevel("POST", "/webhooks/{gateway}"))
	assert.Equal(t, SecurityAdmin, GetSecurityLevel("POST", "/api/v1/admin/bookings/{id}/reject"))
	assert.Equal(t, SecurityAccess, GetSecurityLevel("GET", "/api/v1/bookings/{id}"))
	assert.Equal(t, SecurityAccess, GetSecurityLevel("DELETE", "/unlisted"))
}
