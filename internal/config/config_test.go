package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ENV", "")
	t.Setenv("ADMIN_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultInvoiceGraceDays, cfg.InvoiceGraceDays)
	assert.Equal(t, DefaultCurrency, cfg.Currency)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestValidateProductionRequiresAdminSecret(t *testing.T) {
	cfg := &Config{Env: "production", Currency: "USD"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_SECRET")

	cfg.AdminSecret = "s3cret"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{Env: "development", Currency: "USDX"}
	assert.Error(t, cfg.Validate())

	cfg = &Config{Env: "development", Currency: "USD", InvoiceGraceDays: -1}
	assert.Error(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("INVOICE_GRACE_DAYS", "14")
	t.Setenv("CURRENCY", "EUR")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 14, cfg.InvoiceGraceDays)
	assert.Equal(t, "EUR", cfg.Currency)
}
