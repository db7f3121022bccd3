package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseCurrencyRates(t *testing.T) {
	rates, err := parseCurrencyRates("EUR=1.08, zmw=0.037")
	require.NoError(t, err)
	require.Len(t, rates, 2)
	require.True(t, decimal.RequireFromString("1.08").Equal(rates["EUR"]))
	require.True(t, decimal.RequireFromString("0.037").Equal(rates["ZMW"]))
}

func TestParseCurrencyRatesEmpty(t *testing.T) {
	rates, err := parseCurrencyRates("")
	require.NoError(t, err)
	require.Empty(t, rates)
}

func TestParseCurrencyRatesInvalid(t *testing.T) {
	_, err := parseCurrencyRates("EUR")
	require.Error(t, err)

	_, err = parseCurrencyRates("EUR=abc")
	require.Error(t, err)

	_, err = parseCurrencyRates("EUR=-1")
	require.Error(t, err)
}

func TestLoadRequiresConnAndSecret(t *testing.T) {
	t.Setenv("POSTGRES_CONN", "")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("POSTGRES_CONN", "postgres://localhost/procurahub")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 25, cfg.InvitationBatchSize)
	require.Equal(t, "USD", cfg.BaseCurrency)
}
