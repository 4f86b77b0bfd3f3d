package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fno-desk/internal/types"
)

func TestParseConfigDefaults(t *testing.T) {
	c, err := ParseConfig([]byte("exchange: NFO\n"))
	require.NoError(t, err)

	assert.Equal(t, "DRY_RUN", c.Mode)
	assert.Equal(t, "NFO", c.Exchange)
	assert.Equal(t, "NRML", c.Product)
	assert.Equal(t, "LIMIT", c.Pricing.OrderType)
	assert.True(t, c.Pricing.RoundToTick)
	assert.True(t, c.Pricing.FallbackToMarket)
	assert.Equal(t, 2.0, c.Pricing.MaxAdjustmentPct)
	assert.Equal(t, 1.0, c.Broker.QuoteRPS)

	md, pos, pnl, acct := c.PollIntervals()
	assert.Equal(t, "2s", md.String())
	assert.Equal(t, "5s", pos.String())
	assert.Equal(t, "3s", pnl.String())
	assert.Equal(t, "15s", acct.String())

	h, m := c.EODCutoff()
	assert.Equal(t, 23, h)
	assert.Equal(t, 45, m)
}

func TestParseConfigExplicitFalse(t *testing.T) {
	c, err := ParseConfig([]byte(`
pricing:
  round_to_tick: false
  fallback_to_market: false
  tolerance_pct: 0.5
`))
	require.NoError(t, err)
	assert.False(t, c.Pricing.RoundToTick)
	assert.False(t, c.Pricing.FallbackToMarket)
	assert.Equal(t, 0.5, c.Pricing.TolerancePct)
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"mode":          "mode: PAPER\n",
		"exchange":      "exchange: NSE\n",
		"poll too slow": "poll:\n  positions_seconds: 30\n",
		"cutoff":        "eod:\n  cutoff: late\n",
		"watch key":     "watch: [CRUDEOIL]\n",
		"margin pct":    "protection:\n  max_margin_usage_pct: 120\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCredentialsRoundTrip(t *testing.T) {
	t.Setenv("KITE_API_KEY", "")
	t.Setenv("KITE_ACCESS_TOKEN", "")

	path := filepath.Join(t.TempDir(), "secrets", "credentials.json")
	require.NoError(t, SaveCredentials(path, types.Credentials{APIKey: "k", AccessToken: "tok"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	c, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "k", c.APIKey)
	assert.Equal(t, "tok", c.AccessToken)
}

func TestCredentialsEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, SaveCredentials(path, types.Credentials{APIKey: "file-key", AccessToken: "file-tok"}))

	t.Setenv("KITE_API_KEY", "")
	t.Setenv("KITE_ACCESS_TOKEN", "env-tok")

	c, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", c.APIKey)
	assert.Equal(t, "env-tok", c.AccessToken)
}

func TestCredentialsMissing(t *testing.T) {
	t.Setenv("KITE_API_KEY", "")
	t.Setenv("KITE_ACCESS_TOKEN", "")

	_, err := LoadCredentials(filepath.Join(t.TempDir(), "none.json"))
	assert.ErrorIs(t, err, ErrNoCredentials)
}
