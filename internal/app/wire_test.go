package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/xstockarb/internal/cache/memory"
	"github.com/alanyoungcy/xstockarb/internal/config"
	"github.com/alanyoungcy/xstockarb/internal/domain"
	"github.com/alanyoungcy/xstockarb/internal/events"
	"github.com/alanyoungcy/xstockarb/internal/store/sqlite"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	dir := t.TempDir()
	cfg.Monitor.OpportunityLogDir = filepath.Join(dir, "data")
	cfg.SQLite.Path = filepath.Join(dir, "data", "test.db")
	cfg.Assets = []config.AssetConfig{
		{Symbol: "TSLAx", Mint: "XsDoVfqeBukxuZHWhdvWHBhgEHjGNst4MLodqsJHzoB", FeedID: "0x16", Decimals: 8},
		{Symbol: "NVDAx", Mint: "Xsc9qvGR1efVDFGLrVsmkzv3qi45LTBjeUKSPmx9qEh", FeedID: "0x61", Decimals: 8},
	}
	return &cfg
}

func TestWire_LocalBackends(t *testing.T) {
	cfg := localConfig(t)

	deps, cleanup, err := Wire(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	assert.Equal(t, []domain.AssetConfig{
		{Symbol: "TSLAx", Mint: "XsDoVfqeBukxuZHWhdvWHBhgEHjGNst4MLodqsJHzoB", FeedID: "0x16", Decimals: 8},
		{Symbol: "NVDAx", Mint: "Xsc9qvGR1efVDFGLrVsmkzv3qi45LTBjeUKSPmx9qEh", FeedID: "0x61", Decimals: 8},
	}, deps.Assets)

	assert.IsType(t, &sqlite.Store{}, deps.TradeStore)
	assert.IsType(t, &sqlite.Store{}, deps.PositionStore)
	assert.IsType(t, &memory.PriceCache{}, deps.PriceCache)
	assert.IsType(t, &events.Bus{}, deps.SignalBus)
	assert.Nil(t, deps.LockManager)
	assert.Nil(t, deps.Archiver)
	assert.False(t, deps.Notifier.Enabled())
	assert.Equal(t, 0, deps.Wallets.Len())

	assert.Equal(t, filepath.Join(cfg.Monitor.OpportunityLogDir, "opportunities-multi.json"), deps.OpportunityLog.Path())

	require.Contains(t, deps.Health, "sqlite")
	assert.NoError(t, deps.Health["sqlite"](t.Context()))
}

func TestWire_AutoExecuteWithoutUsableKeys(t *testing.T) {
	cfg := localConfig(t)
	cfg.Monitor.AutoExecute = true
	cfg.Wallets.PrivateKeys = []string{"not-a-key"}

	_, _, err := Wire(t.Context(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoWallet)
}

func TestBps(t *testing.T) {
	assert.Equal(t, 50, bps(0.5))
	assert.Equal(t, 500, bps(5))
	assert.Equal(t, 3, bps(0.03))
}
