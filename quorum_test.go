package quorum

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/quorum/core"
	"github.com/quorumtrade/quorum/exchange"
	"github.com/quorumtrade/quorum/indicator"
	"github.com/quorumtrade/quorum/storage"
)

func testBotConfig() core.Config {
	cfg := core.DefaultConfig()
	cfg.Exchange.Pair = "BTCUSDT"
	return cfg
}

func testBotExchange(t *testing.T) *exchange.PaperWallet {
	t.Helper()
	return exchange.NewPaperWallet("USDT", core.NewNopLogger(),
		exchange.WithPaperBalance(10000),
		exchange.WithDataFeed(newStubFeeder("BTCUSDT")),
	)
}

func testBotStorage(t *testing.T) Option {
	t.Helper()
	st, err := storage.NewFromMemory()
	require.NoError(t, err)
	return WithStorage(st)
}

func TestNewBotDefaultWiring(t *testing.T) {
	bot, err := NewBot(testBotConfig(), testBotExchange(t), testBotStorage(t))
	require.NoError(t, err)

	require.NotNil(t, bot.Controller())
	require.NotNil(t, bot.Events())
	require.NotNil(t, bot.Trader())
	require.Nil(t, bot.Hedger())

	// the built-in strategy set is in place when none is given
	require.GreaterOrEqual(t, bot.Trader().WarmupPeriod(), indicator.MinHistory)
}

func TestNewBotCustomStrategies(t *testing.T) {
	voters := newVoters(core.SignalLong, 0.9)
	bot, err := NewBot(testBotConfig(), testBotExchange(t), testBotStorage(t),
		WithStrategies(voters[0], voters[1], voters[2]))
	require.NoError(t, err)

	require.Equal(t, indicator.MinHistory, bot.Trader().WarmupPeriod())
}

func TestNewBotHedgeModeReplacesTrader(t *testing.T) {
	cfg := testBotConfig()
	cfg.Hedge.Enabled = true
	cfg.Exchange.PositionMode = core.PositionModeHedge

	bot, err := NewBot(cfg, testBotExchange(t), testBotStorage(t))
	require.NoError(t, err)

	require.NotNil(t, bot.Hedger())
	require.Nil(t, bot.Trader())
}

func TestNewBotRejectsUnknownPair(t *testing.T) {
	cfg := testBotConfig()
	cfg.Exchange.Pair = "XYZ"

	_, err := NewBot(cfg, testBotExchange(t), testBotStorage(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid pair")
}

func TestNewBotRejectsInvalidConfig(t *testing.T) {
	cfg := testBotConfig()
	cfg.Risk.StopLossPct = 0

	_, err := NewBot(cfg, testBotExchange(t), testBotStorage(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "stop_loss_pct")
}
