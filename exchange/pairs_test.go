package exchange

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitAssetQuoteSuffixFallback(t *testing.T) {
	asset, quote := SplitAssetQuote("BTCUSDT")
	require.Equal(t, "BTC", asset)
	require.Equal(t, "USDT", quote)

	asset, quote = SplitAssetQuote("ETHBTC")
	require.Equal(t, "ETH", asset)
	require.Equal(t, "BTC", quote)

	// Longer quotes win over shorter suffixes
	asset, quote = SplitAssetQuote("BTCFDUSD")
	require.Equal(t, "BTC", asset)
	require.Equal(t, "FDUSD", quote)

	asset, quote = SplitAssetQuote("NONSENSE!")
	require.Equal(t, "", asset)
	require.Equal(t, "", quote)
}

func TestSplitAssetQuoteRegistry(t *testing.T) {
	RegisterPair("WEIRDPAIR", AssetQuote{Asset: "WEIRD", Quote: "PAIR"})

	asset, quote := SplitAssetQuote("WEIRDPAIR")
	require.Equal(t, "WEIRD", asset)
	require.Equal(t, "PAIR", quote)
}

func TestNewPairService(t *testing.T) {
	service, err := NewPairService([]byte(`{"BTCUSDT":{"asset":"BTC","quote":"USDT"}}`))
	require.NoError(t, err)
	require.Len(t, service.pairMap, 1)

	_, err = NewPairService([]byte(`{invalid`))
	require.Error(t, err)
}
