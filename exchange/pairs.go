package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
)

// ---------------------
// Types
// ---------------------

// AssetQuote represents a trading pair (base asset and quote currency)
type AssetQuote struct {
	Quote string `json:"quote"`
	Asset string `json:"asset"`
}

// PairService manages information about trading pairs
type PairService struct {
	pairMap map[string]AssetQuote
	mu      sync.RWMutex
}

// knownQuotes are tried as suffixes when a pair is missing from the
// registry, longest first so USDT wins over a hypothetical *T quote
var knownQuotes = []string{
	"FDUSD", "BUSD", "USDT", "USDC", "TUSD",
	"DAI", "BRL", "EUR", "TRY", "BTC", "ETH", "BNB",
}

// defaultPairService is the process-wide registry
var defaultPairService = &PairService{pairMap: make(map[string]AssetQuote)}

// NewPairService creates a pair service seeded from optional JSON data
func NewPairService(pairsData []byte) (*PairService, error) {
	service := &PairService{
		pairMap: make(map[string]AssetQuote),
	}

	if len(pairsData) > 0 {
		if err := json.Unmarshal(pairsData, &service.pairMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pairs data: %w", err)
		}
	}

	return service, nil
}

// ---------------------
// Pair Lookup Methods
// ---------------------

// SplitAssetQuote splits a pair into its asset and quote components.
// Pairs absent from the registry fall back to quote-suffix matching, so
// BTCUSDT resolves even before the registry is refreshed.
func SplitAssetQuote(pair string) (asset string, quote string) {
	defaultPairService.mu.RLock()
	data, exists := defaultPairService.pairMap[pair]
	defaultPairService.mu.RUnlock()

	if exists {
		return data.Asset, data.Quote
	}

	for _, q := range knownQuotes {
		if strings.HasSuffix(pair, q) && len(pair) > len(q) {
			return strings.TrimSuffix(pair, q), q
		}
	}
	return "", ""
}

// GetPair returns the AssetQuote information for a pair
func GetPair(pair string) (AssetQuote, bool) {
	defaultPairService.mu.RLock()
	defer defaultPairService.mu.RUnlock()

	data, exists := defaultPairService.pairMap[pair]
	return data, exists
}

// RegisterPair adds or replaces one registry entry
func RegisterPair(pair string, info AssetQuote) {
	defaultPairService.mu.Lock()
	defer defaultPairService.mu.Unlock()
	defaultPairService.pairMap[pair] = info
}

// ---------------------
// Pair Update Methods
// ---------------------

// UpdatePairs refreshes the registry from the Binance spot and futures
// exchange info endpoints
func UpdatePairs(ctx context.Context) error {
	spotClient := binance.NewClient("", "")
	spotInfo, err := spotClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to get spot exchange info: %w", err)
	}

	futureClient := futures.NewClient("", "")
	futureInfo, err := futureClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to get futures exchange info: %w", err)
	}

	newPairMap := make(map[string]AssetQuote)

	for _, info := range spotInfo.Symbols {
		newPairMap[info.Symbol] = AssetQuote{
			Quote: info.QuoteAsset,
			Asset: info.BaseAsset,
		}
	}

	for _, info := range futureInfo.Symbols {
		newPairMap[info.Symbol] = AssetQuote{
			Quote: info.QuoteAsset,
			Asset: info.BaseAsset,
		}
	}

	defaultPairService.mu.Lock()
	defaultPairService.pairMap = newPairMap
	defaultPairService.mu.Unlock()

	return nil
}

// LoadPairsFromFile seeds the registry from a JSON file written by
// SavePairsToFile
func LoadPairsFromFile(filename string) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read pairs file: %w", err)
	}

	pairMap := make(map[string]AssetQuote)
	if err := json.Unmarshal(content, &pairMap); err != nil {
		return fmt.Errorf("failed to unmarshal pairs file: %w", err)
	}

	defaultPairService.mu.Lock()
	defaultPairService.pairMap = pairMap
	defaultPairService.mu.Unlock()

	return nil
}

// SavePairsToFile saves the pair map to a file
func SavePairsToFile(filename string) error {
	defaultPairService.mu.RLock()
	defer defaultPairService.mu.RUnlock()

	content, err := json.MarshalIndent(defaultPairService.pairMap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pairs: %w", err)
	}

	if err := os.WriteFile(filename, content, 0644); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}

	return nil
}

// UpdateAndSavePairs updates and saves the pair map to a file
func UpdateAndSavePairs(ctx context.Context, filename string) error {
	if err := UpdatePairs(ctx); err != nil {
		return err
	}
	return SavePairsToFile(filename)
}
