package core

import "fmt"

// Balance represents the available funds for a specific asset
type Balance struct {
	Asset    string
	Free     float64
	Lock     float64
	Leverage float64
}

// Total returns the full balance including locked funds
func (b Balance) Total() float64 { return b.Free + b.Lock }

// Account represents a trading account with multiple asset balances
type Account struct {
	Balances []Balance
}

func NewAccount(balances []Balance) (Account, error) {
	if len(balances) == 0 {
		return Account{}, fmt.Errorf("invalid account balances")
	}

	return Account{Balances: balances}, nil
}

// Balance retrieves the balances for a specific asset and quote pair.
// If no balance exists for either ticker, an empty Balance is returned.
func (a Account) Balance(assetTick, quoteTick string) (Balance, Balance) {
	var assetBalance, quoteBalance Balance

	for _, balance := range a.Balances {
		switch balance.Asset {
		case assetTick:
			assetBalance = balance
		case quoteTick:
			quoteBalance = balance
		}
	}

	return assetBalance, quoteBalance
}

// Equity calculates the total equity in the account, the sum of free and
// locked amounts across all assets
func (a Account) Equity() float64 {
	var total float64

	for _, balance := range a.Balances {
		total += balance.Total()
	}

	return total
}
