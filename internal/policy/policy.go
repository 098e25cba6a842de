package policy

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPack     = errors.New("invalid credits pack")
	ErrInvalidCurrency = errors.New("unsupported currency")
	ErrInvalidDuration = errors.New("unsupported test duration")
)

// RewardTier maps a declared task duration to the per-tester reward and the
// tester cap. The escrow a posting locks is always RewardPerTester*MaxTesters;
// the tier table is policy only and the ledger engine never assumes it.
type RewardTier struct {
	MaxMinutes      int
	RewardPerTester int64
	MaxTesters      int
}

var rewardTiers = []RewardTier{
	{MaxMinutes: 10, RewardPerTester: 1, MaxTesters: 3},
	{MaxMinutes: 20, RewardPerTester: 2, MaxTesters: 5},
	{MaxMinutes: 30, RewardPerTester: 3, MaxTesters: 10},
}

// Durations a founder can declare when posting, in minutes.
var allowedDurations = map[int]bool{5: true, 10: true, 15: true, 30: true}

func TierForDuration(minutes int) (RewardTier, error) {
	if !allowedDurations[minutes] {
		return RewardTier{}, ErrInvalidDuration
	}
	for _, tier := range rewardTiers {
		if minutes <= tier.MaxMinutes {
			return tier, nil
		}
	}
	return rewardTiers[len(rewardTiers)-1], nil
}

// CreditPack is a purchasable credit bundle with fixed prices in minor
// currency units. Changing this table never changes the ledger or
// reconciliation contracts.
type CreditPack struct {
	Credits int64
	Prices  map[string]int64
}

var creditPacks = []CreditPack{
	{Credits: 10, Prices: map[string]int64{"inr": 39900, "usd": 500}},
	{Credits: 25, Prices: map[string]int64{"inr": 89900, "usd": 1000}},
	{Credits: 60, Prices: map[string]int64{"inr": 199900, "usd": 2000}},
}

func Packs() []CreditPack {
	packs := make([]CreditPack, len(creditPacks))
	copy(packs, creditPacks)
	return packs
}

// PriceFor resolves the price of a pack, rejecting unknown credit amounts and
// currencies before any checkout session is created.
func PriceFor(credits int64, currency string) (int64, error) {
	for _, pack := range creditPacks {
		if pack.Credits != credits {
			continue
		}
		price, ok := pack.Prices[currency]
		if !ok {
			return 0, ErrInvalidCurrency
		}
		return price, nil
	}
	return 0, ErrInvalidPack
}

// DisplayPrice renders a minor-unit price as a decimal string, e.g. 89900 ->
// "899.00".
func DisplayPrice(minor int64) string {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(100)).StringFixed(2)
}

// UnitRate is the displayed per-credit price of a pack.
func UnitRate(priceMinor, credits int64) string {
	if credits == 0 {
		return "0.00"
	}
	return decimal.NewFromInt(priceMinor).
		Div(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(credits)).
		RoundBank(2).
		StringFixed(2)
}
