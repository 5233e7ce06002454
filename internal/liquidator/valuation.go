// Package liquidator fans out per-user revaluation work across a bounded
// worker pool driven by a continuous feeder and an eight-hour wall-clock
// timer, and issues forced-close transactions when a position's
// equity-to-margin ratio falls below the configured burst rate. Grounded
// on original_source/src/bot/machine.rs's Liquidation/compute_position
// family and the teacher's internal/risk/manager.go ticker-driven
// producer/consumer shape.
package liquidator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/chain"
	"github.com/scale-protocol/robot/internal/statemap"
)

// BurstTarget names one position that crossed the burst threshold and
// needs a forced-close transaction.
type BurstTarget struct {
	User       address.Address
	Market     address.Address
	Position   address.Address
	Pyth       address.Address
	Chainlink  address.Address
}

// IndependentResult is the outcome of revaluing one user's independent
// (isolated-margin) positions.
type IndependentResult struct {
	ProfitAccum float64
	Equity      float64 // last position's equity — see doc on ComputeIndependent
	Bursts      []BurstTarget
}

// ComputeIndependent evaluates every Independent-kind position in
// positions against live prices. Per spec.md §9's explicitly preserved
// quirk, Equity is overwritten by each position processed in turn rather
// than summed — only the last position's equity survives into the
// result.
func ComputeIndependent(sm *statemap.StateMap, authority address.Address, positions map[address.Address]chain.Position, burstRate float64) IndependentResult {
	var result IndependentResult

	for posAddr, p := range positions {
		if p.Kind != chain.Independent {
			continue
		}
		market, ok := sm.GetMarket(p.MarketAccount)
		if !ok {
			continue
		}
		price, ok := sm.GetPrice(market.PythPriceAccount)
		if !ok {
			continue
		}

		pl := p.PlAt(price)
		totalPl := pl + market.FundingCharge(p.Direction, 0)
		equityP := p.Margin + totalPl

		result.ProfitAccum += pl
		result.Equity = equityP

		if p.Margin != 0 && equityP/p.Margin < burstRate {
			result.Bursts = append(result.Bursts, BurstTarget{
				User:      authority,
				Market:    p.MarketAccount,
				Position:  posAddr,
				Pyth:      market.PythPriceAccount,
				Chainlink: market.ChainlinkPriceAccount,
			})
		}
	}
	return result
}

// PositionSort is the sortable summary of one full-position header,
// carrying the scaled-integer profit/margin spec.md §4.5.1 specifies.
type PositionSort struct {
	Offset        uint64
	Profit        int64 // round(pl*100)
	Direction     chain.Direction
	Margin        int64 // round(margin*100)
	MarketAddress address.Address
}

// FullResult is the outcome of revaluing one user's cross-margin headers.
type FullResult struct {
	TotalPl float64
	Sorted  []PositionSort
}

// FixedPrices is the BTC/ETH/SOL pyth readings required for full-position
// revaluation, looked up once per user per tick.
type FixedPrices struct {
	BTC chain.Price
	ETH chain.Price
	SOL chain.Price
}

func pairPrice(pair string, fp FixedPrices) (chain.Price, bool) {
	switch pair {
	case "BTC/USD":
		return fp.BTC, true
	case "ETH/USD":
		return fp.ETH, true
	case "SOL/USD":
		return fp.SOL, true
	default:
		return chain.Price{}, false
	}
}

// ComputeFullPositions evaluates every cross-margin header against the
// fixed BTC/ETH/SOL price triple. Headers whose market is missing from
// StateMap, or whose pair is not one of BTC/ETH/SOL, contribute nothing
// (spec.md §4.5.1).
func ComputeFullPositions(sm *statemap.StateMap, headers []chain.FullPositionHeader, fp FixedPrices) FullResult {
	var result FullResult

	for _, h := range headers {
		market, ok := sm.GetMarket(h.MarketAccount)
		if !ok {
			continue
		}
		price, ok := pairPrice(market.Pair, fp)
		if !ok {
			continue
		}

		pl := h.PlAt(price) + market.FundingCharge(h.Direction, h.FundSize)
		result.TotalPl += pl
		result.Sorted = append(result.Sorted, PositionSort{
			Offset:        h.PositionSeedOffset,
			Profit:        round100(pl),
			Direction:     h.Direction,
			Margin:        round100(h.Margin),
			MarketAddress: h.MarketAccount,
		})
	}
	return result
}

// SortDescendingByProfit orders list by profit descending (largest
// profit first): close winners first to realize equity fastest, per
// spec.md §4.5.1 and its worked Example 2.
func SortDescendingByProfit(list []PositionSort) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Profit > list[j].Profit
	})
}

// NeedsForcedClose reports whether a user's full-position book has
// fallen below the burst rate and must be partially liquidated.
func NeedsForcedClose(balance, totalPlFull, marginFullTotal, burstRate float64) bool {
	if marginFullTotal <= 0 {
		return false
	}
	return (balance+totalPlFull)/marginFullTotal < burstRate
}

// round100 converts a float pl/margin figure into the scaled integer
// PositionSort carries, via shopspring/decimal rather than float
// multiplication so the rounding is exact at the cent boundary.
func round100(f float64) int64 {
	return decimal.NewFromFloat(f).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
