package liquidator

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/chain"
	"github.com/scale-protocol/robot/internal/statemap"
)

// SeedPosition is the derivation seed used to recompute a full-position
// header's on-chain address from (wallet authority, user account,
// offset) when a
// forced partial close needs a concrete position address to burst.
const SeedPosition = "position"

// BurstClient is the subset of ChainClient the liquidator drives.
type BurstClient interface {
	BurstPosition(ctx context.Context, user, market, position, pyth, chainlink address.Address) error
}

// FixedPriceSource resolves the BTC/ETH/SOL pyth price accounts
// configured for the active cluster.
type FixedPriceSource interface {
	FixedPythAddresses() (btc, eth, sol address.Address, ok bool)
}

// Config bundles the liquidator's tunables.
type Config struct {
	Workers   int // floor 2
	BurstRate float64
}

func (c Config) workers() int {
	if c.Workers < 2 {
		return 2
	}
	return c.Workers
}

// Liquidator owns the worker pool, the continuous feeder, and the
// eight-hour funding-settlement timer. Grounded on
// original_source/src/bot/machine.rs's Liquidation::new (bounded channel
// sizing, funding-timer goroutine, continuous feeder, per-worker select)
// and the teacher's internal/risk/manager.go ticker-driven producer shape.
type Liquidator struct {
	sm     *statemap.StateMap
	client BurstClient
	prices FixedPriceSource
	cfg    Config
	logger *slog.Logger

	taskCh  chan address.Address
	timerCh chan address.Address

	funding *fundingTracker

	wg sync.WaitGroup
}

// New builds a Liquidator; call Run to start the feeders and workers.
func New(sm *statemap.StateMap, client BurstClient, prices FixedPriceSource, cfg Config, logger *slog.Logger) *Liquidator {
	w := cfg.workers()
	return &Liquidator{
		sm:      sm,
		client:  client,
		prices:  prices,
		cfg:     cfg,
		logger:  logger.With("component", "liquidator"),
		taskCh:  make(chan address.Address, w),
		timerCh: make(chan address.Address, w),
		funding: newFundingTracker(),
	}
}

// Run starts the worker pool plus the continuous and timer feeders. It
// returns immediately; call Stop to await shutdown after cancelling ctx.
func (l *Liquidator) Run(ctx context.Context) {
	for i := 0; i < l.cfg.workers(); i++ {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.worker(ctx)
		}()
	}

	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		l.continuousFeeder(ctx)
	}()
	go func() {
		defer l.wg.Done()
		l.timerFeeder(ctx)
	}()
}

// Stop awaits every worker and feeder. Callers cancel the shared context
// first.
func (l *Liquidator) Stop() {
	l.wg.Wait()
}

// continuousFeeder repeatedly walks every known user address onto taskCh,
// looping forever until ctx is cancelled.
func (l *Liquidator) continuousFeeder(ctx context.Context) {
	for {
		for _, u := range l.sm.UserAddresses() {
			select {
			case <-ctx.Done():
				return
			case l.taskCh <- u:
			}
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

var fundingTimes = [3]int{0, 8, 16} // UTC hours

// nextFundingTick returns the next 00:00/08:00/16:00 UTC instant strictly
// after now.
func nextFundingTick(now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, h := range fundingTimes {
		t := day.Add(time.Duration(h) * time.Hour)
		if t.After(now) {
			return t
		}
	}
	return day.Add(24 * time.Hour) // next day's 00:00
}

// timerFeeder wakes at each of 00:00/08:00/16:00 UTC and walks every
// known user onto timerCh for funding settlement.
func (l *Liquidator) timerFeeder(ctx context.Context) {
	for {
		wait := time.Until(nextFundingTick(time.Now()))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		for _, u := range l.sm.UserAddresses() {
			select {
			case <-ctx.Done():
				return
			case l.timerCh <- u:
			}
		}
	}
}

func (l *Liquidator) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-l.taskCh:
			l.revalueUser(ctx, u)
		case u := <-l.timerCh:
			l.settleFunding(u)
		}
	}
}

// revalueUser implements spec.md §4.5.1's per-user revaluation: value the
// independent book (bursting any isolated position that crossed the
// threshold immediately), value the full book against the fixed
// BTC/ETH/SOL price triple, publish the combined dynamic snapshot, and
// if the full book itself has crossed the burst rate, partially
// liquidate it largest-profit-first until it recovers.
func (l *Liquidator) revalueUser(ctx context.Context, authority address.Address) {
	user, ok := l.sm.GetUser(authority)
	if !ok {
		return
	}
	positions, _ := l.sm.PositionsOf(authority)

	indep := ComputeIndependent(l.sm, authority, positions, l.cfg.BurstRate)
	for _, bt := range indep.Bursts {
		if err := l.client.BurstPosition(ctx, bt.User, bt.Market, bt.Position, bt.Pyth, bt.Chainlink); err != nil {
			l.logger.Error("independent burst failed", "user", authority, "position", bt.Position, "error", err)
		}
	}

	btc, eth, sol, ok := l.prices.FixedPythAddresses()
	if !ok {
		l.logger.Error("fixed pyth addresses unavailable, skipping full-position revaluation", "user", authority)
		l.publishDynamicData(authority, user, indep, FullResult{})
		return
	}
	btcPrice, ok1 := l.sm.GetPrice(btc)
	ethPrice, ok2 := l.sm.GetPrice(eth)
	solPrice, ok3 := l.sm.GetPrice(sol)
	if !ok1 || !ok2 || !ok3 {
		l.logger.Error("fixed price triple incomplete, skipping full-position revaluation", "user", authority)
		l.publishDynamicData(authority, user, indep, FullResult{})
		return
	}
	fp := FixedPrices{BTC: btcPrice, ETH: ethPrice, SOL: solPrice}

	full := ComputeFullPositions(l.sm, user.OpenFullPositionHeaders, fp)
	l.publishDynamicData(authority, user, indep, full)

	marginFullTotal := round100f(math.Max(user.MarginFullBuyTotal, user.MarginFullSellTotal))
	if !NeedsForcedClose(user.Balance, full.TotalPl, marginFullTotal, l.cfg.BurstRate) {
		return
	}
	l.forcedPartialClose(ctx, authority, user, full)
}

func (l *Liquidator) publishDynamicData(authority address.Address, user chain.UserAccount, indep IndependentResult, full FullResult) {
	profit := indep.ProfitAccum + full.TotalPl
	equity := full.TotalPl + indep.Equity + user.Balance
	var marginPct float64
	if user.MarginTotal != 0 {
		marginPct = chain.Round2(equity / user.MarginTotal)
	}
	l.sm.SetUserDynamic(authority, chain.UserDynamicData{
		Profit:           chain.Round2(profit),
		Equity:           chain.Round2(equity),
		MarginPercentage: marginPct,
	})
}

// forcedPartialClose closes full positions largest-profit-first, as many
// as needed to bring the full book's equity ratio back above BurstRate.
func (l *Liquidator) forcedPartialClose(ctx context.Context, authority address.Address, user chain.UserAccount, full FullResult) {
	sorted := make([]PositionSort, len(full.Sorted))
	copy(sorted, full.Sorted)
	SortDescendingByProfit(sorted)

	buyTotal := user.MarginFullBuyTotal
	sellTotal := user.MarginFullSellTotal
	runningEquity := user.Balance + full.TotalPl

	for _, ps := range sorted {
		market, ok := l.sm.GetMarket(ps.MarketAddress)
		if !ok {
			l.logger.Error("market disappeared mid-liquidation", "user", authority, "market", ps.MarketAddress)
			continue
		}
		posAddr := address.Derived(SeedPosition, user.Authority, authority, ps.Offset)
		if err := l.client.BurstPosition(ctx, authority, ps.MarketAddress, posAddr, market.PythPriceAccount, market.ChainlinkPriceAccount); err != nil {
			l.logger.Error("full-position burst failed", "user", authority, "position", posAddr, "error", err)
		}

		switch ps.Direction {
		case chain.Buy:
			buyTotal -= float64(ps.Margin) / 100
		case chain.Sell:
			sellTotal -= float64(ps.Margin) / 100
		}
		runningEquity -= float64(ps.Profit) / 100

		if sideTotal := math.Max(buyTotal, sellTotal); sideTotal > 0 && runningEquity/sideTotal > l.cfg.BurstRate {
			return
		}
	}
}

func round100f(f float64) float64 {
	return math.Round(f*100) / 100
}
