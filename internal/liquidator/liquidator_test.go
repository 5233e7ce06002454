package liquidator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/chain"
	"github.com/scale-protocol/robot/internal/statemap"
)

type fakeClient struct {
	mu    sync.Mutex
	calls []address.Address
}

func (f *fakeClient) BurstPosition(_ context.Context, _, _, position, _, _ address.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, position)
	return nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakePrices struct {
	btc, eth, sol address.Address
	ok            bool
}

func (f fakePrices) FixedPythAddresses() (address.Address, address.Address, address.Address, bool) {
	return f.btc, f.eth, f.sol, f.ok
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNextFundingTickPicksEarliestRemainingSlot(t *testing.T) {
	now := time.Date(2026, 8, 1, 5, 30, 0, 0, time.UTC)
	got := nextFundingTick(now)
	want := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("nextFundingTick(%v) = %v, want %v", now, got, want)
	}
}

func TestNextFundingTickRollsOverToNextDay(t *testing.T) {
	now := time.Date(2026, 8, 1, 23, 0, 0, 0, time.UTC)
	got := nextFundingTick(now)
	want := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("nextFundingTick(%v) = %v, want %v", now, got, want)
	}
}

func TestFundingTrackerIsIdempotentWithinWindow(t *testing.T) {
	ft := newFundingTracker()
	authority := addrN(1)
	t1 := time.Date(2026, 8, 1, 8, 5, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 1, 8, 55, 0, 0, time.UTC)
	t3 := time.Date(2026, 8, 1, 16, 1, 0, 0, time.UTC)

	if !ft.shouldSettle(authority, t1) {
		t.Fatal("first settlement in a window should proceed")
	}
	if ft.shouldSettle(authority, t2) {
		t.Fatal("second settlement in the same window should be a no-op")
	}
	if !ft.shouldSettle(authority, t3) {
		t.Fatal("settlement in a new window should proceed")
	}
}

// TestRevalueUserIndependentBurstEndToEnd exercises spec.md §8 scenario 1:
// a lone independent position below the burst rate gets closed.
func TestRevalueUserIndependentBurstEndToEnd(t *testing.T) {
	sm := statemap.New()
	market := addrN(1)
	pyth := addrN(2)
	chainlinkAddr := addrN(3)
	authority := addrN(4)
	posAddr := addrN(5)

	sm.SetMarket(market, chain.Market{PythPriceAccount: pyth, ChainlinkPriceAccount: chainlinkAddr})
	sm.SetPrice(pyth, chain.Price{BuyPrice: 40, SellPrice: 40})
	sm.SetUser(authority, chain.UserAccount{Authority: authority, MarginTotal: 100})
	sm.UpsertPosition(authority, posAddr, chain.Position{
		MarketAccount: market,
		Authority:     authority,
		Direction:     chain.Buy,
		Kind:          chain.Independent,
		Size:          1,
		Margin:        100,
		OpenPrice:     100,
	})

	client := &fakeClient{}
	l := New(sm, client, fakePrices{ok: false}, Config{Workers: 2, BurstRate: 0.5}, newTestLogger())
	l.revalueUser(context.Background(), authority)

	if client.callCount() != 1 {
		t.Fatalf("expected 1 burst call, got %d", client.callCount())
	}
	data, ok := sm.GetUserDynamic(authority)
	if !ok {
		t.Fatal("expected dynamic data to be published even when full-price triple is unavailable")
	}
	if data.Equity == 0 {
		t.Fatalf("expected nonzero equity snapshot, got %+v", data)
	}
}

// TestRevalueUserFullPartialLiquidationOrdering exercises spec.md §8
// scenario 2: when the full book crosses the burst rate, the most
// profitable position closes first.
func TestRevalueUserFullPartialLiquidationOrdering(t *testing.T) {
	sm := statemap.New()
	authority := addrN(1)        // the user account's own address (StateMap key)
	walletAuthority := addrN(11) // UserAccount.Authority: a distinct wallet pubkey
	loserMarket := addrN(2)
	winnerMarket := addrN(3)
	btcPyth := addrN(4)

	sm.SetMarket(loserMarket, chain.Market{Pair: "BTC/USD", PythPriceAccount: btcPyth})
	sm.SetMarket(winnerMarket, chain.Market{Pair: "ETH/USD"})
	sm.SetPrice(btcPyth, chain.Price{BuyPrice: 100, SellPrice: 100})

	user := chain.UserAccount{
		Authority:           walletAuthority,
		Balance:             0,
		MarginTotal:         300,
		MarginFullBuyTotal:  200,
		MarginFullSellTotal: 0,
		OpenFullPositionHeaders: []chain.FullPositionHeader{
			{MarketAccount: loserMarket, Direction: chain.Buy, Margin: 100, OpenPrice: 200, PositionSeedOffset: 1},
			{MarketAccount: winnerMarket, Direction: chain.Buy, Margin: 100, OpenPrice: 150, PositionSeedOffset: 2},
		},
	}
	sm.SetUser(authority, user)

	client := &fakeClient{}
	prices := fakePrices{
		btc: btcPyth,
		eth: addrN(9),
		sol: addrN(10),
		ok:  true,
	}
	sm.SetPrice(prices.eth, chain.Price{BuyPrice: 150, SellPrice: 160})
	sm.SetPrice(prices.sol, chain.Price{})

	l := New(sm, client, prices, Config{Workers: 2, BurstRate: 10}, newTestLogger())
	l.revalueUser(context.Background(), authority)

	if client.callCount() == 0 {
		t.Fatal("expected at least one forced-close burst")
	}
	first := client.calls[0]
	wantFirst := address.Derived(SeedPosition, walletAuthority, authority, 2)
	if first != wantFirst {
		t.Fatalf("expected the winning position to close first, got %v want %v", first, wantFirst)
	}
	if bogus := address.Derived(SeedPosition, authority, winnerMarket, 2); first == bogus {
		t.Fatalf("derived position address matches the market-as-owner tuple, not the wallet/user tuple")
	}
}

func TestLiquidatorRunStopsOnContextCancel(t *testing.T) {
	sm := statemap.New()
	l := New(sm, &fakeClient{}, fakePrices{}, Config{Workers: 2, BurstRate: 0.5}, newTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	l.Run(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("liquidator did not stop after context cancellation")
	}
}
