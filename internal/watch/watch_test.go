package watch

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/chain"
	"github.com/scale-protocol/robot/internal/statemap"
	"github.com/scale-protocol/robot/internal/store"
)

func newTestWatch(t *testing.T) (*Watch, *statemap.StateMap, chan address.Address) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sm := statemap.New()
	subscribeCh := make(chan address.Address, 8)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := New(sm, st, subscribeCh, logger)
	return w, sm, subscribeCh
}

func encodedAccount(payload []byte) []byte {
	return append(make([]byte, chain.DiscriminatorLen), payload...)
}

func TestApplyAccountUpsertsMarketAndSubscribes(t *testing.T) {
	t.Parallel()
	w, sm, subscribeCh := newTestWatch(t)

	var marketAddr, pyth, chainlink address.Address
	marketAddr[0], pyth[0], chainlink[0] = 1, 2, 3
	m := chain.Market{Pair: "BTC/USD", Spread: 0.01, PythPriceAccount: pyth, ChainlinkPriceAccount: chainlink}

	raw := chain.RawAccount{Address: marketAddr, Payload: encodedAccount(chain.EncodeMarket(m)), Lamports: 1}
	w.applyAccount(raw)

	if _, ok := sm.GetMarket(marketAddr); !ok {
		t.Fatal("expected market to be indexed")
	}
	if _, ok := sm.GetPriceIndex(pyth); !ok {
		t.Fatal("expected pyth reverse index")
	}

	select {
	case addr := <-subscribeCh:
		if addr != pyth && addr != chainlink {
			t.Fatalf("unexpected subscribe address %v", addr)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a dynamic subscribe emission")
	}
}

func TestApplyAccountZeroLamportsRemovesMarket(t *testing.T) {
	t.Parallel()
	w, sm, _ := newTestWatch(t)

	var marketAddr, pyth, chainlink address.Address
	marketAddr[0], pyth[0], chainlink[0] = 10, 11, 12
	m := chain.Market{PythPriceAccount: pyth, ChainlinkPriceAccount: chainlink}
	w.applyAccount(chain.RawAccount{Address: marketAddr, Payload: encodedAccount(chain.EncodeMarket(m)), Lamports: 1})

	closed := chain.RawAccount{Address: marketAddr, Payload: encodedAccount(chain.EncodeMarket(m)), Lamports: 0}
	w.applyAccount(closed)

	if _, ok := sm.GetMarket(marketAddr); ok {
		t.Fatal("expected market removed on zero lamports")
	}
	if _, ok := sm.GetPriceIndex(pyth); ok {
		t.Fatal("expected reverse index removed on zero lamports")
	}
}

func TestApplyPositionClosingStatusRemovesPosition(t *testing.T) {
	t.Parallel()
	w, sm, _ := newTestWatch(t)

	var authority, posAddr address.Address
	authority[0], posAddr[0] = 20, 21
	open := chain.Position{Authority: authority, Status: chain.Open, Margin: 100}
	w.applyAccount(chain.RawAccount{Address: posAddr, Payload: encodedAccount(chain.EncodePosition(open)), Lamports: 1})
	if _, ok := sm.PositionsOf(authority); !ok {
		t.Fatal("expected position indexed")
	}

	closing := chain.Position{Authority: authority, Status: chain.ForceClosing, Margin: 100}
	w.applyAccount(chain.RawAccount{Address: posAddr, Payload: encodedAccount(chain.EncodePosition(closing)), Lamports: 1})
	if _, ok := sm.PositionsOf(authority); ok {
		t.Fatal("expected position removed on closing status")
	}
}

func TestApplyPriceNoMarketIsNoOp(t *testing.T) {
	t.Parallel()
	w, sm, _ := newTestWatch(t)

	var priceAddr address.Address
	priceAddr[0] = 30
	w.applyPrice(chain.RawAccount{Address: priceAddr, Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}})

	if _, ok := sm.GetPrice(priceAddr); ok {
		t.Fatal("expected no price stored when reverse index is absent")
	}
}

func TestApplyPriceUpdatesPriceAccount(t *testing.T) {
	t.Parallel()
	w, sm, _ := newTestWatch(t)

	var marketAddr, pyth address.Address
	marketAddr[0], pyth[0] = 40, 41
	sm.SetMarket(marketAddr, chain.Market{Spread: 0.01})
	sm.SetPriceIndex(pyth, marketAddr)

	payload := make([]byte, 12)
	payload[0] = 100 // raw_price = 100, expo = 0
	w.applyPrice(chain.RawAccount{Address: pyth, Payload: payload})

	if _, ok := sm.GetPrice(pyth); !ok {
		t.Fatal("expected price stored after successful decode")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	w, _, _ := newTestWatch(t)
	ctx, cancel := context.WithCancel(context.Background())
	accountCh := make(chan chain.RawAccount)
	priceCh := make(chan chain.RawAccount)
	w.Run(ctx, accountCh, priceCh)
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after context cancellation")
	}
}
