package statemap

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/chain"
	"github.com/scale-protocol/robot/internal/store"
)

func rawAccountBytes(t *testing.T, payload []byte) []byte {
	t.Helper()
	full := append(make([]byte, chain.DiscriminatorLen), payload...)
	raw := chain.RawAccount{Payload: full, Lamports: 1}
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal raw account: %v", err)
	}
	return data
}

func TestLoadActiveFromStoreReplayFidelity(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "db")
	st, err := store.Open(dir)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	var marketAddr, pyth, chainlink, userAddr, posAddr address.Address
	marketAddr[0], pyth[0], chainlink[0] = 1, 2, 3
	userAddr[0], posAddr[0] = 4, 5

	market := chain.Market{Pair: "BTC/USD", PythPriceAccount: pyth, ChainlinkPriceAccount: chainlink}
	if err := st.PutActive(store.MarketKey(store.Active, marketAddr), rawAccountBytes(t, chain.EncodeMarket(market))); err != nil {
		t.Fatalf("PutActive market: %v", err)
	}

	pos := chain.Position{Authority: userAddr, Status: chain.Open, Margin: 100}
	if err := st.PutActive(store.PositionKey(store.Active, userAddr, posAddr), rawAccountBytes(t, chain.EncodePosition(pos))); err != nil {
		t.Fatalf("PutActive position: %v", err)
	}

	sm := New()
	subscribeCh := make(chan address.Address, 8)
	loaded, dropped, err := LoadActiveFromStore(sm, st, subscribeCh)
	if err != nil {
		t.Fatalf("LoadActiveFromStore: %v", err)
	}
	if loaded != 2 {
		t.Fatalf("loaded = %d, want 2", loaded)
	}
	if dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}
	if sm.MarketCount() != 1 {
		t.Fatalf("MarketCount = %d, want 1", sm.MarketCount())
	}
	positions, ok := sm.PositionsOf(userAddr)
	if !ok || len(positions) != 1 {
		t.Fatalf("PositionsOf = (%v, %v), want one position", positions, ok)
	}
	if _, ok := sm.GetPriceIndex(pyth); !ok {
		t.Fatal("expected pyth reverse index to be reconstructed")
	}
	if _, ok := sm.GetPriceIndex(chainlink); !ok {
		t.Fatal("expected chainlink reverse index to be reconstructed")
	}

	close(subscribeCh)
	var seen []address.Address
	for a := range subscribeCh {
		seen = append(seen, a)
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 re-subscribe addresses, got %d", len(seen))
	}
}
