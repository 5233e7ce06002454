package statemap

import (
	"testing"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/chain"
)

func addrN(n byte) address.Address {
	var a address.Address
	a[0] = n
	return a
}

func TestMarketRemovalClearsReverseIndex(t *testing.T) {
	t.Parallel()
	sm := New()
	marketAddr := addrN(1)
	pyth, chainlink := addrN(2), addrN(3)
	m := chain.Market{PythPriceAccount: pyth, ChainlinkPriceAccount: chainlink}

	sm.SetMarket(marketAddr, m)
	sm.SetPriceIndex(pyth, marketAddr)
	sm.SetPriceIndex(chainlink, marketAddr)

	sm.RemoveMarket(marketAddr, m)

	if _, ok := sm.GetMarket(marketAddr); ok {
		t.Fatal("expected market removed")
	}
	if _, ok := sm.GetPriceIndex(pyth); ok {
		t.Fatal("expected pyth reverse index removed")
	}
	if _, ok := sm.GetPriceIndex(chainlink); ok {
		t.Fatal("expected chainlink reverse index removed")
	}
}

func TestPositionGroupDisappearsWhenEmpty(t *testing.T) {
	t.Parallel()
	sm := New()
	authority := addrN(10)
	posAddr := addrN(11)

	sm.UpsertPosition(authority, posAddr, chain.Position{Authority: authority})
	if _, ok := sm.PositionsOf(authority); !ok {
		t.Fatal("expected inner map to exist after upsert")
	}

	sm.DeletePosition(authority, posAddr)
	if _, ok := sm.PositionsOf(authority); ok {
		t.Fatal("expected inner map removed once empty (spec.md §3 invariant)")
	}
}

func TestPositionsOfIsASnapshot(t *testing.T) {
	t.Parallel()
	sm := New()
	authority := addrN(20)
	posAddr := addrN(21)
	sm.UpsertPosition(authority, posAddr, chain.Position{Margin: 1})

	snap, ok := sm.PositionsOf(authority)
	if !ok {
		t.Fatal("expected positions")
	}
	sm.UpsertPosition(authority, posAddr, chain.Position{Margin: 99})
	if snap[posAddr].Margin != 1 {
		t.Fatalf("snapshot should be unaffected by later mutation, got margin=%v", snap[posAddr].Margin)
	}
}

func TestConcurrentSetAndGet(t *testing.T) {
	t.Parallel()
	sm := New()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			sm.SetMarket(addrN(byte(i%50)), chain.Market{Pair: "X"})
		}
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		sm.GetMarket(addrN(byte(i % 50)))
	}
	<-done
}
