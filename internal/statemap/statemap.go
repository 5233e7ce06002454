// Package statemap is the in-memory multi-index of markets, users,
// positions, prices, and the price→market reverse index that the
// replication and liquidation paths read and mutate concurrently.
package statemap

import (
	"sync"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/chain"
)

// positionGroup is one user's live positions, keyed by position address.
// The outer map owns the inner map; callers take a short-lived handle
// via PositionsOf's snapshot copy rather than holding the lock across
// calls out.
type positionGroup struct {
	mu sync.RWMutex
	m  map[address.Address]chain.Position
}

func newPositionGroup() *positionGroup {
	return &positionGroup{m: make(map[address.Address]chain.Position)}
}

func (g *positionGroup) set(addr address.Address, p chain.Position) {
	g.mu.Lock()
	g.m[addr] = p
	g.mu.Unlock()
}

func (g *positionGroup) delete(addr address.Address) int {
	g.mu.Lock()
	delete(g.m, addr)
	n := len(g.m)
	g.mu.Unlock()
	return n
}

func (g *positionGroup) snapshot() map[address.Address]chain.Position {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[address.Address]chain.Position, len(g.m))
	for k, v := range g.m {
		out[k] = v
	}
	return out
}

// StateMap holds the six concurrent indexes described in spec.md §3.
type StateMap struct {
	market               *shardedMap[chain.Market]
	user                 *shardedMap[chain.UserAccount]
	position             *shardedMap[*positionGroup]
	priceAccount         *shardedMap[chain.Price]
	priceIdxPriceAccount *shardedMap[address.Address]
	userDynamicIdx       *shardedMap[chain.UserDynamicData]
}

// New returns an empty StateMap.
func New() *StateMap {
	return &StateMap{
		market:               newShardedMap[chain.Market](),
		user:                 newShardedMap[chain.UserAccount](),
		position:             newShardedMap[*positionGroup](),
		priceAccount:         newShardedMap[chain.Price](),
		priceIdxPriceAccount: newShardedMap[address.Address](),
		userDynamicIdx:       newShardedMap[chain.UserDynamicData](),
	}
}

// --- market ---

func (s *StateMap) SetMarket(addr address.Address, m chain.Market) { s.market.Set(addr, m) }
func (s *StateMap) GetMarket(addr address.Address) (chain.Market, bool) {
	return s.market.Get(addr)
}
func (s *StateMap) DeleteMarket(addr address.Address) { s.market.Delete(addr) }
func (s *StateMap) MarketCount() int                  { return s.market.Len() }
func (s *StateMap) EachMarket(fn func(address.Address, chain.Market)) { s.market.Each(fn) }

// --- user ---

func (s *StateMap) SetUser(addr address.Address, u chain.UserAccount) { s.user.Set(addr, u) }
func (s *StateMap) GetUser(addr address.Address) (chain.UserAccount, bool) {
	return s.user.Get(addr)
}
func (s *StateMap) DeleteUser(addr address.Address) { s.user.Delete(addr) }
func (s *StateMap) UserCount() int                  { return s.user.Len() }
func (s *StateMap) UserAddresses() []address.Address { return s.user.Keys() }

// --- position (nested, grouped by authority) ---

// UpsertPosition inserts or updates a position under its authority's group,
// creating the group on first use.
func (s *StateMap) UpsertPosition(authority, posAddr address.Address, p chain.Position) {
	group, ok := s.position.Get(authority)
	if !ok {
		group = newPositionGroup()
		s.position.Set(authority, group)
	}
	group.set(posAddr, p)
}

// DeletePosition removes a position; if its group becomes empty the
// group itself is removed so "present inner map implies at least one
// live position" holds (spec.md §3 invariant).
func (s *StateMap) DeletePosition(authority, posAddr address.Address) {
	group, ok := s.position.Get(authority)
	if !ok {
		return
	}
	if remaining := group.delete(posAddr); remaining == 0 {
		s.position.Delete(authority)
	}
}

// PositionsOf returns a point-in-time copy of one user's live positions,
// or (nil, false) if the user has no inner map.
func (s *StateMap) PositionsOf(authority address.Address) (map[address.Address]chain.Position, bool) {
	group, ok := s.position.Get(authority)
	if !ok {
		return nil, false
	}
	return group.snapshot(), true
}

// GetPosition looks up a single position by (authority, position address).
func (s *StateMap) GetPosition(authority, posAddr address.Address) (chain.Position, bool) {
	group, ok := s.position.Get(authority)
	if !ok {
		return chain.Position{}, false
	}
	group.mu.RLock()
	defer group.mu.RUnlock()
	p, ok := group.m[posAddr]
	return p, ok
}

// --- price account ---

func (s *StateMap) SetPrice(addr address.Address, p chain.Price) { s.priceAccount.Set(addr, p) }
func (s *StateMap) GetPrice(addr address.Address) (chain.Price, bool) {
	return s.priceAccount.Get(addr)
}
func (s *StateMap) DeletePrice(addr address.Address) { s.priceAccount.Delete(addr) }

// --- price -> market reverse index ---

func (s *StateMap) SetPriceIndex(priceAddr, marketAddr address.Address) {
	s.priceIdxPriceAccount.Set(priceAddr, marketAddr)
}
func (s *StateMap) GetPriceIndex(priceAddr address.Address) (address.Address, bool) {
	return s.priceIdxPriceAccount.Get(priceAddr)
}
func (s *StateMap) DeletePriceIndex(priceAddr address.Address) {
	s.priceIdxPriceAccount.Delete(priceAddr)
}

// --- user dynamic data ---

func (s *StateMap) SetUserDynamic(addr address.Address, d chain.UserDynamicData) {
	s.userDynamicIdx.Set(addr, d)
}
func (s *StateMap) GetUserDynamic(addr address.Address) (chain.UserDynamicData, bool) {
	return s.userDynamicIdx.Get(addr)
}

// RemoveMarket tears down a market and both of its reverse-index
// entries in one step (spec.md §8 boundary behavior: "A Market update
// whose lamports become zero removes both reverse-index entries in a
// single Watch step").
func (s *StateMap) RemoveMarket(addr address.Address, m chain.Market) {
	s.DeleteMarket(addr)
	s.DeletePriceIndex(m.PythPriceAccount)
	s.DeletePriceIndex(m.ChainlinkPriceAccount)
}
