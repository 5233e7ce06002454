// Package query implements QueryFacade: the read-only accessors over
// StateMap and Store the HTTP collaborator calls. Grounded on spec.md
// §4.7 and the teacher's internal/api/server.go handler style (thin
// methods returning a value plus a taxonomy-classified error).
package query

import (
	"encoding/json"
	"fmt"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/chain"
	"github.com/scale-protocol/robot/internal/statemap"
	"github.com/scale-protocol/robot/internal/store"
)

// ErrorKind classifies a Facade error for the HTTP layer's status mapping.
type ErrorKind int

const (
	// Internal is an unexpected failure (store corruption, decode error).
	Internal ErrorKind = iota
	// NotFound means the requested entity has no record.
	NotFound
	// InvalidArgument means the caller's input was malformed.
	InvalidArgument
)

// Error is a QueryFacade failure tagged with its HTTP-mappable kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func invalidArgument(format string, args ...any) *Error {
	return &Error{Kind: InvalidArgument, Err: fmt.Errorf(format, args...)}
}

func notFound(format string, args ...any) *Error {
	return &Error{Kind: NotFound, Err: fmt.Errorf(format, args...)}
}

func internal(format string, args ...any) *Error {
	return &Error{Kind: Internal, Err: fmt.Errorf(format, args...)}
}

// UserInfo is user[addr] joined with its computed dynamic snapshot,
// presentation-normalized.
type UserInfo struct {
	Authority                  string  `json:"authority"`
	Balance                    float64 `json:"balance"`
	MarginTotal                float64 `json:"margin_total"`
	MarginFullBuyTotal         float64 `json:"margin_full_buy_total"`
	MarginFullSellTotal        float64 `json:"margin_full_sell_total"`
	MarginIndependentBuyTotal  float64 `json:"margin_independent_buy_total"`
	MarginIndependentSellTotal float64 `json:"margin_independent_sell_total"`
	Profit                     float64 `json:"profit"`
	Equity                     float64 `json:"equity"`
	MarginPercentage           float64 `json:"margin_percentage"`
}

// PositionInfo is one presentation-normalized position record, sourced
// either from StateMap's live index or from Store's history namespace.
type PositionInfo struct {
	MarketAccount string  `json:"market_account"`
	Authority     string  `json:"authority"`
	Direction     string  `json:"direction"`
	Kind          string  `json:"kind"`
	Size          float64 `json:"size"`
	Leverage      uint16  `json:"leverage"`
	Margin        float64 `json:"margin"`
	OpenPrice     float64 `json:"open_price"`
	ClosePrice    float64 `json:"close_price"`
	Profit        float64 `json:"profit"`
	Status        string  `json:"status"`
}

func positionKindString(k chain.PositionKind) string {
	if k == chain.Independent {
		return "independent"
	}
	return "full"
}

func positionStatusString(s chain.PositionStatus) string {
	switch s {
	case chain.NormalClosing:
		return "normal_closing"
	case chain.ForceClosing:
		return "force_closing"
	default:
		return "open"
	}
}

func toPositionInfo(p chain.Position) PositionInfo {
	return PositionInfo{
		MarketAccount: p.MarketAccount.String(),
		Authority:     p.Authority.String(),
		Direction:     p.Direction.String(),
		Kind:          positionKindString(p.Kind),
		Size:          chain.Round2(p.Size),
		Leverage:      p.Leverage,
		Margin:        chain.Round2(p.Margin),
		OpenPrice:     chain.Round2(p.OpenPrice),
		ClosePrice:    chain.Round2(p.ClosePrice),
		Profit:        chain.Round2(p.Profit),
		Status:        positionStatusString(p.Status),
	}
}

// Prefix selects which position namespace GetPositionList reads from.
type Prefix int

const (
	// Active reads StateMap's in-memory inner position map.
	Active Prefix = iota
	// HistoryPrefix reads Store's History/position/<addr>/ namespace.
	HistoryPrefix
)

// Facade implements spec.md §4.7's read-only accessors.
type Facade struct {
	sm *statemap.StateMap
	st *store.Store
}

// New builds a Facade over sm and st.
func New(sm *statemap.StateMap, st *store.Store) *Facade {
	return &Facade{sm: sm, st: st}
}

// GetUserInfo joins user[addr] with user_dynamic_idx[addr].
func (f *Facade) GetUserInfo(addr address.Address) (UserInfo, error) {
	if addr.IsZero() {
		return UserInfo{}, invalidArgument("query: zero address")
	}
	u, ok := f.sm.GetUser(addr)
	if !ok {
		return UserInfo{}, notFound("query: user %s not found", addr)
	}
	d, _ := f.sm.GetUserDynamic(addr) // absent dynamic data just means "not yet revalued"

	return UserInfo{
		Authority:                  u.Authority.String(),
		Balance:                    chain.Round2(u.Balance),
		MarginTotal:                chain.Round2(u.MarginTotal),
		MarginFullBuyTotal:         chain.Round2(u.MarginFullBuyTotal),
		MarginFullSellTotal:        chain.Round2(u.MarginFullSellTotal),
		MarginIndependentBuyTotal:  chain.Round2(u.MarginIndependentBuyTotal),
		MarginIndependentSellTotal: chain.Round2(u.MarginIndependentSellTotal),
		Profit:                     chain.Round2(d.Profit),
		Equity:                     chain.Round2(d.Equity),
		MarginPercentage:           d.MarginPercentage,
	}, nil
}

// GetPositionList returns addr's positions from either the live StateMap
// index (Active) or Store's history namespace (HistoryPrefix), filtered
// to entries that deserialize as positions.
func (f *Facade) GetPositionList(addr address.Address, prefix Prefix) ([]PositionInfo, error) {
	if addr.IsZero() {
		return nil, invalidArgument("query: zero address")
	}

	if prefix == Active {
		positions, ok := f.sm.PositionsOf(addr)
		if !ok {
			return []PositionInfo{}, nil
		}
		out := make([]PositionInfo, 0, len(positions))
		for _, p := range positions {
			out = append(out, toPositionInfo(p))
		}
		return out, nil
	}

	kvs, err := f.st.ListPositionHistory(addr)
	if err != nil {
		return nil, internal("query: scan position history for %s: %w", addr, err)
	}
	out := make([]PositionInfo, 0, len(kvs))
	for _, kv := range kvs {
		var raw chain.RawAccount
		if err := json.Unmarshal(kv.Value, &raw); err != nil {
			continue
		}
		if len(raw.Payload) < chain.DiscriminatorLen {
			continue
		}
		p, derr := chain.TryDeserializePosition(raw.Payload[chain.DiscriminatorLen:])
		if derr != nil {
			continue // not a position-shaped payload at this length; skip
		}
		out = append(out, toPositionInfo(p))
	}
	return out, nil
}
