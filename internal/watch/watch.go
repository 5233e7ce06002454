// Package watch is the single-writer dispatcher that applies account and
// price updates to StateMap and Store. Two independent loops, one per
// channel, each racing its channel receive against its shutdown signal —
// the shape of the teacher's internal/engine.go dispatch loops, driving
// the state machine original_source/src/bot/machine.rs's
// watch_account/watch_price/keep_account/keep_price describe.
package watch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/chain"
	"github.com/scale-protocol/robot/internal/oracle"
	"github.com/scale-protocol/robot/internal/statemap"
	"github.com/scale-protocol/robot/internal/store"
)

// Watch owns the account/price dispatch loops.
type Watch struct {
	sm          *statemap.StateMap
	st          *store.Store
	subscribeCh chan<- address.Address
	logger      *slog.Logger

	wg sync.WaitGroup
}

// New builds a Watch that writes into sm and st, and emits newly-seen
// oracle addresses onto subscribeCh for the Subscriber to pick up.
func New(sm *statemap.StateMap, st *store.Store, subscribeCh chan<- address.Address, logger *slog.Logger) *Watch {
	return &Watch{
		sm:          sm,
		st:          st,
		subscribeCh: subscribeCh,
		logger:      logger.With("component", "watch"),
	}
}

// Run starts the account and price loops and returns immediately; each
// loop exits on ctx cancellation, and Stop awaits both.
func (w *Watch) Run(ctx context.Context, accountCh, priceCh <-chan chain.RawAccount) {
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.runAccountLoop(ctx, accountCh)
	}()
	go func() {
		defer w.wg.Done()
		w.runPriceLoop(ctx, priceCh)
	}()
}

// Stop awaits both loops. Callers cancel the shared context first.
func (w *Watch) Stop() {
	w.wg.Wait()
}

func (w *Watch) runAccountLoop(ctx context.Context, accountCh <-chan chain.RawAccount) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-accountCh:
			if !ok {
				return
			}
			w.applyAccount(raw)
		}
	}
}

func (w *Watch) runPriceLoop(ctx context.Context, priceCh <-chan chain.RawAccount) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-priceCh:
			if !ok {
				return
			}
			w.applyPrice(raw)
		}
	}
}

// applyAccount implements spec.md §4.4's account-loop steps.
func (w *Watch) applyAccount(raw chain.RawAccount) {
	if len(raw.Payload) < chain.DiscriminatorLen {
		w.logger.Warn("account payload shorter than discriminator", "address", raw.Address)
		return
	}
	payload := raw.Payload[chain.DiscriminatorLen:]
	kind, err := chain.DecodeKind(len(payload))
	if err != nil {
		w.logger.Warn("unrecognized account length, dropped", "address", raw.Address, "length", len(payload))
		return
	}

	switch kind {
	case "market":
		w.applyMarket(raw, payload)
	case "user":
		w.applyUser(raw, payload)
	case "position":
		w.applyPosition(raw, payload)
	}
}

func (w *Watch) applyMarket(raw chain.RawAccount, payload []byte) {
	key := store.MarketKey(store.Active, raw.Address)

	if raw.Closed() {
		if m, ok := w.sm.GetMarket(raw.Address); ok {
			w.sm.RemoveMarket(raw.Address, m)
		}
		w.moveToHistory(key, store.MarketKey(store.History, raw.Address), raw)
		return
	}

	m, err := chain.TryDeserializeMarket(payload)
	if err != nil {
		w.logger.Warn("market decode failed, dropped", "address", raw.Address, "error", err)
		return
	}
	w.sm.SetMarket(raw.Address, m)
	w.sm.SetPriceIndex(m.PythPriceAccount, raw.Address)
	w.sm.SetPriceIndex(m.ChainlinkPriceAccount, raw.Address)
	w.emitSubscribe(m.PythPriceAccount)
	w.emitSubscribe(m.ChainlinkPriceAccount)
	w.putActive(key, raw)
}

func (w *Watch) applyUser(raw chain.RawAccount, payload []byte) {
	key := store.UserKey(store.Active, raw.Address)

	if raw.Closed() {
		w.sm.DeleteUser(raw.Address)
		w.moveToHistory(key, store.UserKey(store.History, raw.Address), raw)
		return
	}

	u, err := chain.TryDeserializeUser(payload)
	if err != nil {
		w.logger.Warn("user decode failed, dropped", "address", raw.Address, "error", err)
		return
	}
	w.sm.SetUser(raw.Address, u)
	w.putActive(key, raw)
}

func (w *Watch) applyPosition(raw chain.RawAccount, payload []byte) {
	p, err := chain.TryDeserializePosition(payload)
	if err != nil {
		w.logger.Warn("position decode failed, dropped", "address", raw.Address, "error", err)
		return
	}
	key := store.PositionKey(store.Active, p.Authority, raw.Address)

	if raw.Closed() || p.Status.IsClosing() {
		w.sm.DeletePosition(p.Authority, raw.Address)
		w.moveToHistory(key, store.PositionKey(store.History, p.Authority, raw.Address), raw)
		return
	}

	w.sm.UpsertPosition(p.Authority, raw.Address, p)
	w.putActive(key, raw)
}

func (w *Watch) putActive(key []byte, raw chain.RawAccount) {
	data, err := json.Marshal(raw)
	if err != nil {
		w.logger.Error("failed to marshal raw account for store", "address", raw.Address, "error", err)
		return
	}
	if err := w.st.PutActive(key, data); err != nil {
		w.logger.Error("store put_active failed", "address", raw.Address, "error", err)
	}
}

func (w *Watch) moveToHistory(activeKey, historyKey []byte, raw chain.RawAccount) {
	data, err := json.Marshal(raw)
	if err != nil {
		w.logger.Error("failed to marshal raw account for history", "address", raw.Address, "error", err)
		return
	}
	if err := w.st.MoveToHistory(activeKey, historyKey, data); err != nil {
		w.logger.Error("store move_to_history failed", "address", raw.Address, "error", err)
	}
}

func (w *Watch) emitSubscribe(addr address.Address) {
	select {
	case w.subscribeCh <- addr:
	default:
		w.logger.Warn("dynamic subscribe channel full, dropped", "address", addr)
	}
}

// applyPrice implements spec.md §4.4's price-loop steps.
func (w *Watch) applyPrice(raw chain.RawAccount) {
	marketAddr, ok := w.sm.GetPriceIndex(raw.Address)
	if !ok {
		w.logger.Debug("price update for address with no market, dropped", "address", raw.Address)
		return
	}
	market, ok := w.sm.GetMarket(marketAddr)
	if !ok {
		w.logger.Error("stale price reference: market missing", "price_address", raw.Address, "market_address", marketAddr)
		return
	}

	real, err := oracle.Decode(raw.Address, raw)
	if err != nil {
		w.logger.Warn("oracle decode failed, dropped", "address", raw.Address, "error", err)
		return
	}

	price := chain.NewPrice(real, market.Spread)
	w.sm.SetPrice(raw.Address, price)
}
