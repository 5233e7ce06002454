package statemap

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/chain"
	"github.com/scale-protocol/robot/internal/store"
)

// kvSource is satisfied by *store.Store; narrowed to the one method this
// package needs so tests can supply a fake.
type kvSource interface {
	ScanNamespace(ns store.Namespace) ([]store.KV, error)
}

// LoadActiveFromStore rehydrates a StateMap from the Active namespace of
// st, reconstructing the price reverse index for every loaded market and
// re-emitting its two oracle addresses onto subscribeCh so the
// Subscriber resumes watching them. subscribeCh sends are non-blocking;
// a full channel drops the re-subscribe request with a debug log left to
// the caller via the returned dropped count.
func LoadActiveFromStore(sm *StateMap, st kvSource, subscribeCh chan<- address.Address) (loaded, dropped int, err error) {
	kvs, err := st.ScanNamespace(store.Active)
	if err != nil {
		return 0, 0, fmt.Errorf("statemap: scan active: %w", err)
	}

	for _, kv := range kvs {
		tag, authority, addr, perr := parseActiveKey(string(kv.Key))
		if perr != nil {
			continue // malformed key: skip, do not abort rehydrate for one bad row
		}

		var raw chain.RawAccount
		if err := json.Unmarshal(kv.Value, &raw); err != nil {
			continue
		}
		if len(raw.Payload) < chain.DiscriminatorLen {
			continue
		}
		payload := raw.Payload[chain.DiscriminatorLen:]

		switch tag {
		case string(store.TagMarket):
			m, derr := chain.TryDeserializeMarket(payload)
			if derr != nil {
				continue
			}
			sm.SetMarket(addr, m)
			sm.SetPriceIndex(m.PythPriceAccount, addr)
			sm.SetPriceIndex(m.ChainlinkPriceAccount, addr)
			if !trySend(subscribeCh, m.PythPriceAccount) {
				dropped++
			}
			if !trySend(subscribeCh, m.ChainlinkPriceAccount) {
				dropped++
			}
			loaded++
		case string(store.TagUser):
			u, derr := chain.TryDeserializeUser(payload)
			if derr != nil {
				continue
			}
			sm.SetUser(addr, u)
			loaded++
		case string(store.TagPosition):
			p, derr := chain.TryDeserializePosition(payload)
			if derr != nil {
				continue
			}
			sm.UpsertPosition(authority, addr, p)
			loaded++
		}
	}
	return loaded, dropped, nil
}

func trySend(ch chan<- address.Address, addr address.Address) bool {
	select {
	case ch <- addr:
		return true
	default:
		return false
	}
}

// parseActiveKey splits "<ns>/<tag>/<authority?>/<address>" into its tag,
// optional authority, and address components.
func parseActiveKey(key string) (tag string, authority, addr address.Address, err error) {
	parts := strings.Split(key, "/")
	switch len(parts) {
	case 3: // ns/tag/address
		tag = parts[1]
		addr, err = address.FromString(parts[2])
	case 4: // ns/position/authority/address
		tag = parts[1]
		authority, err = address.FromString(parts[2])
		if err != nil {
			return
		}
		addr, err = address.FromString(parts[3])
	default:
		err = fmt.Errorf("statemap: malformed key %q", key)
	}
	return
}
