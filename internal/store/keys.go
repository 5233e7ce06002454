package store

import (
	"bytes"

	"github.com/scale-protocol/robot/internal/address"
)

// Namespace selects between the active working set and the historical
// archive of removed records.
type Namespace string

const (
	Active  Namespace = "Active"
	History Namespace = "History"
)

// Tag identifies the kind of record a key addresses.
type Tag string

const (
	TagMarket   Tag = "market"
	TagUser     Tag = "user"
	TagPosition Tag = "position"
)

const sep = "/"

// MarketKey builds the `<ns>/market/<address>` key.
func MarketKey(ns Namespace, addr address.Address) []byte {
	return join(string(ns), string(TagMarket), addr.String())
}

// UserKey builds the `<ns>/user/<address>` key.
func UserKey(ns Namespace, addr address.Address) []byte {
	return join(string(ns), string(TagUser), addr.String())
}

// PositionKey builds the `<ns>/position/<authority>/<address>` key.
func PositionKey(ns Namespace, authority, addr address.Address) []byte {
	return join(string(ns), string(TagPosition), authority.String(), addr.String())
}

// PositionPrefix builds the scan prefix for one user's positions under ns.
func PositionPrefix(ns Namespace, authority address.Address) []byte {
	return join(string(ns), string(TagPosition), authority.String()) // trailing sep added by Scan via prefixWithSep
}

// NamespacePrefix builds the scan prefix for an entire namespace.
func NamespacePrefix(ns Namespace) []byte {
	return []byte(string(ns))
}

func join(parts ...string) []byte {
	var b bytes.Buffer
	for _, p := range parts {
		b.WriteString(p)
		b.WriteString(sep)
	}
	out := b.Bytes()
	return out[:len(out)-1] // trim trailing separator
}

// prefixWithSep appends the trailing separator a scan prefix needs so
// "Active/position/AAA" does not also match "Active/position/AAAZ".
func prefixWithSep(p []byte) []byte {
	return append(append([]byte{}, p...), []byte(sep)...)
}

// upperBound computes the exclusive upper bound for a lexicographic
// prefix scan by incrementing the prefix's last byte, matching the
// cockroachdb/pebble idiom for bounded iteration.
func upperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix was all 0xFF; unbounded scan
}
