// Package oracle decodes a raw Pyth-style price account payload into a
// normalized floating-point price. The function is pure: no I/O, no
// shared state.
package oracle

import (
	"encoding/binary"
	"math"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/chain"
	"github.com/scale-protocol/robot/internal/errs"
)

// pythPayloadLen is the fixed width of the price fields this decoder
// reads: a signed 64-bit raw price followed by a signed 32-bit exponent,
// mirroring the layout original_source/src/bot/price.rs reads off the
// Pyth account (raw_price, expo).
const pythPayloadLen = 12

// Decode extracts a normalized price from a raw oracle account payload.
// price = (raw_price / 10^|expo|) * Decimals, rounded to 2 digits.
func Decode(addr address.Address, raw chain.RawAccount) (float64, error) {
	if len(raw.Payload) < pythPayloadLen {
		return 0, &errs.DecodeError{Length: len(raw.Payload)}
	}
	rawPrice := int64(binary.LittleEndian.Uint64(raw.Payload[0:8]))
	expo := int32(binary.LittleEndian.Uint32(raw.Payload[8:12]))

	scale := math.Pow(10, math.Abs(float64(expo)))
	if scale == 0 {
		return 0, &errs.DecodeError{Length: len(raw.Payload)}
	}
	price := (float64(rawPrice) / scale) * chain.Decimals
	return chain.Round2(price), nil
}
