package chain

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/scale-protocol/robot/internal/address"
)

var byteOrder = binary.LittleEndian

func putFloat64(buf []byte, v float64) {
	byteOrder.PutUint64(buf, math.Float64bits(v))
}

func getFloat64(buf []byte) float64 {
	return math.Float64frombits(byteOrder.Uint64(buf))
}

func decodeMarket(p []byte) (Market, error) {
	pair := bytes.TrimRight(p[0:16], "\x00")
	spread := getFloat64(p[16:24])
	var pyth, chainlink address.Address
	copy(pyth[:], p[24:56])
	copy(chainlink[:], p[56:88])
	vault := byteOrder.Uint64(p[88:96])
	return Market{
		Pair:                  string(pair),
		Spread:                spread,
		PythPriceAccount:      pyth,
		ChainlinkPriceAccount: chainlink,
		VaultBalance:          vault,
	}, nil
}

func encodeMarket(m Market) []byte {
	buf := make([]byte, marketPayloadLen)
	copy(buf[0:16], []byte(m.Pair))
	putFloat64(buf[16:24], m.Spread)
	copy(buf[24:56], m.PythPriceAccount.Bytes())
	copy(buf[56:88], m.ChainlinkPriceAccount.Bytes())
	byteOrder.PutUint64(buf[88:96], m.VaultBalance)
	return buf
}

func decodePosition(p []byte) (Position, error) {
	var market, authority address.Address
	copy(market[:], p[0:32])
	copy(authority[:], p[32:64])
	direction := Direction(p[64])
	kind := PositionKind(p[65])
	size := getFloat64(p[66:74])
	leverage := byteOrder.Uint16(p[74:76])
	margin := getFloat64(p[76:84])
	openPrice := getFloat64(p[84:92])
	closePrice := getFloat64(p[92:100])
	profit := getFloat64(p[100:108])
	offset := byteOrder.Uint64(p[108:116])
	status := PositionStatus(p[116])
	return Position{
		MarketAccount:      market,
		Authority:          authority,
		Direction:          direction,
		Kind:               kind,
		Size:               size,
		Leverage:           leverage,
		Margin:             margin,
		OpenPrice:          openPrice,
		ClosePrice:         closePrice,
		Profit:             profit,
		PositionSeedOffset: offset,
		Status:             status,
	}, nil
}

func encodePosition(pos Position) []byte {
	buf := make([]byte, positionPayloadLen)
	copy(buf[0:32], pos.MarketAccount.Bytes())
	copy(buf[32:64], pos.Authority.Bytes())
	buf[64] = byte(pos.Direction)
	buf[65] = byte(pos.Kind)
	putFloat64(buf[66:74], pos.Size)
	byteOrder.PutUint16(buf[74:76], pos.Leverage)
	putFloat64(buf[76:84], pos.Margin)
	putFloat64(buf[84:92], pos.OpenPrice)
	putFloat64(buf[92:100], pos.ClosePrice)
	putFloat64(buf[100:108], pos.Profit)
	byteOrder.PutUint64(buf[108:116], pos.PositionSeedOffset)
	buf[116] = byte(pos.Status)
	return buf
}

func decodeFullHeader(p []byte) FullPositionHeader {
	var market address.Address
	copy(market[:], p[0:32])
	direction := Direction(p[32])
	offset := byteOrder.Uint64(p[33:41])
	margin := getFloat64(p[41:49])
	fundSize := getFloat64(p[49:57])
	openPrice := getFloat64(p[57:65])
	return FullPositionHeader{
		MarketAccount:      market,
		Direction:          direction,
		PositionSeedOffset: offset,
		Margin:             margin,
		FundSize:           fundSize,
		OpenPrice:          openPrice,
	}
}

func encodeFullHeader(h FullPositionHeader) []byte {
	buf := make([]byte, fullHeaderLen)
	copy(buf[0:32], h.MarketAccount.Bytes())
	buf[32] = byte(h.Direction)
	byteOrder.PutUint64(buf[33:41], h.PositionSeedOffset)
	putFloat64(buf[41:49], h.Margin)
	putFloat64(buf[49:57], h.FundSize)
	putFloat64(buf[57:65], h.OpenPrice)
	return buf
}

func decodeUser(p []byte) (UserAccount, error) {
	var authority address.Address
	copy(authority[:], p[0:32])
	off := 32
	balance := getFloat64(p[off : off+8])
	off += 8
	marginTotal := getFloat64(p[off : off+8])
	off += 8
	marginFullBuy := getFloat64(p[off : off+8])
	off += 8
	marginFullSell := getFloat64(p[off : off+8])
	off += 8
	marginIndBuy := getFloat64(p[off : off+8])
	off += 8
	marginIndSell := getFloat64(p[off : off+8])
	off += 8
	seedOffset := byteOrder.Uint64(p[off : off+8])
	off += 8
	count := byteOrder.Uint16(p[off : off+2])
	off += 2

	headers := make([]FullPositionHeader, 0, count)
	for i := uint16(0); i < count && i < maxFullHeaders; i++ {
		start := off + int(i)*fullHeaderLen
		headers = append(headers, decodeFullHeader(p[start:start+fullHeaderLen]))
	}

	return UserAccount{
		Authority:                  authority,
		Balance:                    balance,
		MarginTotal:                marginTotal,
		MarginFullBuyTotal:         marginFullBuy,
		MarginFullSellTotal:        marginFullSell,
		MarginIndependentBuyTotal:  marginIndBuy,
		MarginIndependentSellTotal: marginIndSell,
		PositionSeedOffset:         seedOffset,
		OpenFullPositionHeaders:    headers,
	}, nil
}

func encodeUser(u UserAccount) []byte {
	buf := make([]byte, userPayloadLen)
	copy(buf[0:32], u.Authority.Bytes())
	off := 32
	putFloat64(buf[off:off+8], u.Balance)
	off += 8
	putFloat64(buf[off:off+8], u.MarginTotal)
	off += 8
	putFloat64(buf[off:off+8], u.MarginFullBuyTotal)
	off += 8
	putFloat64(buf[off:off+8], u.MarginFullSellTotal)
	off += 8
	putFloat64(buf[off:off+8], u.MarginIndependentBuyTotal)
	off += 8
	putFloat64(buf[off:off+8], u.MarginIndependentSellTotal)
	off += 8
	byteOrder.PutUint64(buf[off:off+8], u.PositionSeedOffset)
	off += 8
	count := uint16(len(u.OpenFullPositionHeaders))
	if count > maxFullHeaders {
		count = maxFullHeaders
	}
	byteOrder.PutUint16(buf[off:off+2], count)
	off += 2
	for i := uint16(0); i < count; i++ {
		start := off + int(i)*fullHeaderLen
		copy(buf[start:start+fullHeaderLen], encodeFullHeader(u.OpenFullPositionHeaders[i]))
	}
	return buf
}

// EncodeMarket, EncodePosition, and EncodeUser are exported for tests and
// for any collaborator (e.g. a local simulator) that needs to produce a
// well-formed account payload.
func EncodeMarket(m Market) []byte     { return encodeMarket(m) }
func EncodePosition(p Position) []byte { return encodePosition(p) }
func EncodeUser(u UserAccount) []byte  { return encodeUser(u) }
