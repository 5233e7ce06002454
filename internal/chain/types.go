// Package chain holds the domain entities decoded from on-chain account
// payloads: Market, UserAccount, Position, Price, and the computed
// UserDynamicData snapshot, plus the pl/funding-charge arithmetic the
// liquidator drives.
package chain

import (
	"math"

	"github.com/scale-protocol/robot/internal/address"
	"github.com/scale-protocol/robot/internal/errs"
)

// Decimals is the fixed scale constant oracle prices and fixed-point
// domain fields are normalized against: on-chain integer fields are
// scaled by this factor (hundredths), matching the round(x*100)/100
// convention used throughout this domain's arithmetic.
const Decimals = 100.0

// DiscriminatorLen is the byte width of the account-type prefix every
// on-chain record carries ahead of its payload.
const DiscriminatorLen = 8

// Direction is a position's side.
type Direction uint8

const (
	Buy Direction = iota + 1
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// PositionKind distinguishes cross-margin ("full") from isolated-margin
// ("independent") positions.
type PositionKind uint8

const (
	Full PositionKind = iota + 1
	Independent
)

// PositionStatus is a position's lifecycle state.
type PositionStatus uint8

const (
	Open PositionStatus = iota + 1
	NormalClosing
	ForceClosing
)

// IsClosing reports whether s removes the position from the active index.
func (s PositionStatus) IsClosing() bool {
	return s == NormalClosing || s == ForceClosing
}

// RawAccount is what the chain exposes: a byte payload, a lamports
// balance (zero means the backing account is closed), and its owning
// program. The discriminator prefix is used only to route decoding.
type RawAccount struct {
	Address address.Address `json:"address"`
	Payload []byte          `json:"payload"`
	Lamports uint64         `json:"lamports"`
	Owner   address.Address `json:"owner"`
}

// Closed reports whether the backing account has been reclaimed.
func (r RawAccount) Closed() bool {
	return r.Lamports == 0
}

// FullPositionHeader summarizes one cross-margin directional exposure
// inside a UserAccount's margin pool.
type FullPositionHeader struct {
	MarketAccount      address.Address `json:"market_account"`
	Direction          Direction       `json:"direction"`
	PositionSeedOffset uint64          `json:"position_seed_offset"`
	Margin             float64         `json:"margin"`
	FundSize           float64         `json:"fund_size"`
	OpenPrice          float64         `json:"open_price"`
}

// Market is a trading pair's identity and oracle wiring.
type Market struct {
	Pair                  string          `json:"pair"`
	Spread                float64         `json:"spread"`
	PythPriceAccount      address.Address `json:"pyth_price_account"`
	ChainlinkPriceAccount address.Address `json:"chainlink_price_account"`
	VaultBalance          uint64          `json:"vault_balance"`
}

// FundingCharge computes the periodic payment owed for a position of the
// given direction and notional size against this market's funding state.
// The original source stubs the funding formula (spec §4.5.2, §9); the
// zero-charge placeholder here keeps the call site shape stable without
// fabricating a rate model.
func (m Market) FundingCharge(_ Direction, _ float64) float64 {
	return 0
}

// UserAccount is a trader's account: balances, aggregated margin totals,
// the position-seed offset counter, and cross-margin exposure headers.
type UserAccount struct {
	Authority                  address.Address       `json:"authority"`
	Balance                    float64               `json:"balance"`
	MarginTotal                float64               `json:"margin_total"`
	MarginFullBuyTotal         float64               `json:"margin_full_buy_total"`
	MarginFullSellTotal        float64               `json:"margin_full_sell_total"`
	MarginIndependentBuyTotal  float64               `json:"margin_independent_buy_total"`
	MarginIndependentSellTotal float64               `json:"margin_independent_sell_total"`
	PositionSeedOffset         uint64                `json:"position_seed_offset"`
	OpenFullPositionHeaders    []FullPositionHeader  `json:"open_full_position_headers"`
}

// Position is one open order's economics.
type Position struct {
	MarketAccount      address.Address `json:"market_account"`
	Authority          address.Address `json:"authority"`
	Direction          Direction       `json:"direction"`
	Kind               PositionKind    `json:"kind"`
	Size               float64         `json:"size"`
	Leverage           uint16          `json:"leverage"`
	Margin             float64         `json:"margin"`
	OpenPrice          float64         `json:"open_price"`
	ClosePrice         float64         `json:"close_price"`
	Profit             float64         `json:"profit"`
	PositionSeedOffset uint64          `json:"position_seed_offset"`
	Status             PositionStatus  `json:"status"`
}

// PlAt computes the position's unrealized profit/loss against price,
// direction-sensitive: a long closes at the sell price, a short at the
// buy price.
func (p Position) PlAt(pr Price) float64 {
	switch p.Direction {
	case Buy:
		return (pr.SellPrice - p.OpenPrice) * p.Size
	case Sell:
		return (p.OpenPrice - pr.BuyPrice) * p.Size
	default:
		return 0
	}
}

// PlAt computes a full-position header's unrealized profit/loss against
// price, mirroring Position.PlAt but against the header's own recorded
// open price and the margin-implied notional size (margin * leverage is
// not tracked at header granularity, so margin itself stands in as the
// notional base, consistent with how the independent branch keys its pl
// off price delta rather than a separately tracked contract size).
func (h FullPositionHeader) PlAt(pr Price) float64 {
	switch h.Direction {
	case Buy:
		return (pr.SellPrice - h.OpenPrice) * h.Margin
	case Sell:
		return (h.OpenPrice - pr.BuyPrice) * h.Margin
	default:
		return 0
	}
}

// Price is a decoded oracle reading plus the market's quoted spread.
type Price struct {
	RealPrice float64 `json:"real_price"`
	Spread    float64 `json:"spread"`
	BuyPrice  float64 `json:"buy_price"`
	SellPrice float64 `json:"sell_price"`
}

// NewPrice derives buy/sell quotes from a real price and a market's
// spread fraction: spread = real_price * market.spread.
func NewPrice(real, marketSpread float64) Price {
	spread := real * marketSpread
	return Price{
		RealPrice: real,
		Spread:    spread,
		BuyPrice:  round2(real + spread),
		SellPrice: round2(real - spread),
	}
}

// UserDynamicData is the liquidator's computed per-user snapshot.
type UserDynamicData struct {
	Profit           float64 `json:"profit"`
	Equity           float64 `json:"equity"`
	MarginPercentage float64 `json:"margin_percentage"`
}

// round2 rounds to 2 fractional digits: round(x*100)/100.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Round2 exposes round2 for callers outside this package (OracleDecoder,
// QueryFacade normalization) that need the identical rounding rule.
func Round2(x float64) float64 { return round2(x) }

// lengths uniquely identify a decoded type by payload size (account
// length minus the 8-byte discriminator prefix).
const (
	marketPayloadLen   = 96
	maxFullHeaders     = 16
	fullHeaderLen      = 65 // address(32) + direction(1) + offset(8) + margin(8) + fund_size(8) + open_price(8)
	userPayloadLen     = 32 + 8*7 + 2 + maxFullHeaders*fullHeaderLen
	positionPayloadLen = 32 + 32 + 1 + 1 + 8 + 2 + 8 + 8 + 8 + 8 + 8 + 1
)

// DecodeKind identifies which domain type a payload of the given length
// (discriminator already stripped) decodes to.
func DecodeKind(payloadLen int) (string, error) {
	switch payloadLen {
	case marketPayloadLen:
		return "market", nil
	case userPayloadLen:
		return "user", nil
	case positionPayloadLen:
		return "position", nil
	default:
		return "", &errs.DecodeError{Length: payloadLen}
	}
}

// TryDeserializeMarket decodes a Market from an account payload with its
// discriminator already stripped.
func TryDeserializeMarket(payload []byte) (Market, error) {
	if len(payload) != marketPayloadLen {
		return Market{}, &errs.DecodeError{Length: len(payload)}
	}
	return decodeMarket(payload)
}

// TryDeserializeUser decodes a UserAccount from an account payload with
// its discriminator already stripped.
func TryDeserializeUser(payload []byte) (UserAccount, error) {
	if len(payload) != userPayloadLen {
		return UserAccount{}, &errs.DecodeError{Length: len(payload)}
	}
	return decodeUser(payload)
}

// TryDeserializePosition decodes a Position from an account payload with
// its discriminator already stripped.
func TryDeserializePosition(payload []byte) (Position, error) {
	if len(payload) != positionPayloadLen {
		return Position{}, &errs.DecodeError{Length: len(payload)}
	}
	return decodePosition(payload)
}
