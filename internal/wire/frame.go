// Package wire decodes the tag-value ingress protocol (spec.md §4.4, §6):
// SOH-separated `tag=value` pairs with an `8=`/`9=`/`35=` header and a
// `10=NNN` modulo-256 checksum trailer, into typed Messages without
// allocating on the steady path.
package wire

import "github.com/tradsys/marketcore/internal/types"

// SOH is the field separator of the tag-value wire format.
const SOH = 0x01

// Well-known tags used by the core.
const (
	TagBeginString  = 8
	TagBodyLength   = 9
	TagMsgType      = 35
	TagSymbol       = 55
	TagLastPrice    = 31
	TagLastQty      = 32
	TagBidPrice     = 132
	TagAskPrice     = 133
	TagBidSize      = 134
	TagAskSize      = 135
	TagSendingTime  = 52
	TagSide         = 54   // FIX-standard Side tag; carried by order add/modify/delete frames
	TagOldPrice     = 1004 // non-standard extension: the level a MODIFY decrements before adding the new one
	TagTradeID      = 1003 // non-standard extension; simulator-specific
	TagChecksum     = 10
)

// Side values on tag 54, following FIX convention.
const (
	sideValueBuy  = '1'
	sideValueSell = '2'
)

// Message-kind single-character tag 35 values. The core does not inherit a
// standard wire identity (spec.md §4.4), so these codes are a closed,
// internal convention rather than a borrowed external protocol's.
const (
	MsgTypeTrade        = 'T'
	MsgTypeQuote        = 'Q'
	MsgTypeOrderAdd     = 'A'
	MsgTypeOrderModify  = 'M'
	MsgTypeOrderDelete  = 'X'
	MsgTypeBookSnapshot = 'S'
	MsgTypeHeartbeat    = '0'
	MsgTypeStatistics   = 'Z'
)

// maxTag bounds the tag-indexed field lookup table; tags at or beyond this
// are outside the core's known tag space and are dropped silently rather
// than rejected, per spec.md's "unknown tags beyond the table are dropped".
const maxTag = 1024

// maxFields bounds the number of fields accepted per frame; exceeding it
// aborts parsing with TooManyFields.
const maxFields = 256

// ParsedFrame is a decoded tag-value frame: a tag-indexed table of
// byte-slice views into the original input (no copies) plus typed
// accessors for the tags the core understands.
type ParsedFrame struct {
	kind MessageKind

	// table[tag] is the raw value bytes for tag, or nil if absent. Views
	// alias the input slice passed to Parser.Parse and are only valid until
	// the next Parse call (or until the caller stops referencing the input).
	table [maxTag][]byte

	receiveTs types.Timestamp
}

// MessageKind mirrors types.MessageKind but is decoded straight from the
// wire's single-character tag 35 before being mapped to the engine's
// MessageKind in ToMessage.
type MessageKind byte

// Kind returns the frame's decoded message kind tag (tag 35), raw.
func (f *ParsedFrame) Kind() MessageKind { return f.kind }

func (f *ParsedFrame) field(tag int) []byte {
	if tag < 0 || tag >= maxTag {
		return nil
	}
	return f.table[tag]
}

// Symbol returns tag 55, or the zero Symbol if absent.
func (f *ParsedFrame) Symbol() types.Symbol {
	b := f.field(TagSymbol)
	if b == nil {
		return types.Symbol{}
	}
	return types.SymbolFromString(string(b))
}

// LastPrice returns tag 31 parsed as a fixed-point Price.
func (f *ParsedFrame) LastPrice() (types.Price, error) {
	return parsePriceField(f.field(TagLastPrice))
}

// LastQty returns tag 32 parsed as a Quantity.
func (f *ParsedFrame) LastQty() (types.Quantity, error) {
	return parseQtyField(f.field(TagLastQty))
}

// BidPx returns tag 132 parsed as a fixed-point Price.
func (f *ParsedFrame) BidPx() (types.Price, error) {
	return parsePriceField(f.field(TagBidPrice))
}

// AskPx returns tag 133 parsed as a fixed-point Price.
func (f *ParsedFrame) AskPx() (types.Price, error) {
	return parsePriceField(f.field(TagAskPrice))
}

// BidSz returns tag 134 parsed as a Quantity.
func (f *ParsedFrame) BidSz() (types.Quantity, error) {
	return parseQtyField(f.field(TagBidSize))
}

// AskSz returns tag 135 parsed as a Quantity.
func (f *ParsedFrame) AskSz() (types.Quantity, error) {
	return parseQtyField(f.field(TagAskSize))
}

// SendingTime returns tag 52 converted into the engine's Timestamp domain
// using clock's startup calibration.
func (f *ParsedFrame) SendingTime(clock types.Clock) (types.Timestamp, error) {
	b := f.field(TagSendingTime)
	if b == nil {
		return 0, nil
	}
	t, err := types.ParseWireTime(string(b))
	if err != nil {
		return 0, err
	}
	return clock.ToEngineTime(t), nil
}

// Side returns tag 54 decoded into types.Side, or SideUnknown if absent or
// unrecognised.
func (f *ParsedFrame) Side() types.Side {
	b := f.field(TagSide)
	if len(b) != 1 {
		return types.SideUnknown
	}
	switch b[0] {
	case sideValueBuy:
		return types.SideBuy
	case sideValueSell:
		return types.SideSell
	default:
		return types.SideUnknown
	}
}

// OldPrice returns the non-standard tag 1004 used by MODIFY frames to carry
// the level being decremented, or 0 if absent.
func (f *ParsedFrame) OldPrice() (types.Price, error) {
	return parsePriceField(f.field(TagOldPrice))
}

// TradeID returns the non-standard tag 1003, or "" if absent.
func (f *ParsedFrame) TradeID() string {
	b := f.field(TagTradeID)
	if b == nil {
		return ""
	}
	return string(b)
}

func parsePriceField(b []byte) (types.Price, error) {
	if b == nil {
		return 0, nil
	}
	return types.ParsePriceASCII(b)
}

func parseQtyField(b []byte) (types.Quantity, error) {
	if b == nil {
		return 0, nil
	}
	var n uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, errBadFieldSyntax
		}
		n = n*10 + uint64(c-'0')
	}
	return types.Quantity(n), nil
}

// reset clears the frame for reuse by the next Parse call.
func (f *ParsedFrame) reset() {
	for _, tag := range usedTags {
		f.table[tag] = nil
	}
	f.kind = 0
	f.receiveTs = 0
}

// usedTags lists every tag the core ever writes into table, so reset can
// clear just those slots instead of zeroing the whole maxTag-entry array.
var usedTags = []int{
	TagBeginString, TagBodyLength, TagMsgType, TagSymbol, TagLastPrice,
	TagLastQty, TagBidPrice, TagAskPrice, TagBidSize, TagAskSize,
	TagSendingTime, TagSide, TagOldPrice, TagTradeID, TagChecksum,
}
