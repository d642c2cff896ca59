package wire

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradsys/marketcore/internal/types"
)

func buildFrame(fields map[int]string, order []int) []byte {
	var out []byte
	for _, tag := range order {
		out = append(out, []byte(fmt.Sprintf("%d=%s", tag, fields[tag]))...)
		out = append(out, SOH)
	}
	return out
}

func tradeFrame(symbol, price, qty string) []byte {
	fields := map[int]string{
		TagBeginString: "1.0",
		TagBodyLength:  "0",
		TagMsgType:     string(rune(MsgTypeTrade)),
		TagSymbol:      symbol,
		TagLastPrice:   price,
		TagLastQty:     qty,
		TagSendingTime: "20260731-10:00:00.000",
	}
	order := []int{TagBeginString, TagBodyLength, TagMsgType, TagSymbol, TagLastPrice, TagLastQty, TagSendingTime}
	return buildFrame(fields, order)
}

func TestParseTradeFrame(t *testing.T) {
	p, err := NewParser(types.NewClock(), false)
	require.NoError(t, err)
	defer p.Close()

	raw := tradeFrame("AAPL", "150.25", "100")
	f, err := p.Parse(raw, 1)
	require.NoError(t, err)
	assert.Equal(t, MessageKind(MsgTypeTrade), f.Kind())
	assert.Equal(t, "AAPL", f.Symbol().String())

	price, err := f.LastPrice()
	require.NoError(t, err)
	assert.Equal(t, types.Price(1502500), price)

	msg, err := p.ToMessage(f)
	require.NoError(t, err)
	assert.Equal(t, types.MessageTrade, msg.Kind)
	assert.NotEmpty(t, msg.Trade.TradeID)
}

func TestParseMissingSOHIsBadFieldSyntax(t *testing.T) {
	p, err := NewParser(types.NewClock(), false)
	require.NoError(t, err)
	defer p.Close()
	_, err = p.Parse([]byte("8=1.0"), 1)
	assert.Error(t, err, "expected error for frame missing SOH terminator")
}

func TestParseTooShort(t *testing.T) {
	p, err := NewParser(types.NewClock(), false)
	require.NoError(t, err)
	defer p.Close()
	_, err = p.Parse([]byte{}, 1)
	assert.Error(t, err, "expected TooShort error for empty frame")
}

func TestParseUnknownMessageKind(t *testing.T) {
	p, err := NewParser(types.NewClock(), false)
	require.NoError(t, err)
	defer p.Close()

	fields := map[int]string{
		TagBeginString: "1.0",
		TagMsgType:     "?",
	}
	raw := buildFrame(fields, []int{TagBeginString, TagMsgType})
	_, err = p.Parse(raw, 1)
	assert.Error(t, err, "expected UnknownMessageKind error")
}

func TestChecksumBitFlipInvalidatesFrame(t *testing.T) {
	p, err := NewParser(types.NewClock(), true)
	require.NoError(t, err)
	defer p.Close()

	body := tradeFrame("AAPL", "150.25", "100")
	sum := Checksum(body)
	raw := append(append([]byte{}, body...), []byte(fmt.Sprintf("10=%03d", sum))...)
	raw = append(raw, SOH)

	_, err = p.Parse(raw, 1)
	require.NoError(t, err, "well-formed checksum should parse")

	// Flip one bit of a digit well inside the body (not a tag/value/SOH
	// delimiter), so the frame remains structurally well-formed but its
	// checksum no longer matches.
	corrupted := append([]byte{}, raw...)
	flipIdx := len(body) - 2 // last digit of the sending-time fractional part
	corrupted[flipIdx] ^= 0x01
	_, err = p.Parse(corrupted, 1)
	assert.Error(t, err, "expected checksum mismatch after single-bit flip")
}

func TestParserReuseDoesNotCarryOverFields(t *testing.T) {
	p, err := NewParser(types.NewClock(), false)
	require.NoError(t, err)
	defer p.Close()

	raw1 := tradeFrame("AAPL", "150.25", "100")
	f1, err := p.Parse(raw1, 1)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", f1.Symbol().String())

	raw2 := tradeFrame("MSFT", "300.00", "50")
	f2, err := p.Parse(raw2, 2)
	require.NoError(t, err)
	assert.Equal(t, "MSFT", f2.Symbol().String(), "frame 2 should not carry over frame 1's fields")
}
