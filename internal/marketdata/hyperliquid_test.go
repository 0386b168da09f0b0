package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHyperliquidDecoderDecodeTicker(t *testing.T) {
	d := HyperliquidDecoder{Coins: []string{"BTC"}}
	frame := []byte(`{"channel":"allMids","data":{"mids":{"BTC":"65000.5","ETH":"3200.1"}}}`)

	symbol, price, _, ok := d.DecodeTicker(frame)
	assert.True(t, ok)
	assert.Equal(t, "BTC", symbol)
	assert.Equal(t, 65000.5, price)
}

func TestHyperliquidDecoderMissingCoin(t *testing.T) {
	d := HyperliquidDecoder{Coins: []string{"SOL"}}
	frame := []byte(`{"channel":"allMids","data":{"mids":{"BTC":"65000.5"}}}`)
	_, _, _, ok := d.DecodeTicker(frame)
	assert.False(t, ok)
}

func TestHyperliquidDecoderWrongChannel(t *testing.T) {
	d := HyperliquidDecoder{Coins: []string{"BTC"}}
	frame := []byte(`{"channel":"userEvents","data":{}}`)
	_, _, _, ok := d.DecodeTicker(frame)
	assert.False(t, ok)
}
