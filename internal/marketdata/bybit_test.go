package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBybitDecoderDecodeTicker(t *testing.T) {
	d := BybitDecoder{Symbols: []string{"BTCUSDT"}}
	frame := []byte(`{"topic":"tickers.BTCUSDT","data":[{"symbol":"BTCUSDT","lastPrice":"65000.5","volume24h":"1234.5"}]}`)

	symbol, price, volume, ok := d.DecodeTicker(frame)
	assert.True(t, ok)
	assert.Equal(t, "BTCUSDT", symbol)
	assert.Equal(t, 65000.5, price)
	assert.Equal(t, 1234.5, volume)
}

func TestBybitDecoderIgnoresNonTickerTopic(t *testing.T) {
	d := BybitDecoder{}
	frame := []byte(`{"topic":"order","data":[{}]}`)
	_, _, _, ok := d.DecodeTicker(frame)
	assert.False(t, ok)
}

func TestBybitDecoderSubscribeFrames(t *testing.T) {
	d := BybitDecoder{Symbols: []string{"BTCUSDT", "ETHUSDT"}}
	frames := d.SubscribeFrames()
	assert.Len(t, frames, 2)
}
