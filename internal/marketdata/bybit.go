package marketdata

import (
	"encoding/json"
	"strconv"
)

// BybitDecoder decodes Bybit's public v5 "tickers" topic, reusing the
// same topic/data[] wire envelope as the private order/execution topics
// the CEX adapter parses.
type BybitDecoder struct {
	Symbols []string
}

type bybitPublicEvent struct {
	Topic string            `json:"topic"`
	Data  []json.RawMessage `json:"data"`
}

type bybitTickerData struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	Volume24h string `json:"volume24h"`
}

// SubscribeFrames returns the subscribe requests for every configured
// symbol's ticker topic.
func (d BybitDecoder) SubscribeFrames() [][]byte {
	frames := make([][]byte, 0, len(d.Symbols))
	for _, sym := range d.Symbols {
		args := []string{"tickers." + sym}
		frame, _ := json.Marshal(map[string]interface{}{"op": "subscribe", "args": args})
		frames = append(frames, frame)
	}
	return frames
}

// DecodeTicker extracts a (symbol, price, volume) tuple from a ticker
// event, or ok=false if the frame is not a ticker event.
func (d BybitDecoder) DecodeTicker(data []byte) (symbol string, price, volume float64, ok bool) {
	var evt bybitPublicEvent
	if err := json.Unmarshal(data, &evt); err != nil || evt.Topic == "" {
		return "", 0, 0, false
	}
	if len(evt.Topic) < 8 || evt.Topic[:8] != "tickers." {
		return "", 0, 0, false
	}
	if len(evt.Data) == 0 {
		return "", 0, 0, false
	}

	var t bybitTickerData
	if err := json.Unmarshal(evt.Data[0], &t); err != nil {
		return "", 0, 0, false
	}

	p, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return "", 0, 0, false
	}
	v, _ := strconv.ParseFloat(t.Volume24h, 64)

	return t.Symbol, p, v, true
}

// DecodeCandle is unimplemented for Bybit public tickers: klines arrive
// on a separate topic this reader does not subscribe to, matching the
// non-goal of full historical backfill — only the live ticker feed is
// wired here.
func (d BybitDecoder) DecodeCandle(data []byte) (Candle, bool) {
	return Candle{}, false
}
