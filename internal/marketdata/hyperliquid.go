package marketdata

import (
	"encoding/json"
	"strconv"
)

// HyperliquidDecoder decodes Hyperliquid's public "allMids" channel,
// reusing the same channel/data wire envelope the DEX adapter's private
// userEvents frames arrive in.
type HyperliquidDecoder struct {
	Coins []string
}

type hlChannelFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type hlAllMids struct {
	Mids map[string]string `json:"mids"`
}

// SubscribeFrames subscribes to the allMids channel once; Hyperliquid's
// allMids push covers every coin, so no per-symbol subscribe is needed.
func (d HyperliquidDecoder) SubscribeFrames() [][]byte {
	frame, _ := json.Marshal(map[string]interface{}{
		"method": "subscribe",
		"subscription": map[string]interface{}{
			"type": "allMids",
		},
	})
	return [][]byte{frame}
}

// DecodeTicker extracts the first configured coin's mid price found in
// an allMids push. Hyperliquid's allMids frame carries every coin at
// once; callers that need per-coin fan-out should run one decoder
// instance per coin.
func (d HyperliquidDecoder) DecodeTicker(data []byte) (symbol string, price, volume float64, ok bool) {
	var frame hlChannelFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Channel != "allMids" {
		return "", 0, 0, false
	}

	var mids hlAllMids
	if err := json.Unmarshal(frame.Data, &mids); err != nil {
		return "", 0, 0, false
	}

	for _, coin := range d.Coins {
		raw, present := mids.Mids[coin]
		if !present {
			continue
		}
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		return coin, p, 0, true
	}
	return "", 0, 0, false
}

// DecodeCandle is unimplemented: allMids carries no OHLC data, and the
// dedicated candle channel is out of scope for the minimal republish
// path built here.
func (d HyperliquidDecoder) DecodeCandle(data []byte) (Candle, bool) {
	return Candle{}, false
}
