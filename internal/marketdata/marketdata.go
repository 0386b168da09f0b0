// Package marketdata ingests public ticker/kline streams from one or more
// venues in parallel and republishes a normalized, feature-enriched
// stream under the md.* topic namespace, kept separate from the
// gateway's exec.* execution-report namespace.
package marketdata

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"latentspeed/internal/core"
	"latentspeed/internal/wsreliable"
)

// PriceChange is the normalized ticker record published on
// md.ticker.<symbol>.
type PriceChange struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	MidPrice  float64 `json:"mid_price"`
	Volatility float64 `json:"volatility"`
	TsNs      uint64  `json:"ts_ns"`
}

// Candle is the normalized kline record published on
// md.kline.<symbol>.<interval>.
type Candle struct {
	Symbol   string  `json:"symbol"`
	Interval string  `json:"interval"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
	TsNs     uint64  `json:"ts_ns"`
}

// Publisher is the narrow egress contract the reader needs: broadcast a
// payload under a topic. Satisfied by gateway.Egress.
type Publisher interface {
	PublishTopic(topic string, payload interface{})
}

// Decoder turns one raw venue frame into zero or more normalized records.
// Implementations are venue-specific (Bybit ticker shape, Hyperliquid
// allMids shape, etc.) the way the private-WS HandleFrame hooks are.
type Decoder interface {
	DecodeTicker(data []byte) (symbol string, price, volume float64, ok bool)
	DecodeCandle(data []byte) (c Candle, ok bool)
	SubscribeFrames() [][]byte
}

// Reader runs one venue's public stream through the same reconnect-with-
// backoff primitive the private WS session uses, minus auth/subscribe-ack
// logic: public streams need no authentication and no catch-up window.
type Reader struct {
	venue     string
	url       string
	decoder   Decoder
	publisher Publisher
	logger    core.ILogger
	stats     map[string]*RollingStats
	session   *wsreliable.Session
}

// NewReader creates a public market-data reader for one venue.
func NewReader(venueName, url string, decoder Decoder, publisher Publisher, logger core.ILogger) *Reader {
	r := &Reader{
		venue:     venueName,
		url:       url,
		decoder:   decoder,
		publisher: publisher,
		logger:    logger.WithField("component", "marketdata").WithField("venue", venueName),
		stats:     make(map[string]*RollingStats),
	}

	cfg := wsreliable.DefaultConfig()
	r.session = wsreliable.New(url, wsreliable.Hooks{
		Authenticate: func(ctx context.Context, conn *websocket.Conn) error { return nil },
		Subscribe: func(ctx context.Context, conn *websocket.Conn) error {
			for _, frame := range decoder.SubscribeFrames() {
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return err
				}
			}
			return nil
		},
		CatchUp:     func(ctx context.Context) {},
		HandleFrame: r.handleFrame,
	}, cfg, r.logger)

	return r
}

// Start runs the reader until ctx is canceled.
func (r *Reader) Start(ctx context.Context) error {
	r.session.Start()
	<-ctx.Done()
	r.session.Stop()
	return nil
}

func (r *Reader) handleFrame(data []byte) bool {
	nowNs := uint64(time.Now().UnixNano())

	if symbol, price, volume, ok := r.decoder.DecodeTicker(data); ok {
		stats, exists := r.stats[symbol]
		if !exists {
			stats = NewRollingStats(defaultWindowSize)
			r.stats[symbol] = stats
		}
		stats.Observe(price)

		r.publisher.PublishTopic("md.ticker."+symbol, PriceChange{
			Symbol:     symbol,
			Price:      price,
			Volume:     volume,
			MidPrice:   stats.Mean(),
			Volatility: stats.Volatility(),
			TsNs:       nowNs,
		})
		return true
	}

	if candle, ok := r.decoder.DecodeCandle(data); ok {
		candle.TsNs = nowNs
		r.publisher.PublishTopic("md.kline."+candle.Symbol+"."+candle.Interval, candle)
		return true
	}

	return false
}
