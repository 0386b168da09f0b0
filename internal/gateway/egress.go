package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"latentspeed/internal/core"
	"latentspeed/internal/model"
	"latentspeed/pkg/liveserver"
)

// Egress topic names, kept in their own namespace from the market-data
// publisher's md.* topics.
const (
	TopicExecReport = "exec.report"
	TopicExecFill   = "exec.fill"
	TopicExecUpdate = "exec.update"
)

// ExecReport is the exec.report envelope.
type ExecReport struct {
	Version         int               `json:"version"`
	ClID            string            `json:"cl_id"`
	Status          string            `json:"status"`
	ExchangeOrderID string            `json:"exchange_order_id,omitempty"`
	ReasonCode      string            `json:"reason_code"`
	ReasonText      string            `json:"reason_text,omitempty"`
	TsNs            uint64            `json:"ts_ns"`
	Tags            map[string]string `json:"tags,omitempty"`
}

// ExecFill is the exec.fill envelope.
type ExecFill struct {
	Version         int               `json:"version"`
	ClID            string            `json:"cl_id"`
	ExchangeOrderID string            `json:"exchange_order_id"`
	ExecID          string            `json:"exec_id"`
	SymbolOrPair    string            `json:"symbol_or_pair"`
	Side            string            `json:"side"`
	Price           float64           `json:"price"`
	Size            float64           `json:"size"`
	FeeCurrency     string            `json:"fee_currency"`
	FeeAmount       float64           `json:"fee_amount"`
	Liquidity       string            `json:"liquidity"`
	TsNs            uint64            `json:"ts_ns"`
	Tags            map[string]string `json:"tags,omitempty"`
}

// Egress fans out execution reports and fills to any number of connected
// subscribers via a broadcast hub, as the spec's PUB socket is inherently
// one-to-many.
type Egress struct {
	hub        *liveserver.Hub
	server     *liveserver.Server
	logger     core.ILogger
	listenAddr string
}

// NewEgress creates an egress broadcaster. allowedOrigins configures the
// WebSocket origin whitelist for subscriber connections.
func NewEgress(logger core.ILogger, allowedOrigins []string) *Egress {
	l := logger.WithField("component", "egress")
	hub := liveserver.NewHub(l)
	return &Egress{
		hub:    hub,
		server: liveserver.NewServer(hub, l, allowedOrigins),
		logger: l,
	}
}

// Run starts the hub loop and the WebSocket listener, blocking until ctx
// is canceled.
func (e *Egress) Run(ctx context.Context) error {
	go e.hub.Run(ctx)
	return e.server.Start(ctx, e.listenAddr)
}

// PublishTopic broadcasts an arbitrary payload under a caller-chosen
// topic. Used by the market-data publisher to share this hub/broadcast
// mechanism under its own md.* topic namespace, distinct from exec.*.
func (e *Egress) PublishTopic(topic string, payload interface{}) {
	e.hub.Broadcast(liveserver.Message{Type: topic, Data: payload})
}

// Bind sets the HTTP/WS listen address used by Run, to satisfy the
// bootstrap.Runner interface (Run(ctx) error with no other parameters).
func (e *Egress) Bind(addr string) *Egress {
	e.listenAddr = addr
	return e
}

func floatOrZero(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// PublishReport converts a canonical OrderResponse into an exec.report
// envelope and broadcasts it.
func (e *Egress) PublishReport(clID string, resp model.OrderResponse, tsNs uint64, tags map[string]string) {
	status := string(resp.Status)
	reason := resp.ReasonCode
	if reason == "" {
		if resp.Success {
			reason = "ok"
		} else {
			reason = "venue_reject"
		}
	}
	e.hub.Broadcast(liveserver.Message{
		Type: TopicExecReport,
		Data: ExecReport{
			Version:         1,
			ClID:            clID,
			Status:          status,
			ExchangeOrderID: resp.ExchangeOrderID,
			ReasonCode:      reason,
			ReasonText:      resp.Message,
			TsNs:            tsNs,
			Tags:            tags,
		},
	})
}

// PublishUpdate converts a canonical OrderUpdate into an exec.report
// envelope for the status change it represents. Post-ack transitions
// (partially_filled, filled, canceled, ...) share the exec.report topic
// with the synchronous placement ack so a single subscription observes
// an order's full lifecycle.
func (e *Egress) PublishUpdate(update model.OrderUpdate, tags map[string]string) {
	e.hub.Broadcast(liveserver.Message{
		Type: TopicExecReport,
		Data: ExecReport{
			Version:         1,
			ClID:            update.ClientOrderID,
			Status:          string(update.Status),
			ExchangeOrderID: update.ExchangeOrderID,
			ReasonCode:      "ok",
			ReasonText:      update.Reason,
			TsNs:            update.TimestampMs * 1_000_000,
			Tags:            tags,
		},
	})
}

// PublishFill converts a canonical Fill into an exec.fill envelope and
// broadcasts it.
func (e *Egress) PublishFill(fill model.Fill, tags map[string]string) {
	e.hub.Broadcast(liveserver.Message{
		Type: TopicExecFill,
		Data: ExecFill{
			Version:         1,
			ClID:            fill.ClientOrderID,
			ExchangeOrderID: fill.ExchangeOrderID,
			ExecID:          fill.ExecID,
			SymbolOrPair:    fill.Symbol,
			Side:            string(fill.Side),
			Price:           floatOrZero(fill.Price),
			Size:            floatOrZero(fill.Quantity),
			FeeCurrency:     fill.FeeCurrency,
			FeeAmount:       floatOrZero(fill.Fee),
			Liquidity:       string(fill.Liquidity),
			TsNs:            fill.TimestampMs * 1_000_000,
			Tags:            tags,
		},
	})
}
