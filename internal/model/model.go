// Package model defines the canonical order/fill schema that every venue
// adapter normalizes onto. Nothing in this package talks to a venue or a
// transport; it is the shared vocabulary between the gateway, the tracker
// and the adapters.
package model

// Side is the canonical order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the canonical order type.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// TimeInForce is the canonical time-in-force.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFPO  TimeInForce = "PO"
)

// Category is the canonical product category.
type Category string

const (
	CategorySpot      Category = "spot"
	CategoryLinear    Category = "linear"
	CategoryInverse   Category = "inverse"
	CategoryOption    Category = "option"
	CategoryPerpetual Category = "perpetual"
)

// MarginMode is the canonical margin mode.
type MarginMode string

const (
	MarginCross    MarginMode = "cross"
	MarginIsolated MarginMode = "isolated"
)

// OrderStatus is the canonical order lifecycle state.
type OrderStatus string

const (
	StatusNew             OrderStatus = "new"
	StatusAccepted        OrderStatus = "accepted"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCanceled        OrderStatus = "canceled"
	StatusRejected        OrderStatus = "rejected"
	StatusReplaced        OrderStatus = "replaced"
)

// IsTerminal reports whether the tracker should drop the entry for this status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected:
		return true
	default:
		return false
	}
}

// Liquidity is the canonical fill liquidity flag.
type Liquidity string

const (
	LiquidityMaker Liquidity = "maker"
	LiquidityTaker Liquidity = "taker"
)

// Action is the ingress action kind.
type Action string

const (
	ActionPlace  Action = "place"
	ActionCancel Action = "cancel"
	ActionModify Action = "modify"
)

// OrderRequest is the canonical order request. Immutable once submitted to
// an adapter.
type OrderRequest struct {
	ClientOrderID string            `json:"client_order_id"`
	Symbol        string            `json:"symbol"`
	Side          Side              `json:"side"`
	OrderType     OrderType         `json:"order_type"`
	Quantity      string            `json:"quantity"`
	Price         string            `json:"price,omitempty"`
	TimeInForce   TimeInForce       `json:"time_in_force,omitempty"`
	ReduceOnly    bool              `json:"reduce_only,omitempty"`
	Category      Category          `json:"category,omitempty"`
	MarginMode    MarginMode        `json:"margin_mode,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// CancelRequest cancels a previously placed order by client order id.
type CancelRequest struct {
	ClientOrderID string `json:"client_order_id"`
}

// ModifyRequest amends quantity/price of a resting order.
type ModifyRequest struct {
	ClientOrderID string `json:"client_order_id"`
	Quantity      string `json:"quantity,omitempty"`
	Price         string `json:"price,omitempty"`
}

// OrderResponse is the synchronous response to place/cancel/modify.
type OrderResponse struct {
	Success         bool              `json:"success"`
	Message         string            `json:"message"`
	ExchangeOrderID string            `json:"exchange_order_id,omitempty"`
	ClientOrderID   string            `json:"client_order_id,omitempty"`
	Status          OrderStatus       `json:"status,omitempty"`
	ReasonCode      string            `json:"reason_code,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// OrderUpdate is a pushed order-state transition.
type OrderUpdate struct {
	ClientOrderID   string      `json:"client_order_id"`
	ExchangeOrderID string      `json:"exchange_order_id,omitempty"`
	Status          OrderStatus `json:"status"`
	Reason          string      `json:"reason,omitempty"`
	TimestampMs     uint64      `json:"timestamp_ms"`
}

// Fill is the canonical execution record.
type Fill struct {
	ExecID          string    `json:"exec_id"`
	ClientOrderID   string    `json:"client_order_id"`
	ExchangeOrderID string    `json:"exchange_order_id"`
	Symbol          string    `json:"symbol"`
	Side            Side      `json:"side"`
	Price           string    `json:"price"`
	Quantity        string    `json:"quantity"`
	Fee             string    `json:"fee"`
	FeeCurrency     string    `json:"fee_currency"`
	Liquidity       Liquidity `json:"liquidity"`
	TimestampMs     uint64    `json:"timestamp_ms"`
}

// TrackerExtras carries per-order metadata needed for cancel-without-round-trip
// and TP/SL tag propagation.
type TrackerExtras struct {
	Category    Category
	Symbol      string
	Side        Side
	Price       string
	Quantity    string
	ReduceOnly  bool
	ParentClID  string
	Role        string
	Tags        map[string]string
}

// TrackerEntry is a single tracked order: the immutable request snapshot
// plus mutable venue-observed state.
type TrackerEntry struct {
	Request         OrderRequest
	Extras          TrackerExtras
	ExchangeOrderID string
	LastState       OrderStatus
	LastUpdateMs    uint64
}
