// Package dex implements the venue adapter for EIP-712-signed on-chain
// perpetual venues, grounded on the Hyperliquid-shaped provider surface in
// the retrieved pack (asset-index resolution, cloid-keyed orders, IOC
// market emulation, batched action submission).
package dex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"latentspeed/internal/core"
	"latentspeed/internal/cursor"
	"latentspeed/internal/dedup"
	"latentspeed/internal/model"
	"latentspeed/internal/ratelimit"
	"latentspeed/internal/restsession"
	"latentspeed/internal/signing"
	"latentspeed/internal/symbols"
	"latentspeed/internal/tracker"
	"latentspeed/internal/venue"
	"latentspeed/internal/wsreliable"
	apperrors "latentspeed/pkg/errors"
	"latentspeed/pkg/tradingutils"

	"github.com/shopspring/decimal"
)

// Endpoints is the per-venue, per-environment host set.
type Endpoints struct {
	RESTBaseURL string
	WSURL       string
}

// Config tunes the adapter beyond host/signer selection.
type Config struct {
	MaxPerWindow     int
	Window           time.Duration
	BatchInterval    time.Duration
	WSPostTimeout    time.Duration
	DefaultSlippage  decimal.Decimal // used for market-order emulation when a request omits it
	DefaultPriceDec  int
	WS               wsreliable.Config
}

// DefaultConfig returns sane defaults for a Hyperliquid-shaped venue.
func DefaultConfig() Config {
	return Config{
		MaxPerWindow:    1200,
		Window:          time.Minute,
		BatchInterval:   100 * time.Millisecond,
		WSPostTimeout:   1500 * time.Millisecond,
		DefaultSlippage: decimal.NewFromFloat(0.005),
		DefaultPriceDec: 5,
		WS:              wsreliable.DefaultConfig(),
	}
}

// batchedOrder is one queued order awaiting the next batch drain.
type batchedOrder struct {
	req    model.OrderRequest
	native string
	assetIdx int
	reply  chan batchResult
}

type batchResult struct {
	resp model.OrderResponse
	err  error
}

// Adapter drives a single Hyperliquid-shaped DEX venue.
type Adapter struct {
	name         string
	endpoints    Endpoints
	bridge       *signing.Bridge
	userAddress  string
	vaultAddress string
	cfg          Config
	resolver     *symbols.Resolver
	logger       core.ILogger

	limiter *ratelimit.Limiter
	rest    *restsession.Session
	ws      *wsreliable.Session
	tracker *tracker.Tracker
	dedupWS *dedup.Deduplicator
	dedupRC *dedup.Deduplicator
	cursor  *cursor.Cursor

	nonce int64 // monotonic ms, advanced under atomic CAS in nextNonce

	// oidMu guards the client-order-id <-> venue-assigned numeric order id
	// mapping, used to resolve fills whose payload carries only "oid".
	oidMu                 sync.RWMutex
	clientIDToExchangeOID map[string]string
	exchangeOIDToClientID map[string]string

	// cloidHexMu guards the bijective mapping between an upstream client
	// order id and the "0x"+32hex cloid placed on the wire when the
	// upstream id doesn't already satisfy that format.
	cloidHexMu         sync.RWMutex
	cloidHexToUpstream map[string]string
	upstreamToCloidHex map[string]string

	fastQueue chan batchedOrder
	aloQueue  chan batchedOrder
	stopBatch chan struct{}
	batchWG   sync.WaitGroup

	cb venue.Callbacks
}

// New constructs a DEX adapter. resolver must carry the venue's
// canonical-symbol-to-asset-index metadata via symbols.Precision.AssetIndex.
func New(name string, endpoints Endpoints, bridge *signing.Bridge, userAddress, vaultAddress string, cfg Config, resolver *symbols.Resolver, logger core.ILogger) *Adapter {
	limiter := ratelimit.New(cfg.MaxPerWindow, cfg.Window)
	shared := dedup.New(50000)
	a := &Adapter{
		name:                  name,
		endpoints:             endpoints,
		bridge:                bridge,
		userAddress:           userAddress,
		vaultAddress:          vaultAddress,
		cfg:                   cfg,
		resolver:              resolver,
		logger:                logger,
		limiter:               limiter,
		tracker:               tracker.New(),
		dedupWS:               shared,
		dedupRC:               shared,
		cursor:                cursor.New(),
		clientIDToExchangeOID: make(map[string]string),
		exchangeOIDToClientID: make(map[string]string),
		cloidHexToUpstream:    make(map[string]string),
		upstreamToCloidHex:    make(map[string]string),
		fastQueue:             make(chan batchedOrder, 256),
		aloQueue:              make(chan batchedOrder, 256),
		stopBatch:             make(chan struct{}),
	}
	a.rest = restsession.New(endpoints.RESTBaseURL, noopSigner{}, limiter, logger, true)
	return a
}

// noopSigner satisfies restsession.Signer for DEX requests: the signature
// lives inside the JSON body (built by submitBatch/Cancel/Modify), not in
// HTTP headers, so there is nothing left to sign at the transport layer.
type noopSigner struct{}

func (noopSigner) Sign(req *http.Request, rawBody string) error { return nil }

// Name returns the venue name this adapter drives.
func (a *Adapter) Name() string { return a.name }

// Start begins the batch drainers and the private WS session.
func (a *Adapter) Start(ctx context.Context, cb venue.Callbacks) error {
	a.cb = cb
	a.batchWG.Add(2)
	go a.runBatcher(a.fastQueue, a.cfg.BatchInterval)
	go a.runBatcher(a.aloQueue, a.cfg.BatchInterval)

	hooks := wsreliable.Hooks{
		Subscribe:   a.subscribe,
		CatchUp:     a.catchUp,
		HandleFrame: a.handleFrame,
	}
	a.ws = wsreliable.New(a.endpoints.WSURL, hooks, a.cfg.WS, a.logger)
	a.ws.Start()
	return nil
}

// Stop tears down the batchers and the WS session.
func (a *Adapter) Stop() error {
	close(a.stopBatch)
	a.batchWG.Wait()
	if a.ws != nil {
		a.ws.Stop()
	}
	return nil
}

// nextNonce returns a strictly increasing millisecond nonce, advancing past
// wall-clock time if called faster than 1ms apart.
func (a *Adapter) nextNonce() int64 {
	for {
		now := time.Now().UnixMilli()
		current := atomic.LoadInt64(&a.nonce)
		next := now
		if next <= current {
			next = current + 1
		}
		if atomic.CompareAndSwapInt64(&a.nonce, current, next) {
			return next
		}
	}
}

// recordExchangeOID registers the mapping between a client order id and the
// venue-assigned numeric order id, needed because fill events that omit
// "cloid" identify the order by "oid" only.
func (a *Adapter) recordExchangeOID(clientOrderID, exchangeOrderID string) {
	if clientOrderID == "" || exchangeOrderID == "" {
		return
	}
	a.oidMu.Lock()
	defer a.oidMu.Unlock()
	a.clientIDToExchangeOID[clientOrderID] = exchangeOrderID
	a.exchangeOIDToClientID[exchangeOrderID] = clientOrderID
}

func (a *Adapter) clientIDForExchangeOID(exchangeOrderID string) (string, bool) {
	a.oidMu.RLock()
	defer a.oidMu.RUnlock()
	clientOrderID, ok := a.exchangeOIDToClientID[exchangeOrderID]
	return clientOrderID, ok
}

// cloidPattern matches the "0x"+32hex client order id format the venue
// requires on the wire.
var cloidPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{32}$`)

// wireCloid returns the "0x"+32hex client order id to place on the wire for
// upstreamID. Upstream ids already in that format pass through unchanged;
// anything else gets a generated cloid recorded in a bijective map so WS
// fill events (which echo the cloid, not the upstream id) can be resolved
// back to the caller's original id.
func (a *Adapter) wireCloid(upstreamID string) string {
	if cloidPattern.MatchString(upstreamID) {
		return upstreamID
	}
	a.cloidHexMu.Lock()
	defer a.cloidHexMu.Unlock()
	if hex, ok := a.upstreamToCloidHex[upstreamID]; ok {
		return hex
	}
	hex := "0x" + strings.ReplaceAll(uuid.New().String(), "-", "")
	a.upstreamToCloidHex[upstreamID] = hex
	a.cloidHexToUpstream[hex] = upstreamID
	return hex
}

// upstreamForCloidHex reverses wireCloid's mapping for a cloid seen on an
// inbound WS/REST event.
func (a *Adapter) upstreamForCloidHex(cloid string) (string, bool) {
	a.cloidHexMu.RLock()
	defer a.cloidHexMu.RUnlock()
	upstreamID, ok := a.cloidHexToUpstream[cloid]
	return upstreamID, ok
}

// subscribe sends the venue's subscription frames for user events and
// funding updates.
func (a *Adapter) subscribe(ctx context.Context, conn *websocket.Conn) error {
	msg := map[string]interface{}{
		"method": "subscribe",
		"subscription": map[string]interface{}{
			"type": "userEvents",
			"user": a.userAddress,
		},
	}
	return conn.WriteJSON(msg)
}

// catchUp replays fills since the cursor after a reconnect. It does not
// snapshot open orders, so the tracker is not rehydrated from REST.
func (a *Adapter) catchUp(ctx context.Context) {
	since := a.cursor.CatchUpSince(uint64(time.Now().UnixMilli()))
	fills, err := a.listFillsSince(ctx, since)
	if err != nil {
		a.logger.Warn("dex catch-up: list fills failed", "venue", a.name, "error", err)
		return
	}
	for _, f := range fills {
		if !a.dedupRC.TryAdmit(f.ExecID) {
			continue
		}
		a.cursor.MaybeAdvance(f.TimestampMs)
		if a.cb.OnFill != nil {
			a.cb.OnFill(f)
		}
	}
}

type wsUserEventFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type wsFill struct {
	Coin   string `json:"coin"`
	Px     string `json:"px"`
	Sz     string `json:"sz"`
	Side   string `json:"side"`
	Time   int64  `json:"time"`
	Oid    int64  `json:"oid"`
	Cloid  string `json:"cloid"`
	Hash   string `json:"hash"`
	Fee    string `json:"fee"`
	FeeTok string `json:"feeToken"`
	Crossed bool  `json:"crossed"`
}

type wsFunding struct {
	Coin   string `json:"coin"`
	Rate   string `json:"fundingRate"`
	Time   int64  `json:"time"`
}

// handleFrame routes one inbound WS frame, reporting whether it carried a
// private fill/order event for the quiet-stream timers. Funding updates are
// logged, not forwarded; a frame carrying only funding updates still counts
// as a private event.
func (a *Adapter) handleFrame(data []byte) bool {
	var frame wsUserEventFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return false
	}
	switch frame.Channel {
	case "user":
		var payload struct {
			Fills    []wsFill    `json:"fills"`
			Fundings []wsFunding `json:"fundings"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			return false
		}
		for _, f := range payload.Fundings {
			a.logger.Info("funding update", "venue", a.name, "coin", f.Coin, "rate", f.Rate, "time", f.Time)
		}
		if len(payload.Fills) == 0 {
			return len(payload.Fundings) > 0
		}
		for _, f := range payload.Fills {
			execID := fmt.Sprintf("%s:%d", f.Hash, f.Oid)
			if !a.dedupWS.TryAdmit(execID) {
				continue
			}
			ts := uint64(f.Time)
			a.cursor.MaybeAdvance(ts)

			clOrderID := f.Cloid
			if clOrderID != "" {
				if upstream, ok := a.upstreamForCloidHex(clOrderID); ok {
					clOrderID = upstream
				}
			} else if mapped, ok := a.clientIDForExchangeOID(fmt.Sprintf("%d", f.Oid)); ok {
				clOrderID = mapped
			}
			side := model.SideBuy
			if strings.EqualFold(f.Side, "A") || strings.EqualFold(f.Side, "sell") {
				side = model.SideSell
			}
			liquidity := model.LiquidityMaker
			if f.Crossed {
				liquidity = model.LiquidityTaker
			}
			if a.cb.OnFill != nil {
				a.cb.OnFill(model.Fill{
					ExecID:          execID,
					ClientOrderID:   clOrderID,
					ExchangeOrderID: fmt.Sprintf("%d", f.Oid),
					Symbol:          f.Coin,
					Side:            side,
					Price:           f.Px,
					Quantity:        f.Sz,
					Fee:             f.Fee,
					FeeCurrency:     f.FeeTok,
					Liquidity:       liquidity,
					TimestampMs:     ts,
				})
			}
		}
		return true
	default:
		return false
	}
}

// Place submits an order. Post-only/ALO orders and fast time-in-forces are
// routed to separate send queues, each drained at the configured batch
// cadence; market orders are emulated as IOC with a slippage-adjusted
// limit price around the request's reference_price tag (see referencePrice).
func (a *Adapter) Place(ctx context.Context, req model.OrderRequest) (model.OrderResponse, error) {
	native, err := a.resolver.ToNative(req.Symbol)
	if err != nil {
		return model.OrderResponse{Success: false, Message: err.Error(), ReasonCode: "unknown_symbol"}, err
	}
	precision, _ := a.resolver.PrecisionFor(req.Symbol)

	if req.OrderType == model.OrderTypeMarket {
		req, err = a.emulateMarketOrder(req, precision)
		if err != nil {
			return model.OrderResponse{Success: false, Message: err.Error(), ReasonCode: apperrors.ReasonCode(err)}, err
		}
	} else {
		req.Price = canonicalizePrice(req.Price, precision)
	}
	req.Quantity = signing.CanonicalizeDecimal(req.Quantity)

	extras := model.TrackerExtras{
		Category:   req.Category,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Price:      req.Price,
		Quantity:   req.Quantity,
		ReduceOnly: req.ReduceOnly,
	}
	if err := a.tracker.StartTracking(req, extras); err != nil {
		return model.OrderResponse{Success: false, Message: err.Error()}, err
	}

	reply := make(chan batchResult, 1)
	item := batchedOrder{req: req, native: native, assetIdx: precision.AssetIndex, reply: reply}

	queue := a.fastQueue
	if req.TimeInForce == model.TIFPO {
		queue = a.aloQueue
	}
	select {
	case queue <- item:
	case <-ctx.Done():
		a.tracker.Remove(req.ClientOrderID)
		return model.OrderResponse{Success: false, Message: "context canceled"}, ctx.Err()
	}

	select {
	case result := <-reply:
		return result.resp, result.err
	case <-ctx.Done():
		return model.OrderResponse{Success: false, Message: "context canceled"}, ctx.Err()
	}
}

// emulateMarketOrder converts a market order into an IOC limit order priced
// slippage_bps away from the request's reference_price tag on the requested
// side. No top-of-book price is fetched over REST when the tag is absent.
func (a *Adapter) emulateMarketOrder(req model.OrderRequest, precision symbols.Precision) (model.OrderRequest, error) {
	ref, ok := a.referencePrice(req)
	if !ok {
		return req, apperrors.ErrPriceOutOfBounds
	}
	slippage := a.cfg.DefaultSlippage
	if bps, ok := req.Extra["slippage_bps"]; ok {
		if parsed, err := decimal.NewFromString(bps); err == nil {
			slippage = parsed.Div(decimal.NewFromInt(10000))
		}
	}
	adjusted := ref
	if req.Side == model.SideBuy {
		adjusted = ref.Mul(decimal.NewFromInt(1).Add(slippage))
	} else {
		adjusted = ref.Mul(decimal.NewFromInt(1).Sub(slippage))
	}
	req.Price = tradingutils.SignificantFigures(adjusted, a.priceSigFigs(precision)).String()
	req.OrderType = model.OrderTypeLimit
	req.TimeInForce = model.TIFIOC
	return req, nil
}

func (a *Adapter) priceSigFigs(p symbols.Precision) int {
	if p.PriceDecimals > 0 {
		return p.PriceDecimals
	}
	if a.cfg.DefaultPriceDec > 0 {
		return a.cfg.DefaultPriceDec
	}
	return 5
}

// referencePrice resolves the last-fill-or-top-of-book price a market order
// is emulated around. The adapter itself carries no independent price feed;
// callers (the gateway's market-data cache, per SPEC_FULL.md §12) attach it
// as a request tag. Missing the tag fails the order with price_out_of_bounds
// rather than silently defaulting to a zero reference price.
func (a *Adapter) referencePrice(req model.OrderRequest) (decimal.Decimal, bool) {
	raw, ok := req.Extra["reference_price"]
	if !ok || raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func canonicalizePrice(price string, p symbols.Precision) string {
	if price == "" {
		return price
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return signing.CanonicalizeDecimal(price)
	}
	sigFigs := p.PriceDecimals
	if sigFigs <= 0 {
		sigFigs = 5
	}
	return signing.CanonicalizeDecimal(tradingutils.SignificantFigures(d, sigFigs).String())
}

// runBatcher drains one send queue at the configured cadence, submitting
// every order accumulated since the last tick as a single action.
func (a *Adapter) runBatcher(queue chan batchedOrder, interval time.Duration) {
	defer a.batchWG.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []batchedOrder
	for {
		select {
		case <-a.stopBatch:
			a.failPending(pending, apperrors.ErrInternal)
			return
		case item := <-queue:
			pending = append(pending, item)
		case <-ticker.C:
			if len(pending) == 0 {
				continue
			}
			a.submitBatch(pending)
			pending = nil
		}
	}
}

func (a *Adapter) failPending(pending []batchedOrder, err error) {
	for _, item := range pending {
		item.reply <- batchResult{resp: model.OrderResponse{Success: false, Message: err.Error()}, err: err}
	}
}

// submitBatch signs and posts one order action containing every order
// queued since the last drain, then fans the per-order results back out to
// their callers.
func (a *Adapter) submitBatch(pending []batchedOrder) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orders := make([]map[string]interface{}, 0, len(pending))
	for _, item := range pending {
		orders = append(orders, map[string]interface{}{
			"a": item.assetIdx,
			"b": item.req.Side == model.SideBuy,
			"p": item.req.Price,
			"s": item.req.Quantity,
			"r": item.req.ReduceOnly,
			"t": wireOrderType(item.req),
			"c": a.wireCloid(item.req.ClientOrderID),
		})
	}
	action := map[string]interface{}{
		"type":     "order",
		"orders":   orders,
		"grouping": "na",
	}

	if a.limiter.Throttle(ctx) != nil {
		a.failPending(pending, apperrors.ErrRateLimited)
		return
	}

	nonce := a.nextNonce()
	actionJSON, _ := json.Marshal(action)
	sig, err := a.bridge.Sign(ctx, signing.BridgeRequest{
		Action:       actionJSON,
		NonceMs:      nonce,
		VaultAddress: a.vaultAddress,
	}, 5*time.Second)
	if err != nil {
		a.failPending(pending, apperrors.ErrSignFailed)
		return
	}

	envelope := map[string]interface{}{
		"action":    action,
		"nonce":     nonce,
		"signature": sig,
	}
	if a.vaultAddress != "" {
		envelope["vaultAddress"] = a.vaultAddress
	} else {
		envelope["vaultAddress"] = nil
	}

	raw, _ := json.Marshal(envelope)
	resp, err := a.rest.Perform(ctx, "POST", "/exchange", nil, string(raw))
	if err != nil {
		a.failPending(pending, err)
		return
	}

	var parsed struct {
		Status   string `json:"status"`
		Response struct {
			Data struct {
				Statuses []json.RawMessage `json:"statuses"`
			} `json:"data"`
		} `json:"response"`
	}
	if err := json.Unmarshal(resp, &parsed); err != nil {
		a.failPending(pending, err)
		return
	}
	if len(parsed.Response.Data.Statuses) != len(pending) {
		a.failPending(pending, apperrors.ErrVenueReject)
		return
	}

	for i, item := range pending {
		status := parsed.Response.Data.Statuses[i]
		orderResp, venueErr := a.interpretOrderStatus(item.req, status)
		if venueErr == nil && orderResp.ExchangeOrderID != "" {
			a.tracker.BackfillExchangeID(item.req.ClientOrderID, orderResp.ExchangeOrderID)
			a.recordExchangeOID(item.req.ClientOrderID, orderResp.ExchangeOrderID)
		}
		item.reply <- batchResult{resp: orderResp, err: venueErr}
	}
}

func wireOrderType(req model.OrderRequest) map[string]interface{} {
	if req.TimeInForce == model.TIFPO {
		return map[string]interface{}{"limit": map[string]interface{}{"tif": "Alo"}}
	}
	if req.TimeInForce == model.TIFIOC {
		return map[string]interface{}{"limit": map[string]interface{}{"tif": "Ioc"}}
	}
	return map[string]interface{}{"limit": map[string]interface{}{"tif": "Gtc"}}
}

// interpretOrderStatus parses one per-order status entry from a batched
// action response, mapping venue error strings onto the taxonomy.
func (a *Adapter) interpretOrderStatus(req model.OrderRequest, raw json.RawMessage) (model.OrderResponse, error) {
	var status struct {
		Resting *struct {
			Oid int64 `json:"oid"`
		} `json:"resting"`
		Filled *struct {
			Oid      int64  `json:"oid"`
			AvgPx    string `json:"avgPx"`
			TotalSz  string `json:"totalSz"`
		} `json:"filled"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &status); err != nil {
		return model.OrderResponse{Success: false, Message: "unmarshal failed"}, err
	}
	if status.Error != "" {
		err := ParseDEXError(status.Error)
		if err == nil {
			// IocCancel: the order never rested and holds no venue-side
			// state, so the tracker entry it was seeded under is removed
			// here rather than waiting on a terminal WS event that will
			// never arrive.
			a.tracker.Remove(req.ClientOrderID)
			return model.OrderResponse{
				Success:       true,
				Message:       status.Error,
				ClientOrderID: req.ClientOrderID,
				Status:        model.StatusCanceled,
			}, nil
		}
		return model.OrderResponse{
			Success:       false,
			Message:       status.Error,
			ClientOrderID: req.ClientOrderID,
			ReasonCode:    apperrors.ReasonCode(err),
		}, err
	}
	if status.Resting != nil {
		return model.OrderResponse{
			Success:         true,
			Message:         "ok",
			ExchangeOrderID: fmt.Sprintf("%d", status.Resting.Oid),
			ClientOrderID:   req.ClientOrderID,
			Status:          model.StatusAccepted,
		}, nil
	}
	if status.Filled != nil {
		return model.OrderResponse{
			Success:         true,
			Message:         "ok",
			ExchangeOrderID: fmt.Sprintf("%d", status.Filled.Oid),
			ClientOrderID:   req.ClientOrderID,
			Status:          model.StatusFilled,
		}, nil
	}
	return model.OrderResponse{Success: false, Message: "unrecognized order status", ClientOrderID: req.ClientOrderID}, apperrors.ErrInternal
}

// ParseDEXError maps a venue error string onto the taxonomy. IOC orders
// with no resting liquidity are a normal (not error) outcome.
func ParseDEXError(msg string) error {
	switch {
	case strings.Contains(msg, "Tick"):
		return apperrors.ErrPriceOutOfBounds
	case strings.Contains(msg, "MinTradeNtl"):
		return apperrors.ErrMinSize
	case strings.Contains(msg, "PerpMargin"):
		return apperrors.ErrInsufficientBalance
	case strings.Contains(msg, "ReduceOnly"):
		return apperrors.ErrReduceOnlyViolation
	case strings.Contains(msg, "BadAloPx"):
		return apperrors.ErrPostOnlyViolation
	case strings.Contains(msg, "IocCancel"):
		return nil
	case strings.Contains(msg, "MarketOrderNoLiquidity"):
		return apperrors.ErrVenueReject
	default:
		return fmt.Errorf("%w: %s", apperrors.ErrVenueReject, msg)
	}
}

// Cancel cancels a tracked order, preferring cancel-by-cloid semantics.
func (a *Adapter) Cancel(ctx context.Context, req model.CancelRequest) (model.OrderResponse, error) {
	entry, ok := a.tracker.GetByClientID(req.ClientOrderID)
	if !ok {
		return model.OrderResponse{Success: true, Message: "already canceled", Status: model.StatusCanceled}, nil
	}
	precision, _ := a.resolver.PrecisionFor(entry.Extras.Symbol)

	action := map[string]interface{}{
		"type": "cancelByCloid",
		"cancels": []map[string]interface{}{
			{"asset": precision.AssetIndex, "cloid": a.wireCloid(req.ClientOrderID)},
		},
	}
	if err := a.limiter.Throttle(ctx); err != nil {
		return model.OrderResponse{Success: false, Message: err.Error(), ReasonCode: "rate_limited"}, err
	}

	nonce := a.nextNonce()
	actionJSON, _ := json.Marshal(action)
	sig, err := a.bridge.Sign(ctx, signing.BridgeRequest{Action: actionJSON, NonceMs: nonce, VaultAddress: a.vaultAddress}, 5*time.Second)
	if err != nil {
		return model.OrderResponse{Success: false, Message: "sign_failed", ReasonCode: "sign_failed"}, apperrors.ErrSignFailed
	}

	envelope := map[string]interface{}{"action": action, "nonce": nonce, "signature": sig}
	if a.vaultAddress != "" {
		envelope["vaultAddress"] = a.vaultAddress
	} else {
		envelope["vaultAddress"] = nil
	}
	raw, _ := json.Marshal(envelope)
	resp, err := a.rest.Perform(ctx, "POST", "/exchange", nil, string(raw))
	if err != nil {
		return model.OrderResponse{Success: false, Message: err.Error(), ReasonCode: apperrors.ReasonCode(err)}, err
	}

	var parsed struct {
		Status string `json:"status"`
	}
	json.Unmarshal(resp, &parsed)
	if parsed.Status != "ok" {
		return model.OrderResponse{Success: false, Message: "cancel rejected"}, apperrors.ErrVenueReject
	}
	a.tracker.Remove(req.ClientOrderID)
	return model.OrderResponse{Success: true, Message: "ok", ClientOrderID: req.ClientOrderID, Status: model.StatusCanceled}, nil
}

// Modify amends a resting order in place.
func (a *Adapter) Modify(ctx context.Context, req model.ModifyRequest) (model.OrderResponse, error) {
	entry, ok := a.tracker.GetByClientID(req.ClientOrderID)
	if !ok {
		return model.OrderResponse{Success: false, Message: "unknown client order id"}, apperrors.ErrOrderNotFound
	}
	precision, _ := a.resolver.PrecisionFor(entry.Extras.Symbol)

	price := entry.Extras.Price
	if req.Price != "" {
		price = canonicalizePrice(req.Price, precision)
	}
	qty := entry.Extras.Quantity
	if req.Quantity != "" {
		qty = signing.CanonicalizeDecimal(req.Quantity)
	}

	action := map[string]interface{}{
		"type": "modify",
		"oid":  entry.ExchangeOrderID,
		"order": map[string]interface{}{
			"a": precision.AssetIndex,
			"b": entry.Extras.Side == model.SideBuy,
			"p": price,
			"s": qty,
			"r": entry.Extras.ReduceOnly,
			"t": map[string]interface{}{"limit": map[string]interface{}{"tif": "Gtc"}},
			"c": a.wireCloid(req.ClientOrderID),
		},
	}
	if err := a.limiter.Throttle(ctx); err != nil {
		return model.OrderResponse{Success: false, Message: err.Error(), ReasonCode: "rate_limited"}, err
	}

	nonce := a.nextNonce()
	actionJSON, _ := json.Marshal(action)
	sig, err := a.bridge.Sign(ctx, signing.BridgeRequest{Action: actionJSON, NonceMs: nonce, VaultAddress: a.vaultAddress}, 5*time.Second)
	if err != nil {
		return model.OrderResponse{Success: false, Message: "sign_failed", ReasonCode: "sign_failed"}, apperrors.ErrSignFailed
	}
	envelope := map[string]interface{}{"action": action, "nonce": nonce, "signature": sig}
	if a.vaultAddress != "" {
		envelope["vaultAddress"] = a.vaultAddress
	} else {
		envelope["vaultAddress"] = nil
	}
	raw, _ := json.Marshal(envelope)
	resp, err := a.rest.Perform(ctx, "POST", "/exchange", nil, string(raw))
	if err != nil {
		return model.OrderResponse{Success: false, Message: err.Error(), ReasonCode: apperrors.ReasonCode(err)}, err
	}
	var parsed struct {
		Status string `json:"status"`
	}
	json.Unmarshal(resp, &parsed)
	if parsed.Status != "ok" {
		return model.OrderResponse{Success: false, Message: "modify rejected"}, apperrors.ErrVenueReject
	}
	return model.OrderResponse{Success: true, Message: "ok", ClientOrderID: req.ClientOrderID, Status: model.StatusReplaced}, nil
}

// Query fetches the current order state via the venue's info endpoint.
func (a *Adapter) Query(ctx context.Context, clientOrderID string) (model.OrderResponse, error) {
	entry, ok := a.tracker.GetByClientID(clientOrderID)
	if !ok {
		return model.OrderResponse{Success: false, Message: "unknown client order id"}, apperrors.ErrOrderNotFound
	}
	body := map[string]interface{}{
		"type": "orderStatus",
		"oid":  entry.ExchangeOrderID,
	}
	raw, _ := json.Marshal(body)
	resp, err := a.rest.Perform(ctx, "POST", "/info", nil, string(raw))
	if err != nil {
		return model.OrderResponse{Success: false, Message: err.Error(), ReasonCode: apperrors.ReasonCode(err)}, err
	}
	var parsed struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return model.OrderResponse{Success: false, Message: "unmarshal failed"}, err
	}
	return model.OrderResponse{
		Success:         true,
		ExchangeOrderID: entry.ExchangeOrderID,
		ClientOrderID:   clientOrderID,
		Status:          mapInfoStatus(parsed.Order.Status),
	}, nil
}

func mapInfoStatus(raw string) model.OrderStatus {
	switch strings.ToLower(raw) {
	case "open":
		return model.StatusAccepted
	case "filled":
		return model.StatusFilled
	case "canceled", "cancelled":
		return model.StatusCanceled
	case "rejected":
		return model.StatusRejected
	default:
		return model.StatusAccepted
	}
}

// listFillsSince fetches the user's fills since sinceMs for catch-up replay.
func (a *Adapter) listFillsSince(ctx context.Context, sinceMs uint64) ([]model.Fill, error) {
	body := map[string]interface{}{
		"type":      "userFillsByTime",
		"startTime": sinceMs,
	}
	raw, _ := json.Marshal(body)
	resp, err := a.rest.Perform(ctx, "POST", "/info", nil, string(raw))
	if err != nil {
		return nil, err
	}
	var entries []wsFill
	if err := json.Unmarshal(resp, &entries); err != nil {
		return nil, err
	}
	fills := make([]model.Fill, 0, len(entries))
	for _, f := range entries {
		execID := fmt.Sprintf("%s:%d", f.Hash, f.Oid)
		side := model.SideBuy
		if strings.EqualFold(f.Side, "A") || strings.EqualFold(f.Side, "sell") {
			side = model.SideSell
		}
		clOrderID := f.Cloid
		if clOrderID != "" {
			if upstream, ok := a.upstreamForCloidHex(clOrderID); ok {
				clOrderID = upstream
			}
		} else if mapped, ok := a.clientIDForExchangeOID(fmt.Sprintf("%d", f.Oid)); ok {
			clOrderID = mapped
		}
		liquidity := model.LiquidityMaker
		if f.Crossed {
			liquidity = model.LiquidityTaker
		}
		fills = append(fills, model.Fill{
			ExecID:          execID,
			ClientOrderID:   clOrderID,
			ExchangeOrderID: fmt.Sprintf("%d", f.Oid),
			Symbol:          f.Coin,
			Side:            side,
			Price:           f.Px,
			Quantity:        f.Sz,
			Fee:             f.Fee,
			FeeCurrency:     f.FeeTok,
			Liquidity:       liquidity,
			TimestampMs:     uint64(f.Time),
		})
	}
	return fills, nil
}
