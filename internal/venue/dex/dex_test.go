package dex

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latentspeed/internal/model"
	"latentspeed/internal/symbols"
	"latentspeed/internal/tracker"
	apperrors "latentspeed/pkg/errors"
)

func TestParseDEXError(t *testing.T) {
	assert.ErrorIs(t, ParseDEXError("Tick: price must be aligned"), apperrors.ErrPriceOutOfBounds)
	assert.ErrorIs(t, ParseDEXError("MinTradeNtl: order below minimum notional"), apperrors.ErrMinSize)
	assert.ErrorIs(t, ParseDEXError("PerpMargin: insufficient margin"), apperrors.ErrInsufficientBalance)
	assert.ErrorIs(t, ParseDEXError("ReduceOnly: would increase position"), apperrors.ErrReduceOnlyViolation)
	assert.ErrorIs(t, ParseDEXError("BadAloPx: post-only would cross"), apperrors.ErrPostOnlyViolation)
	assert.NoError(t, ParseDEXError("IocCancel: no resting liquidity"))
	assert.ErrorIs(t, ParseDEXError("MarketOrderNoLiquidity: book empty"), apperrors.ErrVenueReject)
	assert.ErrorIs(t, ParseDEXError("SomethingElse entirely"), apperrors.ErrVenueReject)
}

func TestCanonicalizePrice(t *testing.T) {
	p := symbols.Precision{PriceDecimals: 5}
	assert.Equal(t, "65000", canonicalizePrice("65000.00000", p))
	assert.Equal(t, "0.01", canonicalizePrice("0.0100000", p))
	assert.Equal(t, "", canonicalizePrice("", p))
}

func TestMapInfoStatus(t *testing.T) {
	assert.Equal(t, model.StatusAccepted, mapInfoStatus("open"))
	assert.Equal(t, model.StatusFilled, mapInfoStatus("filled"))
	assert.Equal(t, model.StatusCanceled, mapInfoStatus("canceled"))
	assert.Equal(t, model.StatusCanceled, mapInfoStatus("cancelled"))
	assert.Equal(t, model.StatusRejected, mapInfoStatus("rejected"))
	assert.Equal(t, model.StatusAccepted, mapInfoStatus("unknown-status"))
}

func TestWireOrderType(t *testing.T) {
	alo := wireOrderType(model.OrderRequest{TimeInForce: model.TIFPO})
	assert.Equal(t, "Alo", alo["limit"].(map[string]interface{})["tif"])

	ioc := wireOrderType(model.OrderRequest{TimeInForce: model.TIFIOC})
	assert.Equal(t, "Ioc", ioc["limit"].(map[string]interface{})["tif"])

	gtc := wireOrderType(model.OrderRequest{TimeInForce: model.TIFGTC})
	assert.Equal(t, "Gtc", gtc["limit"].(map[string]interface{})["tif"])
}

func TestNextNonceMonotonic(t *testing.T) {
	a := &Adapter{}
	first := a.nextNonce()
	second := a.nextNonce()
	third := a.nextNonce()
	assert.Less(t, first, second)
	assert.Less(t, second, third)
}

func TestExchangeOIDMappingIsBijective(t *testing.T) {
	a := &Adapter{
		clientIDToExchangeOID: make(map[string]string),
		exchangeOIDToClientID: make(map[string]string),
	}
	a.recordExchangeOID("C1", "12345")
	clientID, ok := a.clientIDForExchangeOID("12345")
	assert.True(t, ok)
	assert.Equal(t, "C1", clientID)
}

func TestWireCloidPassesThroughValidFormat(t *testing.T) {
	a := &Adapter{
		cloidHexToUpstream: make(map[string]string),
		upstreamToCloidHex: make(map[string]string),
	}
	valid := "0x" + strings.Repeat("a", 32)
	assert.Equal(t, valid, a.wireCloid(valid))
}

func TestWireCloidGeneratesBijectiveMappingForArbitraryID(t *testing.T) {
	a := &Adapter{
		cloidHexToUpstream: make(map[string]string),
		upstreamToCloidHex: make(map[string]string),
	}
	cloid := a.wireCloid("C1")
	assert.Regexp(t, `^0x[0-9a-f]{32}$`, cloid)

	// idempotent: the same upstream id always maps to the same cloid
	assert.Equal(t, cloid, a.wireCloid("C1"))

	upstream, ok := a.upstreamForCloidHex(cloid)
	assert.True(t, ok)
	assert.Equal(t, "C1", upstream)
}

func TestInterpretOrderStatusIocCancelRemovesTrackerEntry(t *testing.T) {
	a := &Adapter{tracker: tracker.New()}
	req := model.OrderRequest{ClientOrderID: "C1", Symbol: "BTC-USD", Side: model.SideBuy}
	require.NoError(t, a.tracker.StartTracking(req, model.TrackerExtras{Symbol: "BTC-USD"}))

	raw := []byte(`{"error":"IocCancel: no resting liquidity"}`)
	resp, err := a.interpretOrderStatus(req, raw)
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, model.StatusCanceled, resp.Status)

	_, ok := a.tracker.GetByClientID("C1")
	assert.False(t, ok)
}

func TestReferencePriceRequiresTag(t *testing.T) {
	a := &Adapter{}
	_, ok := a.referencePrice(model.OrderRequest{})
	assert.False(t, ok)

	price, ok := a.referencePrice(model.OrderRequest{Extra: map[string]string{"reference_price": "65000"}})
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(65000)))
}

func TestEmulateMarketOrderAppliesSlippage(t *testing.T) {
	a := &Adapter{cfg: Config{DefaultSlippage: decimal.NewFromFloat(0.01), DefaultPriceDec: 5}}
	req := model.OrderRequest{
		Symbol: "BTC-USD",
		Side:   model.SideBuy,
		Extra:  map[string]string{"reference_price": "100"},
	}
	out, err := a.emulateMarketOrder(req, symbols.Precision{PriceDecimals: 5})
	assert.NoError(t, err)
	assert.Equal(t, model.OrderTypeLimit, out.OrderType)
	assert.Equal(t, model.TIFIOC, out.TimeInForce)
	assert.Equal(t, "101", out.Price)
}
