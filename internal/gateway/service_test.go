package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latentspeed/internal/core"
	"latentspeed/internal/model"
	"latentspeed/internal/venue"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})                    {}
func (noopLogger) Info(string, ...interface{})                     {}
func (noopLogger) Warn(string, ...interface{})                     {}
func (noopLogger) Error(string, ...interface{})                    {}
func (noopLogger) Fatal(string, ...interface{})                    {}
func (l noopLogger) WithField(string, interface{}) core.ILogger    { return l }
func (l noopLogger) WithFields(map[string]interface{}) core.ILogger { return l }

type fakeAdapter struct {
	name      string
	placed    []model.OrderRequest
	canceled  []model.CancelRequest
	placeResp model.OrderResponse
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Start(ctx context.Context, cb venue.Callbacks) error { return nil }
func (f *fakeAdapter) Stop() error { return nil }
func (f *fakeAdapter) Place(ctx context.Context, req model.OrderRequest) (model.OrderResponse, error) {
	f.placed = append(f.placed, req)
	return f.placeResp, nil
}
func (f *fakeAdapter) Cancel(ctx context.Context, req model.CancelRequest) (model.OrderResponse, error) {
	f.canceled = append(f.canceled, req)
	return model.OrderResponse{Success: true, Status: model.StatusCanceled}, nil
}
func (f *fakeAdapter) Modify(ctx context.Context, req model.ModifyRequest) (model.OrderResponse, error) {
	return model.OrderResponse{Success: true}, nil
}
func (f *fakeAdapter) Query(ctx context.Context, clientOrderID string) (model.OrderResponse, error) {
	return model.OrderResponse{Success: true}, nil
}

func newTestService() (*Service, *fakeAdapter) {
	svc := NewService(noopLogger{}, "127.0.0.1:0", "127.0.0.1:0", []string{"*"})
	fa := &fakeAdapter{name: "bybit", placeResp: model.OrderResponse{Success: true, Status: model.StatusAccepted, ExchangeOrderID: "ex-1"}}
	svc.mu.Lock()
	svc.adapters["bybit"] = fa
	svc.mu.Unlock()
	return svc, fa
}

func TestHandleOrderDispatchesPlaceToCorrectVenue(t *testing.T) {
	svc, fa := newTestService()

	details, err := json.Marshal(model.OrderRequest{
		Symbol:    "BTCUSDT",
		Side:      model.SideBuy,
		OrderType: model.OrderTypeLimit,
		Quantity:  "0.01",
		Price:     "65000",
	})
	require.NoError(t, err)

	svc.handleOrder(ExecutionOrder{
		Version: 1,
		ClID:    "cl-1",
		Action:  "place",
		Venue:   "bybit",
		Details: details,
	})

	require.Len(t, fa.placed, 1)
	assert.Equal(t, "cl-1", fa.placed[0].ClientOrderID)
	assert.Equal(t, "BTCUSDT", fa.placed[0].Symbol)
}

func TestHandleOrderUnknownVenueDoesNotDispatch(t *testing.T) {
	svc, fa := newTestService()

	svc.handleOrder(ExecutionOrder{
		Version: 1,
		ClID:    "cl-2",
		Action:  "place",
		Venue:   "unknown-venue",
		Details: json.RawMessage(`{}`),
	})

	assert.Empty(t, fa.placed, "order for an unregistered venue must not reach any adapter")
}

func TestHandleOrderCancelDispatches(t *testing.T) {
	svc, fa := newTestService()

	details, err := json.Marshal(model.CancelRequest{})
	require.NoError(t, err)

	svc.handleOrder(ExecutionOrder{
		Version: 1,
		ClID:    "cl-3",
		Action:  "cancel",
		Venue:   "bybit",
		Details: details,
	})

	require.Len(t, fa.canceled, 1)
	assert.Equal(t, "cl-3", fa.canceled[0].ClientOrderID)
}
