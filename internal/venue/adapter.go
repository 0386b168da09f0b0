// Package venue defines the contract every concrete venue driver (CEX,
// DEX) satisfies: compose the signer, REST session, WS session, tracker,
// de-duplicator and cursor into a single entry point the gateway
// dispatches canonical requests to.
package venue

import (
	"context"

	"latentspeed/internal/model"
)

// Callbacks are invoked from the adapter's WS read-loop goroutine; the
// gateway wires these to its egress publisher.
type Callbacks struct {
	OnOrderUpdate func(model.OrderUpdate)
	OnFill        func(model.Fill)
}

// Adapter is the canonical venue driver contract the gateway dispatches
// against, keyed by venue name.
type Adapter interface {
	Name() string
	Start(ctx context.Context, cb Callbacks) error
	Stop() error

	Place(ctx context.Context, req model.OrderRequest) (model.OrderResponse, error)
	Cancel(ctx context.Context, req model.CancelRequest) (model.OrderResponse, error)
	Modify(ctx context.Context, req model.ModifyRequest) (model.OrderResponse, error)
	Query(ctx context.Context, clientOrderID string) (model.OrderResponse, error)
}
