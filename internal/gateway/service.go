package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"latentspeed/internal/core"
	"latentspeed/internal/model"
	"latentspeed/internal/venue"
)

// Service dispatches canonical orders from the ingress listener to the
// venue adapter table and republishes adapter state onto egress. It owns
// the venue -> adapter table populated at startup per the active venue
// list.
type Service struct {
	logger  core.ILogger
	ingress *Ingress
	egress  *Egress

	mu       sync.RWMutex
	adapters map[string]venue.Adapter

	drainTimeout time.Duration
	inFlight     sync.WaitGroup
}

// NewService creates a gateway service bound to the given ingress/egress
// addresses. Adapters are registered with Register before Run.
func NewService(logger core.ILogger, ingressAddr, egressAddr string, allowedOrigins []string) *Service {
	l := logger.WithField("component", "gateway")
	svc := &Service{
		logger:       l,
		egress:       NewEgress(l, allowedOrigins).Bind(egressAddr),
		adapters:     make(map[string]venue.Adapter),
		drainTimeout: 5 * time.Second,
	}
	svc.ingress = NewIngress(ingressAddr, l, svc.handleOrder)
	return svc
}

// Register adds a venue adapter to the dispatch table and starts its
// callbacks flowing to egress. Call before Run.
func (s *Service) Register(ctx context.Context, a venue.Adapter) error {
	s.mu.Lock()
	s.adapters[a.Name()] = a
	s.mu.Unlock()

	return a.Start(ctx, venue.Callbacks{
		OnOrderUpdate: func(u model.OrderUpdate) {
			s.egress.PublishUpdate(u, nil)
		},
		OnFill: func(f model.Fill) {
			s.egress.PublishFill(f, nil)
		},
	})
}

// Run starts the ingress listener and egress broadcaster, blocking until
// ctx is canceled. On shutdown it waits up to the drain timeout for
// in-flight orders before stopping adapters and closing sockets.
func (s *Service) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() { errCh <- s.ingress.Run(ctx) }()
	go func() { errCh <- s.egress.Run(ctx) }()

	<-ctx.Done()
	s.drain()

	s.mu.RLock()
	adapters := make([]venue.Adapter, 0, len(s.adapters))
	for _, a := range s.adapters {
		adapters = append(adapters, a)
	}
	s.mu.RUnlock()
	for _, a := range adapters {
		if err := a.Stop(); err != nil {
			s.logger.Warn("adapter stop error", "venue", a.Name(), "error", err)
		}
	}
	s.ingress.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	default:
	}
	return nil
}

func (s *Service) drain() {
	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.drainTimeout):
		s.logger.Warn("drain timeout exceeded, in-flight orders may be abandoned")
	}
}

func (s *Service) handleOrder(order ExecutionOrder) {
	s.inFlight.Add(1)
	defer s.inFlight.Done()

	s.mu.RLock()
	adapter, ok := s.adapters[order.Venue]
	s.mu.RUnlock()
	if !ok {
		s.egress.PublishReport(order.ClID, model.OrderResponse{
			Success:    false,
			Message:    fmt.Sprintf("unknown venue %q", order.Venue),
			ReasonCode: "venue_reject",
		}, order.TsNs, order.Tags)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var resp model.OrderResponse
	var err error

	switch model.Action(order.Action) {
	case model.ActionPlace:
		var req model.OrderRequest
		if jsonErr := json.Unmarshal(order.Details, &req); jsonErr != nil {
			err = jsonErr
			break
		}
		req.ClientOrderID = order.ClID
		req.Category = model.Category(order.ProductType)
		resp, err = adapter.Place(ctx, req)
	case model.ActionCancel:
		var req model.CancelRequest
		if jsonErr := json.Unmarshal(order.Details, &req); jsonErr != nil {
			err = jsonErr
			break
		}
		req.ClientOrderID = order.ClID
		resp, err = adapter.Cancel(ctx, req)
	case model.ActionModify:
		var req model.ModifyRequest
		if jsonErr := json.Unmarshal(order.Details, &req); jsonErr != nil {
			err = jsonErr
			break
		}
		req.ClientOrderID = order.ClID
		resp, err = adapter.Modify(ctx, req)
	default:
		err = fmt.Errorf("unsupported action %q", order.Action)
	}

	if err != nil && resp.ReasonCode == "" {
		resp = model.OrderResponse{
			Success:    false,
			Message:    err.Error(),
			ReasonCode: "venue_reject",
		}
	}
	resp.ClientOrderID = order.ClID
	s.egress.PublishReport(order.ClID, resp, order.TsNs, order.Tags)
}
