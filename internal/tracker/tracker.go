// Package tracker holds the in-memory order lifecycle table every venue
// adapter shares: one entry per client_order_id, backfilled with the
// exchange order id as soon as either the REST response or a racing WS
// event supplies it.
package tracker

import (
	"sync"

	"latentspeed/internal/model"
)

// ErrAlreadyTracked is returned by StartTracking when the key is already present.
type trackerError string

func (e trackerError) Error() string { return string(e) }

const (
	ErrAlreadyTracked = trackerError("tracker: client order id already tracked")
	ErrNotFound       = trackerError("tracker: entry not found")
)

// Tracker is a mutex-guarded map keyed by client_order_id with a secondary
// index by exchange_order_id.
type Tracker struct {
	mu        sync.RWMutex
	byClient  map[string]*model.TrackerEntry
	byExchange map[string]string // exchange_order_id -> client_order_id
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		byClient:   make(map[string]*model.TrackerEntry),
		byExchange: make(map[string]string),
	}
}

// StartTracking inserts a new entry. Precondition: the key is absent. Must
// be called before the outbound REST POST so a racing WS event can match.
func (t *Tracker) StartTracking(req model.OrderRequest, extras model.TrackerExtras) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byClient[req.ClientOrderID]; ok {
		return ErrAlreadyTracked
	}
	t.byClient[req.ClientOrderID] = &model.TrackerEntry{
		Request:   req,
		Extras:    extras,
		LastState: model.StatusNew,
	}
	return nil
}

// BackfillExchangeID idempotently sets the exchange order id if absent or
// equal to the existing value.
func (t *Tracker) BackfillExchangeID(clientOrderID, exchangeOrderID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.byClient[clientOrderID]
	if !ok {
		return ErrNotFound
	}
	if entry.ExchangeOrderID != "" && entry.ExchangeOrderID != exchangeOrderID {
		return nil
	}
	entry.ExchangeOrderID = exchangeOrderID
	t.byExchange[exchangeOrderID] = clientOrderID
	return nil
}

// GetByClientID returns a copy of the entry keyed by client_order_id.
func (t *Tracker) GetByClientID(clientOrderID string) (model.TrackerEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.byClient[clientOrderID]
	if !ok {
		return model.TrackerEntry{}, false
	}
	return *entry, true
}

// GetByExchangeID resolves an exchange_order_id to its entry via the
// secondary index.
func (t *Tracker) GetByExchangeID(exchangeOrderID string) (model.TrackerEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	clientID, ok := t.byExchange[exchangeOrderID]
	if !ok {
		return model.TrackerEntry{}, false
	}
	entry, ok := t.byClient[clientID]
	if !ok {
		return model.TrackerEntry{}, false
	}
	return *entry, true
}

// ApplyUpdate sets the last known state for clientOrderID, returns the
// prior state, and removes the entry if the new state is terminal.
func (t *Tracker) ApplyUpdate(clientOrderID string, status model.OrderStatus, updateMs uint64) (prior model.OrderStatus, found bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.byClient[clientOrderID]
	if !ok {
		return "", false
	}
	prior = entry.LastState
	entry.LastState = status
	entry.LastUpdateMs = updateMs
	if status.IsTerminal() {
		delete(t.byClient, clientOrderID)
		if entry.ExchangeOrderID != "" {
			delete(t.byExchange, entry.ExchangeOrderID)
		}
	}
	return prior, true
}

// Remove deletes the entry unconditionally (explicit cancel confirmation).
func (t *Tracker) Remove(clientOrderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.byClient[clientOrderID]
	if !ok {
		return
	}
	delete(t.byClient, clientOrderID)
	if entry.ExchangeOrderID != "" {
		delete(t.byExchange, entry.ExchangeOrderID)
	}
}

// Size returns the current number of tracked orders.
func (t *Tracker) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byClient)
}
