package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricWSMessagesTotal       = "gateway_ws_messages_total"
	MetricWSConnectionsTotal    = "gateway_ws_connections_total"
	MetricRESTRequestsTotal     = "gateway_rest_requests_total"
	MetricRESTRetryTotal        = "gateway_rest_retry_total"
	MetricFillsDedupedTotal     = "gateway_fills_deduped_total"
	MetricFillsEmittedTotal     = "gateway_fills_emitted_total"
	MetricOrderTrackerSize      = "gateway_order_tracker_size"
	MetricRateLimiterWaitSecs   = "gateway_rate_limiter_wait_seconds"
	MetricReconnectsTotal       = "gateway_ws_reconnects_total"
	MetricIngressMessagesTotal  = "gateway_ingress_messages_total"
	MetricEgressSubscribersGauge = "gateway_egress_subscribers"
)

// MetricsHolder holds initialized instruments for the gateway process.
type MetricsHolder struct {
	WSMessagesTotal      metric.Int64Counter
	WSConnectionsTotal    metric.Int64Counter
	WSReconnectsTotal     metric.Int64Counter
	RESTRequestsTotal     metric.Int64Counter
	RESTRetryTotal        metric.Int64Counter
	FillsDedupedTotal     metric.Int64Counter
	FillsEmittedTotal     metric.Int64Counter
	IngressMessagesTotal  metric.Int64Counter
	RateLimiterWait       metric.Float64Histogram
	OrderTrackerSize      metric.Int64ObservableGauge
	EgressSubscribers     metric.Int64ObservableGauge

	mu                sync.RWMutex
	orderTrackerMap   map[string]int64
	egressSubscribers map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			orderTrackerMap:   make(map[string]int64),
			egressSubscribers: make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	if m.WSMessagesTotal, err = meter.Int64Counter(MetricWSMessagesTotal, metric.WithDescription("WebSocket messages received")); err != nil {
		return err
	}
	if m.WSConnectionsTotal, err = meter.Int64Counter(MetricWSConnectionsTotal, metric.WithDescription("WebSocket connections established")); err != nil {
		return err
	}
	if m.WSReconnectsTotal, err = meter.Int64Counter(MetricReconnectsTotal, metric.WithDescription("WebSocket reconnect attempts")); err != nil {
		return err
	}
	if m.RESTRequestsTotal, err = meter.Int64Counter(MetricRESTRequestsTotal, metric.WithDescription("REST requests issued")); err != nil {
		return err
	}
	if m.RESTRetryTotal, err = meter.Int64Counter(MetricRESTRetryTotal, metric.WithDescription("REST requests retried")); err != nil {
		return err
	}
	if m.FillsDedupedTotal, err = meter.Int64Counter(MetricFillsDedupedTotal, metric.WithDescription("Fills suppressed as duplicates")); err != nil {
		return err
	}
	if m.FillsEmittedTotal, err = meter.Int64Counter(MetricFillsEmittedTotal, metric.WithDescription("Fills emitted on the egress stream")); err != nil {
		return err
	}
	if m.IngressMessagesTotal, err = meter.Int64Counter(MetricIngressMessagesTotal, metric.WithDescription("Execution orders accepted on the ingress listener")); err != nil {
		return err
	}
	if m.RateLimiterWait, err = meter.Float64Histogram(MetricRateLimiterWaitSecs, metric.WithDescription("Time spent waiting for rate limiter budget"), metric.WithUnit("s")); err != nil {
		return err
	}

	m.OrderTrackerSize, err = meter.Int64ObservableGauge(MetricOrderTrackerSize, metric.WithDescription("Number of open orders tracked per venue"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for venue, val := range m.orderTrackerMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("venue", venue)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.EgressSubscribers, err = meter.Int64ObservableGauge(MetricEgressSubscribersGauge, metric.WithDescription("Connected egress stream subscribers"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for venue, val := range m.egressSubscribers {
				obs.Observe(val, metric.WithAttributes(attribute.String("venue", venue)))
			}
			return nil
		}))
	return err
}

// SetOrderTrackerSize records the current tracker size for a venue.
func (m *MetricsHolder) SetOrderTrackerSize(venue string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderTrackerMap[venue] = size
}

// SetEgressSubscribers records the current egress subscriber count for a venue.
func (m *MetricsHolder) SetEgressSubscribers(venue string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.egressSubscribers[venue] = count
}

// GetOrderTrackerSizes returns a snapshot of tracker sizes, used by the health endpoint.
func (m *MetricsHolder) GetOrderTrackerSizes() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]int64, len(m.orderTrackerMap))
	for k, v := range m.orderTrackerMap {
		res[k] = v
	}
	return res
}
