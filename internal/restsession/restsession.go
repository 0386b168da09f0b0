// Package restsession implements the per-venue persistent REST session:
// rate-limited, signed, two-attempt request execution over a pooled TLS
// connection that is torn down and rebuilt on any I/O error.
package restsession

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"latentspeed/internal/core"
	"latentspeed/internal/ratelimit"
	apperrors "latentspeed/pkg/errors"
)

// Signer builds the headers/query a request needs given its method,
// endpoint and body.
type Signer interface {
	Sign(req *http.Request, rawBody string) error
}

// Session is a single persistent REST client bound to one venue host. It
// is safe for concurrent use: the underlying transport is mutex-guarded
// and rebuilt whenever a request observes a broken connection.
type Session struct {
	baseURL string
	signer  Signer
	limiter *ratelimit.Limiter
	logger  core.ILogger

	mu       sync.Mutex
	client   *http.Client
	pipeline failsafe.Executor[*http.Response]
}

// New creates a Session. preferIPv4 controls the address-family
// preference used when the resolver returns multiple records.
func New(baseURL string, signer Signer, limiter *ratelimit.Limiter, logger core.ILogger, preferIPv4 bool) *Session {
	s := &Session{
		baseURL: baseURL,
		signer:  signer,
		limiter: limiter,
		logger:  logger,
	}
	s.client = newHTTPClient(preferIPv4)
	s.pipeline = newPipeline()
	return s
}

func newHTTPClient(preferIPv4 bool) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if preferIPv4 {
				network = "tcp4"
			}
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: 15 * time.Second}
}

func newPipeline() failsafe.Executor[*http.Response] {
	retryPolicy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithBackoff(50*time.Millisecond, 500*time.Millisecond).
		WithMaxRetries(0). // the venue-level two-attempt policy lives in Perform; this pipeline never retries, only the circuit breaker acts
		Build()

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(5 * time.Second).
		Build()

	return failsafe.With[*http.Response](retryPolicy, breaker)
}

// teardown rebuilds the underlying transport, the Go equivalent of
// recreating an unusable TLS stream object after a failed handshake or a
// broken connection.
func (s *Session) teardown(preferIPv4 bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if transport, ok := s.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	s.client = newHTTPClient(preferIPv4)
}

// Perform executes a signed request with the spec's two-attempt contract:
// on any network error the connection is torn down and rebuilt before the
// second attempt; on Connection: close the connection is torn down
// immediately after the response is read.
func (s *Session) Perform(ctx context.Context, method, endpoint string, query map[string]string, rawBody string) ([]byte, error) {
	if err := s.limiter.Throttle(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRateLimited, err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		body, closeAfter, err := s.attempt(ctx, method, endpoint, query, rawBody)
		if err == nil {
			if closeAfter {
				s.teardown(true)
			}
			return body, nil
		}
		lastErr = err
		s.teardown(true)
		if s.logger != nil {
			s.logger.Warn("rest attempt failed", "attempt", attempt, "error", err)
		}
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrRESTTransport, lastErr)
}

func (s *Session) attempt(ctx context.Context, method, endpoint string, query map[string]string, rawBody string) (body []byte, closeAfter bool, err error) {
	url := s.baseURL + endpoint
	var reader io.Reader
	if rawBody != "" {
		reader = bytes.NewBufferString(rawBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, false, err
	}
	if len(query) > 0 {
		q := req.URL.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	if rawBody != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.signer != nil {
		if err := s.signer.Sign(req, rawBody); err != nil {
			return nil, false, fmt.Errorf("%w: %s", apperrors.ErrSignFailed, err)
		}
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	resp, err := s.pipeline.GetWithExecution(func(exec failsafe.Execution[*http.Response]) (*http.Response, error) {
		return client.Do(req)
	})
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}

	closeAfter = resp.Close || resp.Header.Get("Connection") == "close"

	if resp.StatusCode == http.StatusTooManyRequests {
		return data, closeAfter, fmt.Errorf("%w: http 429", apperrors.ErrRateLimited)
	}
	return data, closeAfter, nil
}
