// Package wsreliable implements the private WebSocket session lifecycle
// shared by every venue adapter: connect, authenticate, subscribe,
// one-shot REST catch-up, a read loop with data-or-pong liveness and
// quiet-stream resubscribe, and jittered exponential backoff reconnect.
package wsreliable

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"latentspeed/internal/core"
	"latentspeed/pkg/telemetry"

	"go.opentelemetry.io/otel/metric"
)

// Hooks supplies the venue-specific behavior at each lifecycle phase. All
// methods must be non-blocking except where documented.
type Hooks struct {
	// Authenticate sends the venue's auth frame and returns once a
	// response confirms success (or an error on failure/timeout).
	Authenticate func(ctx context.Context, conn *websocket.Conn) error
	// Subscribe sends subscription frames. Acks are not required for
	// progress.
	Subscribe func(ctx context.Context, conn *websocket.Conn) error
	// CatchUp runs once after a successful reconnect (not on every failed
	// attempt); it should synthesize OrderUpdate/Fill callbacks from a
	// REST snapshot.
	CatchUp func(ctx context.Context)
	// HandleFrame parses one inbound message and routes it by
	// topic/channel. It returns true if the frame counts as a "private
	// event" for the quiet-stream timers.
	HandleFrame func(data []byte) (isPrivateEvent bool)
}

// Config tunes the reliability machinery's timers.
type Config struct {
	PingInterval       time.Duration
	PongTimeout        time.Duration
	ResubscribeQuietMs time.Duration
	ReconnectQuietMs   time.Duration
	BackoffBase        time.Duration
	BackoffCap         time.Duration
}

// DefaultConfig matches the spec's suggested thresholds.
func DefaultConfig() Config {
	return Config{
		PingInterval:       20 * time.Second,
		PongTimeout:        60 * time.Second,
		ResubscribeQuietMs: 30 * time.Second,
		ReconnectQuietMs:   120 * time.Second,
		BackoffBase:        500 * time.Millisecond,
		BackoffCap:         30 * time.Second,
	}
}

// Session runs the private WS lifecycle as a background goroutine.
type Session struct {
	url    string
	hooks  Hooks
	cfg    Config
	logger core.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	conn    *websocket.Conn
	attempt int

	connCounter metric.Int64Counter
	msgCounter  metric.Int64Counter
}

// New creates a Session bound to url with the given hooks and config.
func New(url string, hooks Hooks, cfg Config, logger core.ILogger) *Session {
	meter := telemetry.GetMeter("ws-reliable")
	connCounter, _ := meter.Int64Counter("gateway_ws_connections_total")
	msgCounter, _ := meter.Int64Counter("gateway_ws_messages_total")

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		url:         url,
		hooks:       hooks,
		cfg:         cfg,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		connCounter: connCounter,
		msgCounter:  msgCounter,
	}
}

// Start begins the reconnect loop.
func (s *Session) Start() {
	s.wg.Add(1)
	go s.runLoop()
}

// Stop closes the WS with a normal close code and joins the background
// goroutine.
func (s *Session) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Session) runLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		reconnected, err := s.connectAuthSubscribe()
		if err != nil {
			s.logWarn("ws connect/auth/subscribe failed", err)
			if !s.sleepBackoff() {
				return
			}
			continue
		}

		s.attempt = 0
		if reconnected && s.hooks.CatchUp != nil {
			s.hooks.CatchUp(s.ctx)
		}

		s.readLoop(reconnected)

		select {
		case <-s.ctx.Done():
			return
		default:
		}
		if !s.sleepBackoff() {
			return
		}
	}
}

func (s *Session) connectAuthSubscribe() (reconnected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		return false, err
	}
	s.connCounter.Add(s.ctx, 1)

	if s.hooks.Authenticate != nil {
		if err := s.hooks.Authenticate(s.ctx, conn); err != nil {
			conn.Close()
			return false, err
		}
	}
	if s.hooks.Subscribe != nil {
		if err := s.hooks.Subscribe(s.ctx, conn); err != nil {
			conn.Close()
			return false, err
		}
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return true, nil
}

func (s *Session) readLoop(afterReconnect bool) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	defer func() {
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	lastRx := time.Now()
	lastPong := time.Now()
	lastPrivateEvent := time.Now()

	conn.SetPongHandler(func(string) error {
		lastPong = time.Now()
		return nil
	})

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()
	healthTicker := time.NewTicker(s.cfg.PongTimeout / 2)
	defer healthTicker.Stop()

	msgCh := make(chan []byte, 256)
	errCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case msgCh <- data:
			case <-s.ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return

		case err := <-errCh:
			s.logWarn("ws read failed", err)
			return

		case data := <-msgCh:
			lastRx = time.Now()
			s.msgCounter.Add(s.ctx, 1)
			if s.hooks.HandleFrame != nil {
				if s.hooks.HandleFrame(data) {
					lastPrivateEvent = time.Now()
				}
			}

		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				s.logWarn("ws ping failed", err)
				return
			}

		case <-healthTicker.C:
			now := time.Now()
			last := lastRx
			if lastPong.After(last) {
				last = lastPong
			}
			if now.Sub(last) > s.cfg.PongTimeout {
				s.logWarn("ws liveness timeout", nil)
				return
			}
			quiet := now.Sub(lastPrivateEvent)
			if quiet > s.cfg.ReconnectQuietMs {
				s.logWarn("ws quiet stream exceeded reconnect threshold", nil)
				return
			}
			if quiet > s.cfg.ResubscribeQuietMs && s.hooks.Subscribe != nil {
				if err := s.hooks.Subscribe(s.ctx, conn); err != nil {
					s.logWarn("ws resubscribe failed", err)
					return
				}
				lastPrivateEvent = now
			}
		}
	}
}

func (s *Session) sleepBackoff() bool {
	delay := s.cfg.BackoffBase << uint(s.attempt)
	if delay > s.cfg.BackoffCap || delay <= 0 {
		delay = s.cfg.BackoffCap
	}
	if s.attempt < 30 {
		s.attempt++
	}
	jitter := time.Duration(rand.Intn(250)) * time.Millisecond
	select {
	case <-time.After(delay + jitter):
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) logWarn(msg string, err error) {
	if s.logger == nil {
		return
	}
	if err != nil {
		s.logger.Warn(msg, "error", err)
	} else {
		s.logger.Warn(msg)
	}
}
