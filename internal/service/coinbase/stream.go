package coinbase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"LatentTrader/internal/domain/models"
	drepo "LatentTrader/internal/domain/repository"
	"LatentTrader/pkg/logger"

	"github.com/gorilla/websocket"
)

// DefaultChannels is the feed the agent consumes: every order lifecycle
// message, not just matches.
var DefaultChannels = []string{"full"}

type subscribeMessage struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// StreamOption configures Stream.
type StreamOption func(*Stream)

// WithChannels overrides the subscribed channels.
func WithChannels(channels ...string) StreamOption {
	return func(s *Stream) {
		if len(channels) > 0 {
			s.channels = channels
		}
	}
}

// WithReconnectDelay sets the pause before redialing.
func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *Stream) {
		s.reconnectDelay = d
	}
}

// WithPingInterval sets the keepalive interval; the read deadline is three
// intervals.
func WithPingInterval(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// WithStreamLogger sets the logger.
func WithStreamLogger(l *logger.Logger) StreamOption {
	return func(s *Stream) {
		if l != nil {
			s.log = l
		}
	}
}

// WithStreamMetrics sets the metrics sink used for dropped frames.
func WithStreamMetrics(m drepo.Metrics) StreamOption {
	return func(s *Stream) {
		s.metrics = m
	}
}

// Stream implements EventStream over the exchange websocket feed. The
// event and error channels returned by Read survive reconnects, so a
// consumer keeps reading the same channels while the connection is
// replaced underneath.
type Stream struct {
	url            string
	products       []string
	channels       []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	dialer         *websocket.Dialer
	log            *logger.Logger
	metrics        drepo.Metrics

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	ready   chan struct{} // closed while conn != nil
	done    chan struct{}
	closeMu sync.Once
	readMu  sync.Once
	events  chan *models.Event
	errs    chan error
}

// NewStream creates a feed client for products.
func NewStream(url string, products []string, opts ...StreamOption) *Stream {
	s := &Stream{
		url:            url,
		products:       products,
		channels:       DefaultChannels,
		reconnectDelay: time.Second,
		pingInterval:   15 * time.Second,
		dialer:         websocket.DefaultDialer,
		log:            logger.Nop(),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
		events:         make(chan *models.Event, 1024),
		errs:           make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials the feed, replacing any existing connection.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("coinbase connect: %w", err)
	}
	deadline := 3 * s.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	s.mu.Lock()
	if s.conn == nil {
		close(s.ready)
	} else {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()

	s.log.Info("coinbase feed connected", logger.String("url", s.url))
	return nil
}

// Subscribe sends the subscribe message for the configured products.
func (s *Stream) Subscribe(ctx context.Context) error {
	conn := s.current()
	if conn == nil {
		return fmt.Errorf("coinbase not connected")
	}
	msg := subscribeMessage{Type: "subscribe", ProductIDs: s.products, Channels: s.channels}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
		defer conn.SetWriteDeadline(time.Time{})
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info("coinbase feed subscribed",
		logger.Strings("products", s.products),
		logger.Strings("channels", s.channels))
	return nil
}

// Read starts the read and keepalive loops once and returns their channels.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Event, <-chan error) {
	s.readMu.Do(func() {
		go s.readLoop(ctx)
		go s.pingLoop(ctx)
	})
	return s.events, s.errs
}

func (s *Stream) readLoop(ctx context.Context) {
	defer close(s.events)
	for {
		conn, ok := s.wait(ctx)
		if !ok {
			return
		}
		_, b, err := conn.ReadMessage()
		if err != nil {
			if s.isClosed() || ctx.Err() != nil {
				return
			}
			s.drop(conn)
			select {
			case s.errs <- fmt.Errorf("coinbase read: %w", err):
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
			continue
		}

		ev, err := models.DecodeEvent(b)
		if err != nil {
			if s.metrics != nil {
				s.metrics.RecordError("malformed_event")
			}
			s.log.Error("malformed feed message dropped", logger.Error(err))
			continue
		}
		if ev.Kind == models.KindUnknown {
			// subscriptions, heartbeats and other control frames
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if conn := s.current(); conn != nil {
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.pingInterval))
			}
		}
	}
}

// wait blocks until a connection is available.
func (s *Stream) wait(ctx context.Context) (*websocket.Conn, bool) {
	for {
		s.mu.Lock()
		conn, ready := s.conn, s.ready
		s.mu.Unlock()
		if conn != nil {
			return conn, true
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, false
		case <-s.done:
			return nil, false
		}
	}
}

func (s *Stream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// drop forgets conn if it is still the active connection.
func (s *Stream) drop(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		_ = conn.Close()
		s.conn = nil
		s.ready = make(chan struct{})
	}
}

// Reconnect drops the current connection, waits, then dials and
// resubscribes.
func (s *Stream) Reconnect(ctx context.Context) error {
	if conn := s.current(); conn != nil {
		s.drop(conn)
	}
	select {
	case <-time.After(s.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.New("coinbase stream closed")
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close shuts the stream down for good; the event channel is closed once
// the read loop exits.
func (s *Stream) Close() error {
	var err error
	s.closeMu.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.conn != nil {
			err = s.conn.Close()
			s.conn = nil
			s.ready = make(chan struct{})
		}
		s.mu.Unlock()
	})
	return err
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// IsConnected reports whether a connection is active.
func (s *Stream) IsConnected() bool { return s.current() != nil }

var _ drepo.EventStream = (*Stream)(nil)
