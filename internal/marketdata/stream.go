package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"setbull_trader/pkg/apperrors"
	"setbull_trader/pkg/log"
)

// maxReconnectAttempts and the backoff schedule implement §4.11's stream
// disconnect policy: 5s * 2^(attempt-1), up to 10 attempts.
const maxReconnectAttempts = 10

// Stream is the WebSocket client to the provider's minute-aggregate feed
// (wss://socket.polygon.io/stocks): a gorilla/websocket dialer/read-loop/
// reconnect client, turned inward since the scanner is the subscriber
// rather than the server.
type Stream struct {
	url    string
	apiKey string
	dialer *websocket.Dialer

	onBar    func(BarEvent)
	onStatus func(StatusEvent)

	connMu sync.Mutex
	conn   *websocket.Conn

	subMu      sync.Mutex
	subscribed map[string]bool

	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewStream builds a Stream bound to the given provider endpoint and key.
func NewStream(url, apiKey string) *Stream {
	return &Stream{
		url:        url,
		apiKey:     apiKey,
		dialer:     websocket.DefaultDialer,
		subscribed: make(map[string]bool),
		closeCh:    make(chan struct{}),
	}
}

// Open dials, authenticates, subscribes to the given symbols, and starts
// the background read loop. onBar/onStatus are invoked from the read-loop
// goroutine; callers must not block them for long (§5: no suspension
// inside a pattern-detector call, and the stream read loop is one of the
// three places parallelism lives).
func (s *Stream) Open(ctx context.Context, symbols []string, onBar func(BarEvent), onStatus func(StatusEvent)) error {
	s.onBar = onBar
	s.onStatus = onStatus

	if err := s.dial(ctx); err != nil {
		return err
	}

	s.subMu.Lock()
	for _, sym := range symbols {
		s.subscribed[sym] = true
	}
	s.subMu.Unlock()

	if err := s.sendSubscribe(symbols); err != nil {
		return err
	}

	go s.readLoop(ctx)
	return nil
}

func (s *Stream) dial(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return apperrors.NewProviderError("failed to dial market-data stream", 0, true, err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	if err := s.writeJSON(map[string]string{"action": "auth", "params": s.apiKey}); err != nil {
		_ = conn.Close()
		return err
	}
	log.WebSocketInfo("connect", "dialed market-data stream", map[string]interface{}{"url": s.url})
	return nil
}

func (s *Stream) writeJSON(v interface{}) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("stream not connected")
	}
	return conn.WriteJSON(v)
}

func (s *Stream) sendSubscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	params := make([]string, len(symbols))
	for i, sym := range symbols {
		params[i] = "AM." + sym
	}
	return s.writeJSON(map[string]string{"action": "subscribe", "params": strings.Join(params, ",")})
}

// Subscribe adds symbols to the live subscription and the resubscribe set.
func (s *Stream) Subscribe(symbols []string) error {
	s.subMu.Lock()
	for _, sym := range symbols {
		s.subscribed[sym] = true
	}
	s.subMu.Unlock()
	return s.sendSubscribe(symbols)
}

// Unsubscribe removes symbols from the live subscription and the
// resubscribe set.
func (s *Stream) Unsubscribe(symbols []string) error {
	s.subMu.Lock()
	for _, sym := range symbols {
		delete(s.subscribed, sym)
	}
	s.subMu.Unlock()

	if len(symbols) == 0 {
		return nil
	}
	params := make([]string, len(symbols))
	for i, sym := range symbols {
		params[i] = "AM." + sym
	}
	return s.writeJSON(map[string]string{"action": "unsubscribe", "params": strings.Join(params, ",")})
}

func (s *Stream) currentSubscriptions() []string {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	out := make([]string, 0, len(s.subscribed))
	for sym := range s.subscribed {
		out = append(out, sym)
	}
	return out
}

// readLoop decodes batched JSON arrays of status/bar events, dispatching
// each to onStatus/onBar, and reconnects with exponential backoff on error.
func (s *Stream) readLoop(ctx context.Context) {
	for {
		select {
		case <-s.closeCh:
			return
		case <-ctx.Done():
			_ = s.Close()
			return
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.WebSocketError("read", "stream read failed", err, nil)
			if !s.reconnect(ctx) {
				return
			}
			continue
		}

		var events []wireEvent
		if err := json.Unmarshal(msg, &events); err != nil {
			log.WebSocketError("decode", "failed to decode stream batch", err, map[string]interface{}{"raw": string(msg)})
			continue
		}
		for _, ev := range events {
			switch ev.Ev {
			case "status":
				if s.onStatus != nil {
					s.onStatus(StatusEvent{Status: ev.Status, Message: ev.Message})
				}
			case "AM":
				if s.onBar != nil {
					s.onBar(BarEvent{
						Symbol: ev.Sym, StartTS: ev.S, EndTS: ev.E,
						Open: ev.O, High: ev.H, Low: ev.L, Close: ev.C, Volume: ev.V,
					})
				}
			}
		}
	}
}

// reconnect implements the backoff schedule; returns false once the
// attempt budget is exhausted (after logging an
// apperrors.StreamDisconnectError) or the stream is closed or ctx is
// cancelled, and the caller's read loop then returns.
func (s *Stream) reconnect(ctx context.Context) bool {
	var lastErr error
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		delay := time.Duration(5*(1<<(attempt-1))) * time.Second
		select {
		case <-time.After(delay):
		case <-s.closeCh:
			return false
		case <-ctx.Done():
			return false
		}

		if err := s.dial(ctx); err != nil {
			lastErr = err
			log.WebSocketError("reconnect", fmt.Sprintf("attempt %d/%d failed", attempt, maxReconnectAttempts), err, nil)
			continue
		}

		if err := s.sendSubscribe(s.currentSubscriptions()); err != nil {
			lastErr = err
			continue
		}
		log.WebSocketInfo("reconnect", "stream reconnected and resubscribed", map[string]interface{}{"attempt": attempt})
		return true
	}
	log.Error("marketdata: stream reconnect budget exhausted: %v", apperrors.NewStreamDisconnectError(maxReconnectAttempts, lastErr))
	return false
}

// Close stops the read loop and closes the underlying connection.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.connMu.Lock()
		if s.conn != nil {
			err = s.conn.Close()
		}
		s.connMu.Unlock()
	})
	return err
}
