package deliverylog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Websocket timing.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	subscriberSize = 64
)

type subscriber struct {
	beaconID string // "" receives every beacon
	send     chan []byte
}

// Broadcaster fans appended log entries out to websocket subscribers. Each
// subscriber has its own buffered queue; a subscriber whose queue is full
// misses the entry instead of blocking the appender.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a queue for entries of beaconID ("" for all beacons).
// Call the returned function to unsubscribe; the channel is closed then.
func (b *Broadcaster) Subscribe(beaconID string) (<-chan []byte, func()) {
	s := &subscriber{beaconID: beaconID, send: make(chan []byte, subscriberSize)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.send, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			close(s.send)
			b.mu.Unlock()
		})
	}
}

// Publish sends l to every matching subscriber.
func (b *Broadcaster) Publish(l *Log) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.subs) == 0 {
		return
	}

	data, err := json.Marshal(l)
	if err != nil {
		b.logger.Error("failed to marshal delivery log", slog.String("error", err.Error()))
		return
	}

	for s := range b.subs {
		if s.beaconID != "" && s.beaconID != l.BeaconID {
			continue
		}
		select {
		case s.send <- data:
		default:
			b.logger.Warn("dropping delivery log for slow websocket subscriber",
				slog.String("log_id", l.ID),
				slog.String("beacon_id", l.BeaconID),
			)
		}
	}
}

// SubscriberCount returns the number of registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Serve streams entries for beaconID to conn until the client disconnects or
// ctx is cancelled. It owns conn and closes it on return.
func (b *Broadcaster) Serve(ctx context.Context, conn *websocket.Conn, beaconID string) {
	entries, unsubscribe := b.Subscribe(beaconID)
	defer func() {
		unsubscribe()
		conn.Close()
	}()

	// Clients never send data; reading is how close frames and pongs arrive.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					b.logger.Warn("delivery log websocket closed unexpectedly", slog.String("error", err.Error()))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-closed:
			return
		case data, ok := <-entries:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
