package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"whalehub/core/events"
	"whalehub/core/types"
)

const (
	wsWriteTimeout     = 10 * time.Second
	subscriberCapacity = 64
)

// EventHub fans committed events out to stream subscribers. Slow subscribers
// miss events instead of blocking the writer.
type EventHub struct {
	logger *slog.Logger

	mu     sync.Mutex
	next   int
	subs   map[int]*subscription
	closed bool
}

type subscription struct {
	ch     chan *types.Event
	filter map[string]struct{}
}

func NewEventHub(logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{logger: logger, subs: make(map[int]*subscription)}
}

// Emit implements events.Emitter.
func (h *EventHub) Emit(e events.Event) {
	if h == nil || e == nil {
		return
	}
	rendered := events.Render(e)
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		if len(sub.filter) > 0 {
			if _, ok := sub.filter[rendered.Type]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- rendered:
		default:
			h.logger.Warn("event stream subscriber lagging", "subscriber", id, "event", rendered.Type)
		}
	}
}

// Subscribe registers a subscriber for the given event types, or for every
// type when none are given. The returned cancel func closes the channel.
func (h *EventHub) Subscribe(eventTypes ...string) (<-chan *types.Event, func()) {
	sub := &subscription{ch: make(chan *types.Event, subscriberCapacity)}
	for _, t := range eventTypes {
		if t = strings.TrimSpace(t); t != "" {
			if sub.filter == nil {
				sub.filter = make(map[string]struct{})
			}
			sub.filter[t] = struct{}{}
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = sub
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Close ends every subscription.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: origins})
	if err != nil {
		s.logger.Warn("event stream upgrade failed", "remote", clientID(r), "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	var filter []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		filter = strings.Split(raw, ",")
	}
	ch, cancel := s.hub.Subscribe(filter...)
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Debug("event stream write failed", "error", err)
				}
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev *types.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
