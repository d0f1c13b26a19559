package server

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/groblegark/kdeps/internal/events"
)

const (
	// replayLimit is how many recent events a reconnecting stream can
	// catch up on.
	replayLimit = 1000

	defaultKeepalive = 15 * time.Second
)

// streamEvent is one published event with its stream sequence number.
type streamEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

// Hub is an events.Publisher that feeds the HTTP event streams. It numbers
// events and keeps the most recent replayLimit of them for replay.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	backlog []streamEvent
	subs    map[*subscriber]struct{}

	done      chan struct{}
	closeOnce sync.Once
	keepalive time.Duration
}

type subscriber struct {
	filter topicFilter
	ch     chan streamEvent
}

var _ events.Publisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		subs:      make(map[*subscriber]struct{}),
		done:      make(chan struct{}),
		keepalive: defaultKeepalive,
	}
}

func (h *Hub) Publish(_ context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", topic, err)
	}
	h.broadcast(topic, data)
	return nil
}

// Close ends every open stream. Publishing after Close is still allowed.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

func (h *Hub) broadcast(topic string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	evt := streamEvent{ID: h.seq, Topic: topic, Data: data}
	h.backlog = append(h.backlog, evt)
	if len(h.backlog) >= 2*replayLimit {
		h.backlog = slices.Clone(h.backlog[len(h.backlog)-replayLimit:])
	}

	for s := range h.subs {
		if !s.filter.match(topic) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			// The stream is not keeping up; it loses this event.
		}
	}
}

// subscribe registers a stream. When replay is set it also returns the
// retained events after lastID that pass filter. Both happen under one lock
// so no event is missed or sent twice.
func (h *Hub) subscribe(filter topicFilter, lastID uint64, replay bool) (*subscriber, []streamEvent) {
	s := &subscriber{filter: filter, ch: make(chan streamEvent, 64)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
	if !replay {
		return s, nil
	}
	var missed []streamEvent
	for _, evt := range h.retained() {
		if evt.ID > lastID && filter.match(evt.Topic) {
			missed = append(missed, evt)
		}
	}
	return s, missed
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// retained is the replayable window of the backlog. h.mu must be held.
func (h *Hub) retained() []streamEvent {
	if n := len(h.backlog); n > replayLimit {
		return h.backlog[n-replayLimit:]
	}
	return h.backlog
}

// topicFilter holds NATS-style subject patterns. "*" matches one segment
// and a trailing ">" matches one or more. An empty filter matches all.
type topicFilter []string

func parseTopicFilter(q string) topicFilter {
	var f topicFilter
	for _, p := range strings.Split(q, ",") {
		if p = strings.TrimSpace(p); p != "" {
			f = append(f, p)
		}
	}
	return f
}

func (f topicFilter) match(topic string) bool {
	if len(f) == 0 {
		return true
	}
	return slices.ContainsFunc(f, func(p string) bool { return subjectMatch(p, topic) })
}

func subjectMatch(pattern, topic string) bool {
	pat := strings.Split(pattern, ".")
	tok := strings.Split(topic, ".")
	for i, p := range pat {
		switch {
		case p == ">" && i == len(pat)-1:
			return len(tok) > i
		case i >= len(tok):
			return false
		case p != "*" && p != tok[i]:
			return false
		}
	}
	return len(pat) == len(tok)
}
