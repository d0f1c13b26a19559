package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Message is one event as seen by a subscriber.
type Message struct {
	Topic string
	Data  []byte
}

// connect dials url with reconnects enabled. Options in opts override the
// defaults.
func connect(url string, opts ...nats.Option) (*nats.Conn, error) {
	base := []nats.Option{
		nats.Name("kd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher sends each event as JSON on a subject named after its topic.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", topic, err)
	}
	if err := p.nc.Publish(topic, data); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// Flush waits until the server has received everything published so far.
func (p *NATSPublisher) Flush(ctx context.Context) error {
	return p.nc.FlushWithContext(ctx)
}

// Close flushes pending events, best effort, and disconnects.
func (p *NATSPublisher) Close() error {
	if p.nc.IsConnected() {
		_ = p.nc.FlushTimeout(2 * time.Second)
	}
	p.nc.Close()
	return nil
}

// NATSSubscriber follows kd events on a NATS server.
type NATSSubscriber struct {
	nc *nats.Conn
	// Buffer is the per-subscription channel capacity. Messages arriving
	// while the channel is full are dropped.
	Buffer int
}

// NewNATSSubscriber connects to url. Handlers such as nats.ReconnectHandler
// may be passed in opts.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{nc: nc, Buffer: 64}, nil
}

// Subscribe follows topic, which may use NATS wildcards such as TopicAll.
// The subscription is registered on the server before Subscribe returns.
// cancel unsubscribes and closes the channel; it is safe to call twice.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	q := &queue{ch: make(chan Message, max(s.Buffer, 1))}
	sub, err := s.nc.Subscribe(topic, q.deliver)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	if err := s.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("registering %s subscription: %w", topic, err)
	}
	return q.ch, func() { q.stop(sub) }, nil
}

func (s *NATSSubscriber) Close() error {
	s.nc.Close()
	return nil
}

// queue hands messages from the NATS dispatcher to a consumer channel
// without ever blocking the dispatcher.
type queue struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

func (q *queue) deliver(m *nats.Msg) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- Message{Topic: m.Subject, Data: m.Data}:
	default:
	}
}

func (q *queue) stop(sub *nats.Subscription) {
	_ = sub.Unsubscribe()
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
