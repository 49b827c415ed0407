package transport

import (
	"context"
	"fmt"
	"sync"
)

// deliveryQueue is the per-subscription backlog before publishers block.
const deliveryQueue = 256

// Broker is an in-process broker with MQTT topic semantics. It keeps
// retained messages and publishes a session's will when the session is
// dropped instead of closed.
type Broker struct {
	mu       sync.Mutex
	sessions map[*memorySession]struct{}
	retained map[string]Message
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{
		sessions: make(map[*memorySession]struct{}),
		retained: make(map[string]Message),
	}
}

// Dialer returns a Dialer connecting to b.
func (b *Broker) Dialer() Dialer {
	return func(ctx context.Context, clientID string, will *Message) (Transport, error) {
		return b.Dial(ctx, clientID, will)
	}
}

// Dial opens a session.
func (b *Broker) Dial(ctx context.Context, clientID string, will *Message) (*MemoryClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &memorySession{broker: b, clientID: clientID, done: make(chan struct{})}
	if will != nil {
		w := *will
		w.Payload = append([]byte(nil), will.Payload...)
		s.will = &w
	}
	b.mu.Lock()
	b.sessions[s] = struct{}{}
	b.mu.Unlock()
	return &MemoryClient{s: s}, nil
}

// Retained returns the retained message on topic, if any.
func (b *Broker) Retained(topic string) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.retained[topic]
	return m, ok
}

// Sessions returns the number of open sessions.
func (b *Broker) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Subscriptions returns the number of active subscriptions across sessions.
func (b *Broker) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for s := range b.sessions {
		s.mu.Lock()
		if !s.closed {
			n += len(s.subs)
		}
		s.mu.Unlock()
	}
	return n
}

func (b *Broker) publish(ctx context.Context, msg Message) error {
	// publishers reuse their encode buffers; subscribers share this copy
	msg.Payload = append([]byte(nil), msg.Payload...)

	b.mu.Lock()
	if msg.Retained {
		if len(msg.Payload) == 0 {
			delete(b.retained, msg.Topic)
		} else {
			b.retained[msg.Topic] = msg
		}
	}
	var targets []*subscription
	for s := range b.sessions {
		targets = s.matching(msg.Topic, targets)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		if err := sub.enqueue(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broker) remove(s *memorySession) {
	b.mu.Lock()
	delete(b.sessions, s)
	b.mu.Unlock()
}

type memorySession struct {
	broker   *Broker
	clientID string
	will     *Message

	mu     sync.Mutex
	subs   []*subscription
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// matching appends the subscriptions of s that match topic. The caller holds
// the broker lock.
func (s *memorySession) matching(topic string, dst []*subscription) []*subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return dst
	}
	for _, sub := range s.subs {
		if Match(sub.filter, topic) {
			dst = append(dst, sub)
		}
	}
	return dst
}

type subscription struct {
	filter  string
	handler Handler
	ch      chan Message
	done    <-chan struct{}
}

func (sub *subscription) enqueue(ctx context.Context, msg Message) error {
	select {
	case sub.ch <- msg:
		return nil
	case <-sub.done:
		// subscriber went away; the message is simply not delivered
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sub *subscription) run() {
	for {
		select {
		case msg := <-sub.ch:
			sub.handler(msg)
		case <-sub.done:
			return
		}
	}
}

// MemoryClient is a session on a Broker.
type MemoryClient struct {
	s *memorySession
}

// Publish implements Transport.
func (c *MemoryClient) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.PublishMessage(ctx, Message{Topic: topic, Payload: payload})
}

// PublishMessage publishes msg with its QoS and retain flag.
func (c *MemoryClient) PublishMessage(ctx context.Context, msg Message) error {
	if err := ValidTopic(msg.Topic); err != nil {
		return err
	}
	if c.isClosed() {
		return ErrClosed
	}
	return c.s.broker.publish(ctx, msg)
}

// Subscribe implements Transport. Retained messages matching filter are
// delivered first.
func (c *MemoryClient) Subscribe(ctx context.Context, filter string, h Handler) error {
	if err := ValidFilter(filter); err != nil {
		return err
	}
	s := c.s
	sub := &subscription{filter: filter, handler: h, ch: make(chan Message, deliveryQueue), done: s.done}

	s.broker.mu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.broker.mu.Unlock()
		return ErrClosed
	}
	s.subs = append(s.subs, sub)
	s.wg.Add(1)
	var retained []Message
	for topic, m := range s.broker.retained {
		if Match(filter, topic) {
			retained = append(retained, m)
		}
	}
	s.mu.Unlock()
	s.broker.mu.Unlock()

	go func() {
		defer s.wg.Done()
		sub.run()
	}()
	for _, m := range retained {
		if err := sub.enqueue(ctx, m); err != nil {
			return fmt.Errorf("deliver retained %s: %w", m.Topic, err)
		}
	}
	return nil
}

// Close ends the session gracefully; the will is discarded. It waits for
// running handlers, so it must not be called from one.
func (c *MemoryClient) Close() error {
	c.shutdown()
	return nil
}

// Drop ends the session as if the connection were lost: the broker publishes
// the will message.
func (c *MemoryClient) Drop() {
	will := c.shutdown()
	if will != nil {
		_ = c.s.broker.publish(context.Background(), *will)
	}
}

func (c *MemoryClient) isClosed() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.closed
}

func (c *MemoryClient) shutdown() *Message {
	s := c.s
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	will := s.will
	s.mu.Unlock()

	s.broker.remove(s)
	s.wg.Wait()
	return will
}
