// Package transport moves encoded Sparkplug payloads over a publish/subscribe
// broker. The codec never sees connections; nodes and hosts hold a Transport.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrClosed        = errors.New("transport: closed")
	ErrInvalidFilter = errors.New("transport: invalid topic filter")
	ErrInvalidTopic  = errors.New("transport: invalid topic name")
)

// Message is one published message.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Handler receives messages for a subscription. Handlers of one subscription
// are called sequentially; the payload must not be retained after return.
type Handler func(Message)

// Transport is a connected client session.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	PublishMessage(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context, filter string, h Handler) error
	Close() error
}

// Dialer opens a session. will, if non-nil, is published by the broker when
// the session ends without Close.
type Dialer func(ctx context.Context, clientID string, will *Message) (Transport, error)

// ValidTopic checks a topic name used for publishing.
func ValidTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidFilter checks MQTT filter syntax: '+' occupies a whole level and '#'
// only the whole last level.
func ValidFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFilter)
	}
	levels := strings.Split(filter, "/")
	for i, l := range levels {
		if strings.Contains(l, "#") && (l != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: %q", ErrInvalidFilter, filter)
		}
		if strings.Contains(l, "+") && l != "+" {
			return fmt.Errorf("%w: %q", ErrInvalidFilter, filter)
		}
	}
	return nil
}

// Match reports whether topic matches filter under MQTT wildcard rules.
func Match(filter, topic string) bool {
	for {
		fl, frest, fmore := strings.Cut(filter, "/")
		if fl == "#" {
			return true
		}
		tl, trest, tmore := strings.Cut(topic, "/")
		if fl != "+" && fl != tl {
			return false
		}
		if !fmore || !tmore {
			// "a/#" also matches "a"
			return fmore == tmore || (fmore && frest == "#")
		}
		filter, topic = frest, trest
	}
}
