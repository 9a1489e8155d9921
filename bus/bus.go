package bus

import (
	"errors"
	"strings"
)

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Message represents a message received from the bus.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the message payload.
	Data []byte
}

// Publisher sends messages. The registry only needs this half of a bus.
type Publisher interface {
	// Publish sends a message to all subscribers of a subject.
	// It must not block on slow subscribers.
	Publish(subject string, data []byte) error
}

// MessageBus provides pub/sub messaging.
type MessageBus interface {
	Publisher

	// Subscribe creates a subscription to a subject.
	// All subscribers receive all messages.
	Subscribe(subject string) (Subscription, error)

	// Close shuts down the bus connection.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// Channel is closed when subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels.
	// Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// ValidateSubject checks if a subject is valid.
func ValidateSubject(subject string) error {
	if subject == "" || strings.ContainsAny(subject, " \t\r\n") {
		return ErrInvalidSubject
	}
	if strings.HasPrefix(subject, ".") || strings.HasSuffix(subject, ".") {
		return ErrInvalidSubject
	}
	return nil
}
