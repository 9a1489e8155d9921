package bus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus implements MessageBus using NATS core pub/sub.
type NATSBus struct {
	conn   *nats.Conn
	config NATSConfig
	owned  bool
}

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	Config

	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for identification.
	Name string

	// Token for token-based auth.
	Token string

	// User and Password for basic auth.
	User     string
	Password string

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration

	// MaxReconnects is the maximum number of reconnection attempts.
	// -1 = unlimited
	MaxReconnects int

	// ConnectTimeout for initial connection.
	ConnectTimeout time.Duration
}

// DefaultNATSConfig returns configuration with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Config:         DefaultConfig(),
		URL:            nats.DefaultURL,
		Name:           "resourced",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
	}
}

// NewNATSBus connects to NATS. Close closes the connection.
func NewNATSBus(cfg NATSConfig) (*NATSBus, error) {
	cfg = withNATSDefaults(cfg)

	conn, err := nats.Connect(cfg.URL, buildNATSOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &NATSBus{conn: conn, config: cfg, owned: true}, nil
}

// NewNATSBusFromConn wraps an existing connection, which the caller keeps.
func NewNATSBusFromConn(conn *nats.Conn, cfg NATSConfig) *NATSBus {
	return &NATSBus{conn: conn, config: withNATSDefaults(cfg)}
}

func withNATSDefaults(cfg NATSConfig) NATSConfig {
	def := DefaultNATSConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = def.MaxReconnects
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	return cfg
}

// buildNATSOptions constructs NATS connection options from config.
func buildNATSOptions(cfg NATSConfig) []nats.Option {
	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	return opts
}

// Publish sends a message to a subject.
func (b *NATSBus) Publish(subject string, data []byte) error {
	if err := ValidateSubject(subject); err != nil {
		return err
	}
	if b.conn.IsClosed() {
		return ErrClosed
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe creates a subscription to a subject.
func (b *NATSBus) Subscribe(subject string) (Subscription, error) {
	if err := ValidateSubject(subject); err != nil {
		return nil, err
	}
	if b.conn.IsClosed() {
		return nil, ErrClosed
	}

	s := &natsSub{ch: make(chan *Message, b.config.BufferSize)}
	sub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		s.deliver(&Message{Subject: m.Subject, Data: m.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	s.sub = sub
	return s, nil
}

// Close closes the connection if the bus opened it.
func (b *NATSBus) Close() error {
	if b.owned {
		b.conn.Close()
	}
	return nil
}

// Conn returns the underlying NATS connection, e.g. to share with state.NATSStore.
func (b *NATSBus) Conn() *nats.Conn {
	return b.conn
}

// natsSub bridges a NATS callback subscription onto a channel.
type natsSub struct {
	sub *nats.Subscription

	mu     sync.Mutex
	ch     chan *Message
	closed bool
}

func (s *natsSub) deliver(msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
	default:
	}
}

// Messages returns the message channel.
func (s *natsSub) Messages() <-chan *Message {
	return s.ch
}

// Unsubscribe cancels the subscription.
func (s *natsSub) Unsubscribe() error {
	err := s.sub.Unsubscribe()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return err
}
