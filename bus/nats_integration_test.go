//go:build integration

package bus

import (
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestNATSBusIntegration(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	b, err := NewNATSBus(NATSConfig{URL: url, ConnectTimeout: time.Second, MaxReconnects: 1})
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}
	defer b.Close()

	sub, err := b.Subscribe("resource:added")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer sub.Unsubscribe()
	b.Conn().Flush()

	if err := b.Publish("resource:added", []byte("hello")); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		if string(msg.Data) != "hello" {
			t.Errorf("Data = %q, want hello", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
