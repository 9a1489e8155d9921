package health

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/vinayprograms/resourcekit/resource"
)

func def(addr string) resource.Definition {
	return resource.Definition{Name: "r", Type: resource.TypeWorker, Address: addr}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		addr     string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"localhost:9000", "localhost", 9000, false},
		{"10.0.0.1:80", "10.0.0.1", 80, false},
		{"[::1]:6379", "::1", 6379, false},
		{"localhost", "", 0, true},
		{":9000", "", 0, true},
		{"host:port", "", 0, true},
		{"host:0", "", 0, true},
		{"host:70000", "", 0, true},
		{"", "", 0, true},
	}
	for _, tt := range tests {
		host, port, err := ParseAddress(tt.addr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			continue
		}
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("ParseAddress(%q) = %q, %d, want %q, %d", tt.addr, host, port, tt.wantHost, tt.wantPort)
		}
	}
}

func TestIsLoopback(t *testing.T) {
	for host, want := range map[string]bool{
		"localhost":   true,
		"127.0.0.1":   true,
		"127.8.9.10":  true,
		"::1":         true,
		"10.0.0.1":    false,
		"example.com": false,
	} {
		if got := IsLoopback(host); got != want {
			t.Errorf("IsLoopback(%q) = %v, want %v", host, got, want)
		}
	}
}

func TestTCPCheckerInvalidAddress(t *testing.T) {
	dialed := false
	c := &TCPChecker{Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
		dialed = true
		return nil, errors.New("unreachable")
	}}

	res := c.Check(context.Background(), def("no-port"))
	if res.Healthy {
		t.Error("malformed address should be unhealthy")
	}
	if res.Reason != ReasonInvalidAddress {
		t.Errorf("Reason = %q, want %q", res.Reason, ReasonInvalidAddress)
	}
	if dialed {
		t.Error("malformed address must not be dialed")
	}
	if res.Timestamp.IsZero() || res.LatencyMS < 0 {
		t.Error("timestamp and latency must be set")
	}
}

func TestTCPCheckerRealProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen error: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	c := NewTCPChecker(time.Second)
	res := c.Check(context.Background(), def(ln.Addr().String()))
	if !res.Healthy {
		t.Errorf("listening port should be healthy, reason %q", res.Reason)
	}

	addr := ln.Addr().String()
	ln.Close()
	res = c.Check(context.Background(), def(addr))
	if res.Healthy {
		t.Error("closed port should be unhealthy")
	}
	if res.Reason == "" {
		t.Error("failed probe should carry a reason")
	}
}

func TestTCPCheckerSkipLoopback(t *testing.T) {
	c := &TCPChecker{
		SkipLoopback: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, errors.New("refused")
		},
	}
	if res := c.Check(context.Background(), def("localhost:9000")); !res.Healthy {
		t.Errorf("loopback should short-circuit healthy, reason %q", res.Reason)
	}
	if res := c.Check(context.Background(), def("10.1.2.3:9000")); res.Healthy {
		t.Error("non-loopback host must be probed")
	}
}

func TestTCPCheckerRecoversPanic(t *testing.T) {
	c := &TCPChecker{Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
		panic("dialer exploded")
	}}

	res := c.Check(context.Background(), def("10.1.2.3:9000"))
	if res.Healthy {
		t.Error("panicking probe should be unhealthy")
	}
	if res.Reason != "dialer exploded" {
		t.Errorf("Reason = %q, want panic message", res.Reason)
	}
	if res.LatencyMS < 0 {
		t.Error("latency must be set after panic")
	}
}

func TestTCPCheckerHonorsContext(t *testing.T) {
	c := &TCPChecker{Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.Check(ctx, def("10.1.2.3:9000"))
	if res.Healthy {
		t.Error("canceled probe should be unhealthy")
	}
}

func TestCheckerFunc(t *testing.T) {
	var c Checker = CheckerFunc(func(ctx context.Context, d resource.Definition) resource.HealthCheckResult {
		return resource.HealthCheckResult{Healthy: d.Name == "r"}
	})
	if !c.Check(context.Background(), def("x:1")).Healthy {
		t.Error("CheckerFunc did not call through")
	}
}
