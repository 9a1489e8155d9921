package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/vinayprograms/resourcekit/resource"
)

// ReasonInvalidAddress is reported for addresses that are not host:port.
const ReasonInvalidAddress = "invalid address format"

// Checker performs a single point-in-time probe.
type Checker interface {
	Check(ctx context.Context, def resource.Definition) resource.HealthCheckResult
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, def resource.Definition) resource.HealthCheckResult

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, def resource.Definition) resource.HealthCheckResult {
	return f(ctx, def)
}

// DialFunc opens a connection; net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// TCPChecker reports a resource healthy when a TCP connection to its
// address succeeds within Timeout.
type TCPChecker struct {
	// Timeout bounds each dial. Default: 5s
	Timeout time.Duration

	// SkipLoopback reports loopback hosts healthy without dialing.
	SkipLoopback bool

	// Dial overrides the dialer, mainly for tests.
	Dial DialFunc
}

// NewTCPChecker creates a checker with the given dial timeout.
func NewTCPChecker(timeout time.Duration) *TCPChecker {
	return &TCPChecker{Timeout: timeout}
}

// Check probes def.Address. It never panics and always sets LatencyMS.
func (c *TCPChecker) Check(ctx context.Context, def resource.Definition) (result resource.HealthCheckResult) {
	start := time.Now()
	result.Timestamp = start.UTC()

	defer func() {
		if r := recover(); r != nil {
			result.Healthy = false
			result.Reason = fmt.Sprint(r)
		}
		result.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	}()

	host, port, err := ParseAddress(def.Address)
	if err != nil {
		result.Reason = ReasonInvalidAddress
		return result
	}

	if c.SkipLoopback && IsLoopback(host) {
		result.Healthy = true
		return result
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dial := c.Dial
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}

	conn, err := dial(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		result.Reason = err.Error()
		return result
	}
	conn.Close()

	result.Healthy = true
	return result
}

// ParseAddress splits host:port and checks that the port is in range.
func ParseAddress(address string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, err
	}
	if host == "" {
		return "", 0, fmt.Errorf("missing host in %q", address)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in %q", address)
	}
	return host, port, nil
}

// IsLoopback reports whether host names the local machine.
func IsLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
