package registry

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vinayprograms/resourcekit/bus"
	"github.com/vinayprograms/resourcekit/errors"
)

func TestMetrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	m := NewMetrics(promReg)
	h := newHarness(t, func(c *Config) { c.Metrics = m })
	ctx := context.Background()

	res := h.add(t, worker("w1", "10.0.0.1:9000"))
	if _, err := h.reg.DrainResource(ctx, res.ID, "alice"); err != nil {
		t.Fatalf("DrainResource error: %v", err)
	}
	if _, err := h.reg.ResumeResource(ctx, res.ID, "alice"); err != nil {
		t.Fatalf("ResumeResource error: %v", err)
	}
	if _, err := h.reg.ResumeResource(ctx, res.ID, "alice"); err == nil {
		t.Fatal("expected InvalidState on second resume")
	}

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("online", "draining")); got != 1 {
		t.Errorf("online->draining = %v", got)
	}
	if got := testutil.ToFloat64(m.checks.WithLabelValues("worker", "healthy")); got != 1 {
		t.Errorf("healthy checks = %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("resume", string(errors.ErrCodeInvalidState))); got != 1 {
		t.Errorf("failed resumes = %v", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues(string(EventAdded), "")); got != 1 {
		t.Errorf("added events = %v", got)
	}
}

func TestMetrics_DrainTimeout(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	h := newHarness(t, func(c *Config) {
		c.Metrics = m
		c.DrainTimeout = 20 * time.Millisecond
		c.DrainPollInterval = 5 * time.Millisecond
		c.Idle = func(context.Context, string) (bool, error) { return false, nil }
	})
	res := h.add(t, worker("w1", "10.0.0.1:9000"))

	_ = h.reg.RemoveResource(context.Background(), res.ID, "alice", false)
	if got := testutil.ToFloat64(m.drainTimeouts); got != 1 {
		t.Errorf("drain timeouts = %v", got)
	}
}

func TestStatsCollector(t *testing.T) {
	h, _ := seed(t)

	expected := `
# HELP resourcekit_registry_available_workers Online workers.
# TYPE resourcekit_registry_available_workers gauge
resourcekit_registry_available_workers 1
# HELP resourcekit_registry_cpu_cores Summed CPU cores across registered resources.
# TYPE resourcekit_registry_cpu_cores gauge
resourcekit_registry_cpu_cores 14
`
	err := testutil.CollectAndCompare(NewStatsCollector(h.reg), strings.NewReader(expected),
		"resourcekit_registry_available_workers", "resourcekit_registry_cpu_cores")
	if err != nil {
		t.Errorf("CollectAndCompare error: %v", err)
	}

	// 3 types x 4 statuses + cpu + memory + workers
	if n := testutil.CollectAndCount(NewStatsCollector(h.reg)); n != 15 {
		t.Errorf("metric count = %d, want 15", n)
	}
}

// --- Bus ---

func TestEventsPublishedOnBus(t *testing.T) {
	b := bus.NewMemoryBus(bus.DefaultConfig())
	defer b.Close()

	sub, err := b.Subscribe(string(EventAdded))
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	h := newHarness(t, func(c *Config) { c.Bus = b })
	res := h.add(t, worker("w1", "10.0.0.1:9000"))

	select {
	case msg := <-sub.Messages():
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.Fatalf("Unmarshal error: %v", err)
		}
		if ev.Type != EventAdded || ev.Resource.ID != res.ID || ev.Actor != "alice" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event on bus")
	}
}
