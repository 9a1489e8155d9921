package health

import (
	"testing"

	"github.com/vinayprograms/resourcekit/resource"
)

func results(pattern string) []resource.HealthCheckResult {
	out := make([]resource.HealthCheckResult, len(pattern))
	for i, c := range pattern {
		out[i].Healthy = c == '+'
	}
	return out
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name        string
		history     string
		current     resource.Status
		threshold   int
		want        resource.Status
		wantChanged bool
	}{
		{"online stays with mixed window", "++--+-", resource.StatusOnline, 3, resource.StatusOnline, false},
		{"online to unhealthy after N failures", "++---", resource.StatusOnline, 3, resource.StatusUnhealthy, true},
		{"two failures are not enough", "+--", resource.StatusOnline, 3, resource.StatusOnline, false},
		{"short history", "--", resource.StatusOnline, 3, resource.StatusOnline, false},
		{"unhealthy recovers after N successes", "---+++", resource.StatusUnhealthy, 3, resource.StatusOnline, true},
		{"unhealthy stays with partial recovery", "---++", resource.StatusUnhealthy, 3, resource.StatusUnhealthy, false},
		{"unhealthy stays unhealthy on failures", "-----", resource.StatusUnhealthy, 3, resource.StatusUnhealthy, false},
		{"draining never touched by failures", "-----", resource.StatusDraining, 3, resource.StatusDraining, false},
		{"offline never touched", "+++++", resource.StatusOffline, 3, resource.StatusOffline, false},
		{"threshold one", "+-", resource.StatusOnline, 1, resource.StatusUnhealthy, true},
		{"zero threshold uses default", "+---", resource.StatusOnline, 0, resource.StatusUnhealthy, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := Evaluate(results(tt.history), tt.current, tt.threshold)
			if got != tt.want || changed != tt.wantChanged {
				t.Errorf("Evaluate(%s, %s, %d) = %s, %v, want %s, %v",
					tt.history, tt.current, tt.threshold, got, changed, tt.want, tt.wantChanged)
			}
		})
	}
}
