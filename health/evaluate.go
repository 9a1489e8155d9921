package health

import "github.com/vinayprograms/resourcekit/resource"

// DefaultUnhealthyThreshold is the default trailing window size.
const DefaultUnhealthyThreshold = 3

// Evaluate decides the next status from the trailing window of the last
// threshold results. Only online and unhealthy are ever changed; draining
// and offline are left to explicit registry operations.
func Evaluate(history []resource.HealthCheckResult, current resource.Status, threshold int) (resource.Status, bool) {
	if threshold <= 0 {
		threshold = DefaultUnhealthyThreshold
	}
	if len(history) < threshold {
		return current, false
	}

	window := history[len(history)-threshold:]
	healthy, failed := 0, 0
	for _, r := range window {
		if r.Healthy {
			healthy++
		} else {
			failed++
		}
	}

	switch {
	case current == resource.StatusOnline && failed == threshold:
		return resource.StatusUnhealthy, true
	case current == resource.StatusUnhealthy && healthy == threshold:
		return resource.StatusOnline, true
	}
	return current, false
}
