package resource

// transitions lists every allowed status change. Offline is reachable from
// anywhere because teardown bypasses draining when forced.
var transitions = map[Status][]Status{
	StatusOnline:    {StatusDraining, StatusUnhealthy, StatusOffline},
	StatusUnhealthy: {StatusOnline, StatusDraining, StatusOffline},
	StatusDraining:  {StatusOnline, StatusOffline},
	StatusOffline:   {},
}

// CanTransition reports whether a resource may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
