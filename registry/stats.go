package registry

import "github.com/vinayprograms/resourcekit/resource"

// Stats summarizes the registered resources for capacity planning.
type Stats struct {
	Total            int                     `json:"total"`
	ByType           map[resource.Type]int   `json:"by_type"`
	ByStatus         map[resource.Status]int `json:"by_status"`
	CPUCores         int                     `json:"cpu_cores"`
	MemoryGB         float64                 `json:"memory_gb"`
	AvailableWorkers int                     `json:"available_workers"`
}

// GetStats aggregates the latest committed snapshots. Every known type and
// status is present in the maps, with zero counts where nothing matches.
func (r *Registry) GetStats() Stats {
	s := Stats{
		ByType:   make(map[resource.Type]int),
		ByStatus: make(map[resource.Status]int),
	}
	for _, t := range resource.Types() {
		s.ByType[t] = 0
	}
	for _, st := range resource.Statuses() {
		s.ByStatus[st] = 0
	}

	for item := range r.entries.IterBuffered() {
		res := item.Val.load()
		s.Total++
		s.ByType[res.Type]++
		s.ByStatus[res.Status]++
		s.CPUCores += res.CPUCores
		s.MemoryGB += res.MemoryGB
		if res.IsAvailable() {
			s.AvailableWorkers++
		}
	}
	return s
}
