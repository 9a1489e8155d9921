package registry

import (
	"sort"

	"github.com/vinayprograms/resourcekit/resource"
)

// GetResource returns a copy of the resource with the given id.
func (r *Registry) GetResource(id string) (*resource.Resource, bool) {
	e, ok := r.entries.Get(id)
	if !ok {
		return nil, false
	}
	return e.load().Clone(), true
}

// GetResourceByName returns a copy of the resource with the given name.
func (r *Registry) GetResourceByName(name string) (*resource.Resource, bool) {
	id, ok := r.idForName(name)
	if !ok {
		return nil, false
	}
	res, ok := r.GetResource(id)
	if !ok || res.Name != name {
		return nil, false
	}
	return res, true
}

// GetAllResources returns every registered resource.
func (r *Registry) GetAllResources() []*resource.Resource {
	return r.filter(func(*resource.Resource) bool { return true })
}

// GetResourcesByStatus returns resources in the given status.
func (r *Registry) GetResourcesByStatus(status resource.Status) []*resource.Resource {
	return r.filter(func(res *resource.Resource) bool { return res.Status == status })
}

// GetResourcesByType returns resources of the given type.
func (r *Registry) GetResourcesByType(typ resource.Type) []*resource.Resource {
	return r.filter(func(res *resource.Resource) bool { return res.Type == typ })
}

// GetAvailableWorkers returns online workers.
func (r *Registry) GetAvailableWorkers() []*resource.Resource {
	return r.filter((*resource.Resource).IsAvailable)
}

// GetResourcesByLabel returns resources whose label key equals value.
func (r *Registry) GetResourcesByLabel(key, value string) []*resource.Resource {
	return r.filter(func(res *resource.Resource) bool { return res.HasLabel(key, value) })
}

// GetResourcesWithCapability returns resources that declare the capability.
// A nil value matches any declared value; a list capability matches when it
// contains value.
func (r *Registry) GetResourcesWithCapability(name string, value any) []*resource.Resource {
	return r.filter(func(res *resource.Resource) bool { return res.HasCapability(name, value) })
}

// filter returns copies of matching snapshots ordered by AddedAt, then ID.
func (r *Registry) filter(match func(*resource.Resource) bool) []*resource.Resource {
	result := make([]*resource.Resource, 0)
	for item := range r.entries.IterBuffered() {
		res := item.Val.load()
		if match(res) {
			result = append(result, res.Clone())
		}
	}
	sortResources(result)
	return result
}

func sortResources(rs []*resource.Resource) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].AddedAt.Equal(rs[j].AddedAt) {
			return rs[i].AddedAt.Before(rs[j].AddedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
