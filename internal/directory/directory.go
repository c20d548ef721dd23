// Package directory keeps the service tree of the connected peripheral.
package directory

import (
	"sync"

	"github.com/srg/blelink/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Directory is a snapshot of discovered services exactly as reported,
// addressable by normalized identifier. A service reported more than once is
// kept once per report; lookups resolve to its first report.
type Directory struct {
	mu       sync.RWMutex
	services []device.Service
	index    *orderedmap.OrderedMap[string, int]
}

func New() *Directory {
	return &Directory{services: []device.Service{}, index: orderedmap.New[string, int]()}
}

// Replace swaps the whole tree for services
func (d *Directory) Replace(services []device.Service) {
	reported := make([]device.Service, len(services))
	index := orderedmap.New[string, int](len(services))
	for i, svc := range services {
		reported[i] = cloneService(svc)
		key := device.NormalizeUUID(svc.ID)
		if _, seen := index.Get(key); !seen {
			index.Set(key, i)
		}
	}

	d.mu.Lock()
	d.services = reported
	d.index = index
	d.mu.Unlock()
}

func (d *Directory) Clear() {
	d.Replace(nil)
}

// Len returns the number of reported services, duplicates included
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.services)
}

// Services returns a copy of the tree; never nil
func (d *Directory) Services() []device.Service {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]device.Service, len(d.services))
	for i, svc := range d.services {
		out[i] = cloneService(svc)
	}
	return out
}

// Attributes returns the attributes of the first service matching id. Identifiers
// are compared after normalization, so "180F" and the full 128-bit form match.
func (d *Directory) Attributes(id string) ([]device.Attribute, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i, ok := d.index.Get(device.NormalizeUUID(id))
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", IDs: []string{id}}
	}
	return cloneService(d.services[i]).Attributes, nil
}

// Service returns the service matching id
func (d *Directory) Service(id string) (device.Service, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i, ok := d.index.Get(device.NormalizeUUID(id))
	if !ok {
		return device.Service{}, &device.NotFoundError{Resource: "service", IDs: []string{id}}
	}
	return cloneService(d.services[i]), nil
}

func cloneService(s device.Service) device.Service {
	attrs := make([]device.Attribute, len(s.Attributes))
	copy(attrs, s.Attributes)
	return device.Service{ID: s.ID, Attributes: attrs}
}
