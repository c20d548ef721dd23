// Package registry holds the set of peripherals discovered during the current scan.
package registry

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/srg/blelink/internal/device"
)

type entry struct {
	peripheral device.Peripheral
	seq        uint64
}

// table is the record set of one scan generation
type table struct {
	gen     uint64
	records *hashmap.Map[string, entry]
}

// Registry is a deduplicating set of peripherals keyed by address.
//
// Reads and admits are lock-free so the advertisement callback never blocks
// on scan commands. Records come back in the order they were admitted.
//
// Every Clear or Retire starts a new generation. AdmitIn writes only into the
// record set of the generation it names, so a callback of an earlier scan
// can never land in the set of a later one.
type Registry struct {
	current atomic.Pointer[table]
	filter  atomic.Pointer[string]
	seq     atomic.Uint64
}

// New creates an empty registry without a name filter
func New() *Registry {
	r := &Registry{}
	r.current.Store(&table{records: hashmap.New[string, entry]()})
	return r
}

func (r *Registry) records() *hashmap.Map[string, entry] {
	return r.current.Load().records
}

func (r *Registry) next(p device.Peripheral) entry {
	return entry{peripheral: p, seq: r.seq.Add(1)}
}

func (r *Registry) matchesFilter(name string) bool {
	prefix := r.filter.Load()
	if prefix == nil {
		return true
	}
	return strings.HasPrefix(name, *prefix)
}

// Admit applies the dedup predicate and inserts p when it passes: the address
// must not be registered yet and, when a filter is set, the name must start
// with it. Of several concurrent admits for one address exactly one wins.
func (r *Registry) Admit(p device.Peripheral) bool {
	return r.admit(r.current.Load(), p)
}

// AdmitIn is Admit restricted to generation gen. It rejects p once a later
// generation has started.
func (r *Registry) AdmitIn(gen uint64, p device.Peripheral) bool {
	t := r.current.Load()
	if t.gen != gen {
		return false
	}
	return r.admit(t, p)
}

func (r *Registry) admit(t *table, p device.Peripheral) bool {
	if p.Address == "" || !r.matchesFilter(p.Name) {
		return false
	}
	if _, exists := t.records.Get(p.Address); exists {
		return false
	}
	return t.records.Insert(p.Address, r.next(p))
}

// Generation returns the current generation
func (r *Registry) Generation() uint64 {
	return r.current.Load().gen
}

// Put inserts p, replacing any record with the same address
func (r *Registry) Put(p device.Peripheral) {
	r.records().Set(p.Address, r.next(p))
}

// Get returns the record registered under address
func (r *Registry) Get(address string) (device.Peripheral, bool) {
	e, ok := r.records().Get(address)
	return e.peripheral, ok
}

func (r *Registry) Contains(address string) bool {
	_, ok := r.records().Get(address)
	return ok
}

func (r *Registry) Len() int {
	return r.records().Len()
}

// Records returns a snapshot of every record in admission order
func (r *Registry) Records() []device.Peripheral {
	m := r.records()
	entries := make([]entry, 0, m.Len())
	m.Range(func(_ string, e entry) bool {
		entries = append(entries, e)
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]device.Peripheral, len(entries))
	for i, e := range entries {
		out[i] = e.peripheral
	}
	return out
}

// Clear discards every record and starts a new generation, which it returns.
// The name filter is kept.
func (r *Registry) Clear() uint64 {
	for {
		old := r.current.Load()
		next := &table{gen: old.gen + 1, records: hashmap.New[string, entry]()}
		if r.current.CompareAndSwap(old, next) {
			return next.gen
		}
	}
}

// Retire starts a new generation that keeps the current records
func (r *Registry) Retire() uint64 {
	for {
		old := r.current.Load()
		next := &table{gen: old.gen + 1, records: old.records}
		if r.current.CompareAndSwap(old, next) {
			return next.gen
		}
	}
}

// SetNameFilter restricts future admits to names starting with prefix.
// An empty prefix matches every name.
func (r *Registry) SetNameFilter(prefix string) {
	r.filter.Store(&prefix)
}

func (r *Registry) ClearNameFilter() {
	r.filter.Store(nil)
}

// NameFilter returns the active prefix, if any
func (r *Registry) NameFilter() (string, bool) {
	prefix := r.filter.Load()
	if prefix == nil {
		return "", false
	}
	return *prefix, true
}
