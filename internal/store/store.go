// Package store holds the global variable store shared by every stage
// of a pipeline run. A store is created per run and handed to stages
// through the record context; it is never package-level state, so
// tests can inject a fresh one.
//
// The pipeline is strictly single-threaded, so the store does no
// locking. Callers introducing concurrency must add their own
// synchronization.
package store

// Store maps string names to dynamic values with process-run lifetime.
// Values follow the same dynamic domain as structured record fields.
type Store struct {
	keys   []string
	values map[string]any
}

// New creates an empty store.
func New() *Store {
	return &Store{values: make(map[string]any)}
}

// Get returns the value for name and whether it is present.
func (s *Store) Get(name string) (any, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Set stores value under name. Unlike record fields, a nil value is a
// legal stored value; use Delete to remove a name.
func (s *Store) Set(name string, value any) {
	if _, ok := s.values[name]; !ok {
		s.keys = append(s.keys, name)
	}
	s.values[name] = value
}

// Delete removes name and reports whether it was present.
func (s *Store) Delete(name string) bool {
	if _, ok := s.values[name]; !ok {
		return false
	}
	delete(s.values, name)
	for i, k := range s.keys {
		if k == name {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns all names in insertion order. The slice is a copy.
func (s *Store) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of stored names.
func (s *Store) Len() int { return len(s.keys) }

// Clear removes every entry.
func (s *Store) Clear() {
	s.keys = s.keys[:0]
	s.values = make(map[string]any)
}

// Increment adds one to the integer stored under name, treating a
// missing or non-integer value as zero, and returns the new value.
func (s *Store) Increment(name string) int64 {
	current, _ := s.values[name].(int64)
	current++
	s.Set(name, current)
	return current
}
