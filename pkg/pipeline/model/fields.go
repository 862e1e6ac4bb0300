package model

import "sort"

// Fields is an insertion-ordered mapping from string keys to dynamic
// values. Key order matters for fixed-column output formats, so it is
// preserved across reads, writes and clones.
type Fields struct {
	keys   []string
	values map[string]Value
}

// NewFields creates an empty field mapping.
func NewFields() *Fields {
	return &Fields{values: make(map[string]Value)}
}

// Get returns the value for key and whether it is present.
func (f *Fields) Get(key string) (Value, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Set stores value under key, appending the key to the order if new.
// Setting nil deletes the key.
func (f *Fields) Set(key string, value Value) {
	if value == nil {
		f.Delete(key)
		return
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Delete removes key, preserving the order of the remaining keys.
func (f *Fields) Delete(key string) {
	if _, ok := f.values[key]; !ok {
		return
	}
	delete(f.values, key)
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order. The slice is a copy.
func (f *Fields) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Len returns the number of keys.
func (f *Fields) Len() int {
	return len(f.keys)
}

// Range calls fn for every key/value pair in insertion order, stopping
// if fn returns false.
func (f *Fields) Range(fn func(key string, value Value) bool) {
	for _, k := range f.keys {
		if !fn(k, f.values[k]) {
			return
		}
	}
}

// Clone returns a copy sharing no mutable state with the original.
// Nested lists and mappings are copied recursively.
func (f *Fields) Clone() *Fields {
	out := NewFields()
	for _, k := range f.keys {
		out.Set(k, cloneValue(f.values[k]))
	}
	return out
}

func (f *Fields) setSorted(m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		norm, err := Normalize(m[k])
		if err != nil {
			return err
		}
		f.Set(k, norm)
	}
	return nil
}

func cloneValue(v Value) Value {
	switch tv := v.(type) {
	case List:
		out := make(List, len(tv))
		for i, elem := range tv {
			out[i] = cloneValue(elem)
		}
		return out
	case *Fields:
		return tv.Clone()
	default:
		return tv
	}
}
