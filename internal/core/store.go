package core

import (
	"bytes"
	"reflect"
	"strings"
)

// Store maps every Category to an ordered sequence of records. It is a
// value: every operation returns a new Store and leaves the receiver as it
// was, so older snapshots stay valid after a mutation.
type Store struct {
	records map[Category][]Record
}

// Hit is a single lookup result.
type Hit struct {
	Category Category
	Record   Record
}

// NewStore builds a Store from data, copying every record. Categories
// missing from data get an empty sequence; unknown categories are dropped.
func NewStore(data map[Category][]Record) Store {
	s := Store{records: make(map[Category][]Record, len(categories))}
	for _, c := range categories {
		src := data[c]
		dst := make([]Record, len(src))
		for i, r := range src {
			dst[i] = NewRecord(r.ID, r.Fields)
		}
		s.records[c] = dst
	}
	return s
}

// EmptyStore returns a Store with every category present and empty.
func EmptyStore() Store {
	return NewStore(nil)
}

// Records returns a copy of the sequence stored under c.
func (s Store) Records(c Category) []Record {
	src := s.records[c]
	out := make([]Record, len(src))
	for i, r := range src {
		out[i] = NewRecord(r.ID, r.Fields)
	}
	return out
}

// Len returns the number of records under c.
func (s Store) Len(c Category) int {
	return len(s.records[c])
}

// Count returns the number of records across all categories.
func (s Store) Count() int {
	n := 0
	for _, c := range categories {
		n += len(s.records[c])
	}
	return n
}

// Data returns a deep copy of the whole mapping.
func (s Store) Data() map[Category][]Record {
	out := make(map[Category][]Record, len(categories))
	for _, c := range categories {
		out[c] = s.Records(c)
	}
	return out
}

// Find returns the first record under c whose identifier equals id.
func (s Store) Find(c Category, id string) (Record, bool) {
	for _, r := range s.records[c] {
		if r.ID == id {
			return NewRecord(r.ID, r.Fields), true
		}
	}
	return Record{}, false
}

// Add appends r to the end of c. Identifier uniqueness is not checked.
func (s Store) Add(c Category, r Record) Store {
	out := s.shallow()
	seq := make([]Record, 0, len(out.records[c])+1)
	seq = append(seq, out.records[c]...)
	out.records[c] = append(seq, NewRecord(r.ID, r.Fields))
	return out
}

// Edit replaces the first record under c matching id with its merge with
// p. When nothing matches the receiver is returned unchanged with false.
func (s Store) Edit(c Category, id string, p Patch) (Store, bool) {
	src := s.records[c]
	for i, r := range src {
		if r.ID != id {
			continue
		}
		out := s.shallow()
		seq := make([]Record, len(src))
		copy(seq, src)
		seq[i] = r.Apply(p)
		out.records[c] = seq
		return out, true
	}
	return s, false
}

// Delete removes every record under c whose identifier equals id and
// returns how many were removed. Other categories are shared untouched.
func (s Store) Delete(c Category, id string) (Store, int) {
	src := s.records[c]
	seq := make([]Record, 0, len(src))
	for _, r := range src {
		if r.ID != id {
			seq = append(seq, r)
		}
	}
	removed := len(src) - len(seq)
	if removed == 0 {
		return s, 0
	}
	out := s.shallow()
	out.records[c] = seq
	return out, removed
}

// Search matches query case-insensitively against identifiers and field
// values. An empty query matches everything. With no categories given all
// categories are searched.
func (s Store) Search(query string, only ...Category) []Hit {
	q := strings.ToLower(strings.TrimSpace(query))
	selected := only
	if len(selected) == 0 {
		selected = categories
	}
	want := make(map[Category]bool, len(selected))
	for _, c := range selected {
		want[c] = true
	}

	var hits []Hit
	for _, c := range categories {
		if !want[c] {
			continue
		}
		for _, r := range s.records[c] {
			if q == "" || r.matches(q) {
				hits = append(hits, Hit{Category: c, Record: NewRecord(r.ID, r.Fields)})
			}
		}
	}
	return hits
}

func (r Record) matches(q string) bool {
	if strings.Contains(strings.ToLower(r.ID), q) {
		return true
	}
	for _, v := range r.Fields {
		if strings.Contains(strings.ToLower(stringify(v)), q) {
			return true
		}
	}
	return false
}

// Equal reports deep equality of two stores.
func (s Store) Equal(o Store) bool {
	for _, c := range categories {
		a, b := s.records[c], o.records[c]
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i].ID != b[i].ID || !fieldsEqual(a[i].Fields, b[i].Fields) {
				return false
			}
		}
	}
	return true
}

func fieldsEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// MarshalJSON writes categories in display order.
func (s Store) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range categories {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalValue(string(c))
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		seq := s.records[c]
		if seq == nil {
			seq = []Record{}
		}
		val, err := marshalValue(seq)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// shallow copies the category map so one sequence can be swapped out.
// Records are never mutated in place, so sharing them is safe.
func (s Store) shallow() Store {
	out := Store{records: make(map[Category][]Record, len(categories))}
	for _, c := range categories {
		seq := s.records[c]
		if seq == nil {
			seq = []Record{}
		}
		out.records[c] = seq
	}
	return out
}
