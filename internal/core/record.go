package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FieldID is the reserved key carrying a record identifier in serialized form.
const FieldID = "id"

type (
	// Record is a single entry of a category. Fields holds free-form
	// descriptive data; values are JSON-compatible (string, json.Number,
	// bool, nil, []any, map[string]any).
	Record struct {
		ID     string
		Fields map[string]any
	}

	// Patch describes an edit explicitly. Set overwrites or adds fields,
	// Clear removes them. A key present in both is set. The identifier
	// can be neither set nor cleared.
	Patch struct {
		Set   map[string]any
		Clear []string
	}
)

var (
	ErrMissingID = errors.New("record has no id")
	ErrEmptyID   = errors.New("empty record id")
)

// NewRecord builds a record with a private copy of fields.
func NewRecord(id string, fields map[string]any) Record {
	return Record{ID: id, Fields: cloneFields(fields)}
}

// Field returns the value stored under key.
func (r Record) Field(key string) (any, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// FieldString returns the field rendered as text, or "" when absent.
func (r Record) FieldString(key string) string {
	v, ok := r.Fields[key]
	if !ok {
		return ""
	}
	return stringify(v)
}

// Keys returns the field names in sorted order, excluding the identifier.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		if k == FieldID {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply returns a copy of r with the patch merged in.
func (r Record) Apply(p Patch) Record {
	out := Record{ID: r.ID, Fields: cloneFields(r.Fields)}
	for _, k := range p.Clear {
		delete(out.Fields, k)
	}
	for k, v := range p.Set {
		if k == FieldID {
			continue
		}
		out.Fields[k] = cloneValue(v)
	}
	return out
}

// IsEmpty reports whether the patch would change nothing.
func (p Patch) IsEmpty() bool {
	return len(p.Set) == 0 && len(p.Clear) == 0
}

// Validate rejects records that cannot be addressed later.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrEmptyID
	}
	return nil
}

// MarshalJSON writes the id first, then the remaining fields in key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"id":`)
	id, err := marshalValue(r.ID)
	if err != nil {
		return nil, err
	}
	buf.Write(id)
	for _, k := range r.Keys() {
		key, err := marshalValue(k)
		if err != nil {
			return nil, err
		}
		val, err := marshalValue(r.Fields[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a JSON object with a string or numeric id.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("record is null: %w", ErrMissingID)
	}
	var id string
	switch v := raw[FieldID].(type) {
	case string:
		id = v
	case json.Number:
		id = v.String()
	default:
		return ErrMissingID
	}
	delete(raw, FieldID)
	r.ID = id
	r.Fields = raw
	return nil
}

// marshalValue encodes v without HTML escaping, matching what browsers write.
func marshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k == FieldID {
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case map[string]any, []any:
		b, err := marshalValue(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
