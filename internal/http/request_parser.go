// Package http provides HTTP server and handler implementations.
//
// This file turns submitted forms into records and patches.

package http

import (
	"net/url"
	"unicode/utf8"

	"fengshui/internal/core"
)

const (
	formCategory   = "category"
	formID         = "id"
	formFieldName  = "field_name"
	formFieldValue = "field_value"
	formClear      = "clear"

	maxFields        = 64
	maxFieldNameLen  = 100
	maxFieldValueLen = 4000
	maxIDLen         = 200
)

// formError carries a message safe to show to the user.
type formError string

func (e formError) Error() string { return string(e) }

const (
	errUnknownCategory formError = "Danh mục không hợp lệ"
	errFieldMismatch   formError = "Tên trường và giá trị không khớp"
	errTooManyFields   formError = "Quá nhiều trường"
	errFieldTooLong    formError = "Tên hoặc giá trị trường quá dài"
	errNoFields        formError = "Cần ít nhất một trường"
	errIDTooLong       formError = "Mã định danh quá dài"
)

type fieldPair struct {
	Name  string
	Value string
}

// parseFieldPairs pairs field_name and field_value entries by position.
// Rows with an empty name are skipped, as is the reserved "id" field. A
// repeated name keeps its last value.
func parseFieldPairs(form url.Values) ([]fieldPair, error) {
	names := form[formFieldName]
	values := form[formFieldValue]
	if len(names) != len(values) {
		return nil, errFieldMismatch
	}
	if len(names) > maxFields {
		return nil, errTooManyFields
	}

	seen := make(map[string]int, len(names))
	pairs := make([]fieldPair, 0, len(names))
	for i := range names {
		name := sanitizeInput(names[i])
		value := sanitizeInput(values[i])
		if name == "" || name == core.FieldID {
			continue
		}
		if utf8.RuneCountInString(name) > maxFieldNameLen || utf8.RuneCountInString(value) > maxFieldValueLen {
			return nil, errFieldTooLong
		}
		if j, ok := seen[name]; ok {
			pairs[j].Value = value
			continue
		}
		seen[name] = len(pairs)
		pairs = append(pairs, fieldPair{Name: name, Value: value})
	}
	return pairs, nil
}

func parseCategory(v string) (core.Category, error) {
	c, err := core.ParseCategory(v)
	if err != nil {
		return "", errUnknownCategory
	}
	return c, nil
}

// parseNewRecord reads a data entry form. An empty id is left for the
// store to generate.
func parseNewRecord(form url.Values) (core.Category, core.Record, error) {
	c, err := parseCategory(form.Get(formCategory))
	if err != nil {
		return "", core.Record{}, err
	}
	id := sanitizeInput(form.Get(formID))
	if utf8.RuneCountInString(id) > maxIDLen {
		return "", core.Record{}, errIDTooLong
	}

	pairs, err := parseFieldPairs(form)
	if err != nil {
		return "", core.Record{}, err
	}
	if len(pairs) == 0 {
		return "", core.Record{}, errNoFields
	}

	fields := make(map[string]any, len(pairs))
	for _, p := range pairs {
		fields[p.Name] = p.Value
	}
	return c, core.NewRecord(id, fields), nil
}

// parsePatch builds the patch for an edit form against the current record.
// Values equal to the current rendering are left out so their stored
// JSON type survives the edit. A field marked for clearing is not set.
func parsePatch(current core.Record, form url.Values) (core.Patch, error) {
	pairs, err := parseFieldPairs(form)
	if err != nil {
		return core.Patch{}, err
	}

	clear := make(map[string]bool)
	var p core.Patch
	for _, name := range form[formClear] {
		name = sanitizeInput(name)
		if name == "" || name == core.FieldID || clear[name] {
			continue
		}
		clear[name] = true
		p.Clear = append(p.Clear, name)
	}

	for _, pair := range pairs {
		if clear[pair.Name] {
			continue
		}
		if _, ok := current.Field(pair.Name); ok && sanitizeInput(current.FieldString(pair.Name)) == pair.Value {
			continue
		}
		if p.Set == nil {
			p.Set = make(map[string]any)
		}
		p.Set[pair.Name] = pair.Value
	}
	return p, nil
}
