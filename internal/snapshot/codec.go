// Package snapshot converts a core.Store to and from its serialized form.
//
// The format is a JSON object keyed by category whose values are arrays of
// records, each record an object carrying an "id" plus free-form fields.
// The same document is persisted, exported and imported.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"fengshui/internal/core"
)

const (
	// ExportFileName is the default name offered for downloads.
	ExportFileName = "feng_shui_data.json"

	// StorageKey names the persisted snapshot entry.
	StorageKey = "fengShuiData"

	indent = "  "
)

var (
	ErrMalformed = errors.New("malformed snapshot")
	ErrMissingID = errors.New("snapshot record without id")
)

// DecodeResult carries the decoded store together with the category keys
// that were present in the input but are not part of the enumeration.
type DecodeResult struct {
	Store   core.Store
	Ignored []string
}

// Encode serializes s pretty-printed with two-space indentation. HTML
// characters are written literally.
func Encode(s core.Store) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encode store: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses data into a store. Missing categories become empty.
func Decode(data []byte) (core.Store, error) {
	res, err := DecodeDetailed(data)
	if err != nil {
		return core.Store{}, err
	}
	return res.Store, nil
}

// DecodeDetailed is Decode but also reports ignored category keys. Keys
// must match a category exactly; "Direction" is ignored, not merged.
func DecodeDetailed(data []byte) (DecodeResult, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return DecodeResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw == nil {
		return DecodeResult{}, fmt.Errorf("%w: top level is null", ErrMalformed)
	}

	out := make(map[core.Category][]core.Record, len(raw))
	var ignored []string
	for key, msg := range raw {
		c := core.Category(key)
		if !c.IsValid() {
			ignored = append(ignored, key)
			continue
		}
		var records []core.Record
		if err := json.Unmarshal(msg, &records); err != nil {
			if errors.Is(err, core.ErrMissingID) {
				return DecodeResult{}, fmt.Errorf("%w in category %q", ErrMissingID, key)
			}
			return DecodeResult{}, fmt.Errorf("%w: category %q: %v", ErrMalformed, key, err)
		}
		out[c] = records
	}
	sort.Strings(ignored)

	return DecodeResult{Store: core.NewStore(out), Ignored: ignored}, nil
}
