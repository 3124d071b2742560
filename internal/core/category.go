package core

import (
	"errors"
	"strings"
)

const (
	Direction Category = "direction"
	Element   Category = "element"
	Year      Category = "year"
	Zodiac    Category = "zodiac"
	Color     Category = "color"
	Number    Category = "number"
	Trigram   Category = "trigram"
)

// Category is the top-level key of the store. The set is closed.
type Category string

var ErrUnknownCategory = errors.New("unknown category")

var categories = []Category{Direction, Element, Year, Zodiac, Color, Number, Trigram}

var categoryLabels = map[Category]string{
	Direction: "Hướng",
	Element:   "Ngũ hành",
	Year:      "Năm",
	Zodiac:    "Con giáp",
	Color:     "Màu sắc",
	Number:    "Con số",
	Trigram:   "Quẻ",
}

// Categories returns every category in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// ParseCategory maps a raw name to a Category, ignoring case and surrounding space.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", ErrUnknownCategory
	}
	return c, nil
}

// IsValid reports whether c belongs to the enumeration.
func (c Category) IsValid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the human readable name shown in the UI.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// String implements fmt.Stringer
func (c Category) String() string {
	return string(c)
}
