package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStore() Store {
	return NewStore(map[Category][]Record{
		Direction: {NewRecord("1", map[string]any{"name": "North"})},
		Element:   {},
	})
}

func TestNewStoreHasEveryCategory(t *testing.T) {
	s := NewStore(nil)
	for _, c := range Categories() {
		assert.NotNil(t, s.Records(c), "category %s", c)
		assert.Equal(t, 0, s.Len(c))
	}
}

func TestAddAppends(t *testing.T) {
	s := sampleStore()
	out := s.Add(Direction, NewRecord("2", map[string]any{"name": "South"}))

	got := out.Records(Direction)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
	assert.Equal(t, "South", got[1].FieldString("name"))

	// receiver untouched
	assert.Equal(t, 1, s.Len(Direction))
}

func TestAddDoesNotCheckDuplicates(t *testing.T) {
	s := sampleStore().Add(Direction, NewRecord("1", map[string]any{"name": "Again"}))
	assert.Equal(t, 2, s.Len(Direction))
}

func TestEditMergesPatch(t *testing.T) {
	s := NewStore(map[Category][]Record{
		Direction: {
			NewRecord("1", map[string]any{"name": "North", "element": "Water"}),
			NewRecord("2", map[string]any{"name": "South"}),
		},
	})

	out, ok := s.Edit(Direction, "1", Patch{Set: map[string]any{"name": "North-East"}})
	require.True(t, ok)

	got := out.Records(Direction)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "North-East", got[0].FieldString("name"))
	assert.Equal(t, "Water", got[0].FieldString("element"))
	assert.Equal(t, "2", got[1].ID)

	assert.Equal(t, "North", s.Records(Direction)[0].FieldString("name"))
}

func TestEditScenario(t *testing.T) {
	out, ok := sampleStore().Edit(Direction, "1", Patch{Set: map[string]any{"name": "North-East"}})
	require.True(t, ok)
	assert.Equal(t, NewRecord("1", map[string]any{"name": "North-East"}), out.Records(Direction)[0])
}

func TestEditClearAndSetPrecedence(t *testing.T) {
	s := NewStore(map[Category][]Record{
		Color: {NewRecord("red", map[string]any{"hex": "#f00", "note": "fire", "luck": "high"})},
	})
	out, ok := s.Edit(Color, "red", Patch{
		Set:   map[string]any{"luck": "very high", "id": "nope"},
		Clear: []string{"note", "luck", "id"},
	})
	require.True(t, ok)

	r, found := out.Find(Color, "red")
	require.True(t, found)
	_, hasNote := r.Field("note")
	assert.False(t, hasNote)
	assert.Equal(t, "very high", r.FieldString("luck"))
	assert.Equal(t, "#f00", r.FieldString("hex"))
}

func TestEditOnlyFirstMatch(t *testing.T) {
	s := NewStore(map[Category][]Record{
		Number: {
			NewRecord("8", map[string]any{"v": "a"}),
			NewRecord("8", map[string]any{"v": "b"}),
		},
	})
	out, ok := s.Edit(Number, "8", Patch{Set: map[string]any{"v": "z"}})
	require.True(t, ok)
	got := out.Records(Number)
	assert.Equal(t, "z", got[0].FieldString("v"))
	assert.Equal(t, "b", got[1].FieldString("v"))
}

func TestEditMissingIsNoop(t *testing.T) {
	s := sampleStore()
	before, err := json.Marshal(s)
	require.NoError(t, err)

	out, ok := s.Edit(Direction, "nope", Patch{Set: map[string]any{"name": "x"}})
	assert.False(t, ok)

	after, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDelete(t *testing.T) {
	s := NewStore(map[Category][]Record{
		Direction: {
			NewRecord("1", nil),
			NewRecord("2", nil),
			NewRecord("1", nil),
		},
		Element: {NewRecord("1", nil)},
	})

	out, n := s.Delete(Direction, "1")
	assert.Equal(t, 2, n)
	got := out.Records(Direction)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, 1, out.Len(Element))
	assert.Equal(t, 3, s.Len(Direction))
}

func TestDeleteMissingIsNoop(t *testing.T) {
	s := sampleStore()
	out, n := s.Delete(Element, "99")
	assert.Equal(t, 0, n)
	assert.True(t, out.Equal(s))
}

func TestSearch(t *testing.T) {
	s := NewStore(map[Category][]Record{
		Direction: {
			NewRecord("n", map[string]any{"name": "North", "element": "Water"}),
			NewRecord("s", map[string]any{"name": "South", "element": "Fire"}),
		},
		Element: {NewRecord("water", map[string]any{"name": "Water"})},
	})

	hits := s.Search("water")
	require.Len(t, hits, 2)
	assert.Equal(t, Direction, hits[0].Category)
	assert.Equal(t, "n", hits[0].Record.ID)
	assert.Equal(t, Element, hits[1].Category)

	hits = s.Search("WATER", Element)
	require.Len(t, hits, 1)
	assert.Equal(t, "water", hits[0].Record.ID)

	assert.Len(t, s.Search(""), 3)
	assert.Empty(t, s.Search("metal"))
}

func TestEqual(t *testing.T) {
	a := sampleStore()
	b := sampleStore()
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(b.Add(Element, NewRecord("x", nil))))
	c, _ := b.Edit(Direction, "1", Patch{Set: map[string]any{"name": "x"}})
	assert.False(t, a.Equal(c))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Direction ")
	require.NoError(t, err)
	assert.Equal(t, Direction, c)

	_, err = ParseCategory("weather")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}
