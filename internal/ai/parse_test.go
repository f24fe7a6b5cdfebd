package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealingabout/menu-pipeline/internal/model"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "raw", in: ` {"items": []} `, want: `{"items": []}`},
		{name: "json fence", in: "Here you go:\n```json\n{\"items\": []}\n```\nEnjoy", want: `{"items": []}`},
		{name: "bare fence", in: "```\n{\"items\": [1]}\n```", want: `{"items": [1]}`},
		{name: "first fence wins", in: "```json\n{\"a\":1}\n```\n```json\n{\"b\":2}\n```", want: `{"a":1}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestParseItems(t *testing.T) {
	t.Parallel()

	text := "```json\n" + `{"items": [
		{"name": "Falafel Plate", "description": "chickpeas", "labels": [
			{"type": "vegan", "confidence": "confirmed"},
			{"type": "keto", "confidence": "confirmed"}
		], "modifications": ["no pita"]},
		{"name": "  ", "labels": []},
		{"name": "Fries", "labels": [{"type": "gluten-free", "confidence": "uncertain", "askServer": "Shared fryer?"}]},
		{"name": "Burger", "labels": []}
	]}` + "\n```"

	items, err := ParseItems(text)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "Falafel Plate", items[0].Name)
	require.Len(t, items[0].Labels, 1)
	assert.Equal(t, model.LabelVegan, items[0].Labels[0].Type)
	assert.Equal(t, []string{"no pita"}, items[0].Modifications)

	require.NotNil(t, items[1].Labels[0].AskServer)
	assert.Equal(t, "Shared fryer?", *items[1].Labels[0].AskServer)

	assert.Empty(t, items[2].Labels)
}

func TestParseItems_EmptyItems(t *testing.T) {
	t.Parallel()

	items, err := ParseItems(`{"items": []}`)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseItems_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		malformed bool
	}{
		{name: "prose", in: "I could not find a menu in this text.", malformed: true},
		{name: "truncated", in: `{"items": [{"name": "Soup"`, malformed: true},
		{name: "missing items", in: `{"dishes": []}`, malformed: true},
		{name: "items not an array", in: `{"items": "none"}`, malformed: true},
		{name: "empty", in: "  \n", malformed: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseItems(tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.malformed, IsMalformed(err))
		})
	}
}
