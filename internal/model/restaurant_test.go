package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllStatuses(t *testing.T) {
	t.Parallel()

	statuses := AllStatuses()
	assert.Len(t, statuses, 6)
	for _, s := range statuses {
		assert.True(t, s.Valid(), "status %s should be valid", s)
	}
	assert.False(t, AnalysisStatus("queued").Valid())
}

func TestCanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to AnalysisStatus
		want     bool
	}{
		{StatusPending, StatusExtracting, true},
		{StatusPending, StatusFailed, true},
		{StatusExtracting, StatusExtracted, true},
		{StatusExtracting, StatusFailed, true},
		{StatusExtracted, StatusAnalyzing, true},
		{StatusExtracted, StatusFailed, true},
		{StatusAnalyzing, StatusAnalyzed, true},
		{StatusAnalyzing, StatusFailed, true},
		{StatusAnalyzed, StatusExtracted, true},
		{StatusFailed, StatusPending, true},

		{StatusAnalyzed, StatusPending, false},
		{StatusAnalyzed, StatusFailed, false},
		{StatusAnalyzed, StatusAnalyzing, false},
		{StatusExtracted, StatusPending, false},
		{StatusPending, StatusAnalyzed, false},
		{StatusPending, StatusPending, false},
		{StatusExtracting, StatusAnalyzing, false},
		{StatusFailed, StatusAnalyzed, false},
		{AnalysisStatus("bogus"), StatusPending, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTransition(t *testing.T) {
	t.Parallel()

	require.NoError(t, Transition(StatusPending, StatusExtracting))

	err := Transition(StatusAnalyzed, StatusPending)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "analyzed -> pending")
}

func TestRestaurantHelpers(t *testing.T) {
	t.Parallel()

	var r Restaurant
	assert.False(t, r.HasWebsite())
	assert.False(t, r.HasMenuURL())

	r.Website = StrPtr("")
	assert.False(t, r.HasWebsite())

	r.Website = StrPtr("https://bigbowl.com")
	r.MenuURL = StrPtr("https://bigbowl.com/menu.pdf")
	assert.True(t, r.HasWebsite())
	assert.True(t, r.HasMenuURL())
}

func TestStrPtr(t *testing.T) {
	t.Parallel()
	assert.Nil(t, StrPtr(""))
	require.NotNil(t, StrPtr("x"))
	assert.Equal(t, "x", *StrPtr("x"))
}
