package model

import (
	"errors"
	"fmt"
	"time"
)

// AnalysisStatus is the lifecycle state of a restaurant record. Each stage
// selects its input by status.
type AnalysisStatus string

const (
	StatusPending    AnalysisStatus = "pending"
	StatusExtracting AnalysisStatus = "extracting"
	StatusExtracted  AnalysisStatus = "extracted"
	StatusAnalyzing  AnalysisStatus = "analyzing"
	StatusAnalyzed   AnalysisStatus = "analyzed"
	StatusFailed     AnalysisStatus = "failed"
)

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []AnalysisStatus {
	return []AnalysisStatus{
		StatusPending,
		StatusExtracting,
		StatusExtracted,
		StatusAnalyzing,
		StatusAnalyzed,
		StatusFailed,
	}
}

// ErrInvalidTransition is returned when a status move is not in the
// transition table.
var ErrInvalidTransition = errors.New("model: invalid status transition")

// transitions lists the allowed moves. analyzed → extracted and
// failed → pending exist only for operator requeues.
var transitions = map[AnalysisStatus][]AnalysisStatus{
	StatusPending:    {StatusExtracting, StatusFailed},
	StatusExtracting: {StatusExtracted, StatusFailed},
	StatusExtracted:  {StatusAnalyzing, StatusFailed},
	StatusAnalyzing:  {StatusAnalyzed, StatusFailed},
	StatusAnalyzed:   {StatusExtracted},
	StatusFailed:     {StatusPending},
}

// Valid reports whether s is a known status.
func (s AnalysisStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether s may move to next.
func (s AnalysisStatus) CanTransitionTo(next AnalysisStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates a move and returns ErrInvalidTransition (wrapped with
// both states) when it is not allowed.
func Transition(from, to AnalysisStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// MenuType classifies the located menu resource.
type MenuType string

const (
	MenuTypeHTML MenuType = "html"
	MenuTypePDF  MenuType = "pdf"
	MenuTypeNone MenuType = "none"
)

// Restaurant is the central record, keyed by its external place identifier.
type Restaurant struct {
	ID                   string         `json:"id"`
	PlaceID              string         `json:"place_id"`
	Slug                 string         `json:"slug"`
	Name                 string         `json:"name"`
	Address              string         `json:"address"`
	Neighborhood         string         `json:"neighborhood"`
	Lat                  float64        `json:"lat"`
	Lng                  float64        `json:"lng"`
	Phone                *string        `json:"phone,omitempty"`
	Website              *string        `json:"website,omitempty"`
	Summary              *string        `json:"summary,omitempty"`
	PhotoURL             *string        `json:"photo_url,omitempty"`
	Rating               *float64       `json:"rating,omitempty"`
	ReviewCount          *int           `json:"review_count,omitempty"`
	PriceLevel           *int           `json:"price_level,omitempty"`
	ServesVegetarianFood *bool          `json:"serves_vegetarian_food,omitempty"`
	MenuURL              *string        `json:"menu_url,omitempty"`
	MenuType             *MenuType      `json:"menu_type,omitempty"`
	AnalysisStatus       AnalysisStatus `json:"analysis_status"`
	AnalysisError        *string        `json:"analysis_error,omitempty"`
	LastAnalyzedAt       *time.Time     `json:"last_analyzed_at,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// HasWebsite reports whether a non-empty website is on file.
func (r Restaurant) HasWebsite() bool {
	return r.Website != nil && *r.Website != ""
}

// HasMenuURL reports whether a non-empty menu URL is on file.
func (r Restaurant) HasMenuURL() bool {
	return r.MenuURL != nil && *r.MenuURL != ""
}

// AnalysisJob pairs an extracted restaurant with its raw menu text.
type AnalysisJob struct {
	Restaurant Restaurant
	RawText    string
}

// StrPtr returns a pointer to s, or nil when s is empty.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
