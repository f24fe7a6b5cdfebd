package model

import "time"

// LabelType is a dietary label category.
type LabelType string

const (
	LabelVegan      LabelType = "vegan"
	LabelVegetarian LabelType = "vegetarian"
	LabelGlutenFree LabelType = "gluten-free"
)

// LabelConfidence is how sure the model was about a single label.
type LabelConfidence string

const (
	LabelConfirmed LabelConfidence = "confirmed"
	LabelUncertain LabelConfidence = "uncertain"
)

// Confidence is the derived confidence stored on a menu item.
type Confidence string

const (
	ConfidenceCertain   Confidence = "certain"
	ConfidenceUncertain Confidence = "uncertain"
)

// DietaryLabel is one label attached to an analyzed item by the AI.
type DietaryLabel struct {
	Type       LabelType       `json:"type"`
	Confidence LabelConfidence `json:"confidence"`
	AskServer  *string         `json:"askServer,omitempty"`
}

// AnalyzedItem is one menu item as returned by an AI provider.
type AnalyzedItem struct {
	Name          string         `json:"name"`
	Description   *string        `json:"description,omitempty"`
	Labels        []DietaryLabel `json:"labels"`
	Modifications []string       `json:"modifications,omitempty"`
}

// HasLabel reports whether any label of type lt is present.
func (a AnalyzedItem) HasLabel(lt LabelType) bool {
	for _, l := range a.Labels {
		if l.Type == lt {
			return true
		}
	}
	return false
}

// MenuItem is the stored per-item analysis result.
type MenuItem struct {
	ID            string     `json:"id"`
	RestaurantID  string     `json:"restaurant_id"`
	Name          string     `json:"name"`
	Description   *string    `json:"description,omitempty"`
	IsVegan       bool       `json:"is_vegan"`
	IsVegetarian  bool       `json:"is_vegetarian"`
	IsGlutenFree  bool       `json:"is_gluten_free"`
	Confidence    Confidence `json:"confidence"`
	Modifications []string   `json:"modifications,omitempty"`
	AskServer     *string    `json:"ask_server,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// MapItem converts an AI item into a stored row. Confidence is certain only
// when at least one label exists and every label is confirmed; an item with
// no labels is uncertain. AskServer is the first non-empty hint in label order.
func MapItem(restaurantID string, item AnalyzedItem) MenuItem {
	allConfirmed := len(item.Labels) > 0
	var askServer *string
	for _, l := range item.Labels {
		if l.Confidence != LabelConfirmed {
			allConfirmed = false
		}
		if askServer == nil && l.AskServer != nil && *l.AskServer != "" {
			hint := *l.AskServer
			askServer = &hint
		}
	}

	confidence := ConfidenceUncertain
	if allConfirmed {
		confidence = ConfidenceCertain
	}

	return MenuItem{
		RestaurantID:  restaurantID,
		Name:          item.Name,
		Description:   item.Description,
		IsVegan:       item.HasLabel(LabelVegan),
		IsVegetarian:  item.HasLabel(LabelVegetarian),
		IsGlutenFree:  item.HasLabel(LabelGlutenFree),
		Confidence:    confidence,
		Modifications: item.Modifications,
		AskServer:     askServer,
	}
}

// LabelCounts tallies analyzed items per dietary label.
type LabelCounts struct {
	Vegan      int
	Vegetarian int
	GlutenFree int
}

// CountLabels returns how many items carry each label type.
func CountLabels(items []AnalyzedItem) LabelCounts {
	var c LabelCounts
	for _, it := range items {
		if it.HasLabel(LabelVegan) {
			c.Vegan++
		}
		if it.HasLabel(LabelVegetarian) {
			c.Vegetarian++
		}
		if it.HasLabel(LabelGlutenFree) {
			c.GlutenFree++
		}
	}
	return c
}
