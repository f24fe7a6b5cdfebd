package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mealingabout/menu-pipeline/internal/model"
)

// ErrEmptyResponse is returned when a provider answers with no text at all.
var ErrEmptyResponse = eris.New("ai: empty response")

// MalformedResponseError means the model output could not be parsed as the
// items JSON object.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("ai: malformed response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is (or wraps) a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

var fencedBlockRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// ExtractJSON returns the content of the first fenced code block in text,
// or text itself when there is none.
func ExtractJSON(text string) string {
	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

type itemsEnvelope struct {
	Items *[]model.AnalyzedItem `json:"items"`
}

// ParseItems decodes a model answer into analyzed items. Items without a
// name are dropped, as are labels of unknown types. A missing items array
// is malformed; an empty one is not.
func ParseItems(text string) ([]model.AnalyzedItem, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	var env itemsEnvelope
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &env); err != nil {
		return nil, &MalformedResponseError{Err: err}
	}
	if env.Items == nil {
		return nil, &MalformedResponseError{Err: eris.New("missing items array")}
	}

	items := make([]model.AnalyzedItem, 0, len(*env.Items))
	for _, it := range *env.Items {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			continue
		}
		labels := it.Labels[:0]
		for _, l := range it.Labels {
			switch l.Type {
			case model.LabelVegan, model.LabelVegetarian, model.LabelGlutenFree:
				labels = append(labels, l)
			}
		}
		it.Labels = labels
		items = append(items, it)
	}
	return items, nil
}
