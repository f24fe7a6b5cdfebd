// Package slug builds URL-safe restaurant slugs and allocates them uniquely.
package slug

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// toSlug lowercases s, folds diacritics to ASCII and collapses every run of
// other characters into a single hyphen.
func toSlug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	out := nonAlnum.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(out, "-")
}

// Slugify joins the name and neighborhood slugs: ("Big Bowl", "West Town")
// gives "big-bowl-west-town".
func Slugify(name, neighborhood string) string {
	n := toSlug(name)
	h := toSlug(neighborhood)
	switch {
	case n == "":
		return h
	case h == "":
		return n
	}
	return n + "-" + h
}

// Unique returns base if it is not taken, else base-N for the smallest N >= 2
// that is free.
func Unique(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !taken(candidate) {
			return candidate
		}
	}
}

// GenerateUnique slugifies name+neighborhood and suffixes it until it is not
// in existing.
func GenerateUnique(name, neighborhood string, existing map[string]struct{}) string {
	return Unique(Slugify(name, neighborhood), func(s string) bool {
		_, ok := existing[s]
		return ok
	})
}

// Allocator owns the set of slugs in use for one discovery run: everything
// already stored plus every slug handed out during the run.
type Allocator struct {
	used    map[string]struct{}
	byPlace map[string]string
}

// NewAllocator seeds an allocator from the stored place_id → slug map.
func NewAllocator(existing map[string]string) *Allocator {
	a := &Allocator{
		used:    make(map[string]struct{}, len(existing)),
		byPlace: make(map[string]string, len(existing)),
	}
	for placeID, s := range existing {
		a.used[s] = struct{}{}
		a.byPlace[placeID] = s
	}
	return a
}

// Assign returns the existing slug for placeID, or allocates and reserves a
// new unique one. A reserved slug is never handed out twice.
func (a *Allocator) Assign(placeID, name, neighborhood string) string {
	if s, ok := a.byPlace[placeID]; ok {
		return s
	}
	s := GenerateUnique(name, neighborhood, a.used)
	a.used[s] = struct{}{}
	a.byPlace[placeID] = s
	return s
}

// Len returns how many slugs are reserved.
func (a *Allocator) Len() int {
	return len(a.used)
}
