package pipeline

import (
	"strings"
	"unicode"
)

// nationalChains are skipped by Discover regardless of rating.
var nationalChains = []string{
	"Applebee's",
	"Arby's",
	"Buffalo Wild Wings",
	"Burger King",
	"Chick-fil-A",
	"Chili's",
	"Chipotle",
	"Corner Bakery",
	"Culver's",
	"Dairy Queen",
	"Denny's",
	"Domino's",
	"Dunkin'",
	"Five Guys",
	"IHOP",
	"Jersey Mike's",
	"Jimmy John's",
	"KFC",
	"McDonald's",
	"Noodles & Company",
	"Olive Garden",
	"Panda Express",
	"Panera Bread",
	"Papa John's",
	"Pizza Hut",
	"Popeyes",
	"Portillo's",
	"Potbelly",
	"Qdoba",
	"Raising Cane's",
	"Shake Shack",
	"Starbucks",
	"Subway",
	"Sweetgreen",
	"Taco Bell",
	"Wendy's",
	"Wingstop",
}

// chainFilter matches restaurant names against chain names. A name matches
// when its normalized form starts with a chain's, so "McDonald's - Loop"
// is caught by "McDonald's".
type chainFilter struct {
	prefixes []string
}

func newChainFilter(extra []string) *chainFilter {
	f := &chainFilter{}
	for _, list := range [][]string{nationalChains, extra} {
		for _, name := range list {
			if n := normalizeName(name); n != "" {
				f.prefixes = append(f.prefixes, n)
			}
		}
	}
	return f
}

func (f *chainFilter) isChain(name string) bool {
	n := normalizeName(name)
	if n == "" {
		return false
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(n, p) {
			return true
		}
	}
	return false
}

// normalizeName lowercases and keeps only letters and digits.
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
