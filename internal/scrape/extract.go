package scrape

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// noiseSelector matches elements that never hold menu text.
const noiseSelector = "script, style, nav, footer, header"

// containerMinChars is the trimmed text length a content container must
// exceed before it is preferred over the whole body.
const containerMinChars = 100

// contentSelectors are tried in order; the first match with enough text wins.
var contentSelectors = []string{
	"main",
	"article",
	".menu",
	"#menu",
	`[class*="menu"]`,
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
)

// ExtractMenuText parses an HTML document and returns its title and the
// cleaned text of the most likely menu container.
func ExtractMenuText(body []byte) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", eris.Wrap(err, "scrape: parse html")
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find(noiseSelector).Remove()

	for _, sel := range contentSelectors {
		candidate := strings.TrimSpace(doc.Find(sel).Text())
		if TextLen(candidate) > containerMinChars {
			text = candidate
			break
		}
	}
	if text == "" {
		text = doc.Find("body").Text()
	}

	return title, CleanText(text), nil
}

// CleanText normalizes whitespace line by line, drops lines shorter than
// three characters and collapses runs of blank lines.
func CleanText(s string) string {
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
		if TextLen(line) >= 3 {
			kept = append(kept, line)
		}
	}
	return blankRunRe.ReplaceAllString(strings.Join(kept, "\n"), "\n\n")
}
