package scrape

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMenuText_PrefersMain(t *testing.T) {
	t.Parallel()

	dishes := strings.Repeat("Roasted beet salad with goat cheese 12\n", 4)
	html := `<html><head><title>Bistro Nord</title><style>.x{color:red}</style></head>
<body>
<header>Reservations</header>
<nav>Home About Contact</nav>
<main>` + dishes + `<script>var tracking = true;</script></main>
<aside>Follow us on social media for daily specials</aside>
<footer>Copyright 2024</footer>
</body></html>`

	title, text, err := ExtractMenuText([]byte(html))
	require.NoError(t, err)
	assert.Equal(t, "Bistro Nord", title)
	assert.Contains(t, text, "Roasted beet salad with goat cheese 12")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "social media")
	assert.NotContains(t, text, "Reservations")
	assert.NotContains(t, text, "Copyright")
}

func TestExtractMenuText_SelectorOrder(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("m", 120)
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "menu class",
			html: `<body><div class="intro">Welcome</div><div class="menu">` + long + `</div></body>`,
			want: long,
		},
		{
			name: "menu id",
			html: `<body><p>Hours</p><section id="menu">` + long + `</section></body>`,
			want: long,
		},
		{
			name: "class containing menu",
			html: `<body><p>Hours</p><div class="food-menu-list">` + long + `</div></body>`,
			want: long,
		},
		{
			name: "article before menu class",
			html: `<body><article>` + strings.Repeat("a", 110) + `</article><div class="menu">` + long + `</div></body>`,
			want: strings.Repeat("a", 110),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, text, err := ExtractMenuText([]byte(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestExtractMenuText_ContainerNeedsMoreThan100Chars(t *testing.T) {
	t.Parallel()

	exact := strings.Repeat("x", 100)
	_, text, err := ExtractMenuText([]byte(`<body><main>` + exact + `</main><p>Open daily</p></body>`))
	require.NoError(t, err)
	// A 100-character main is not enough, so the whole body is used.
	assert.Contains(t, text, "Open daily")

	longer := strings.Repeat("x", 101)
	_, text, err = ExtractMenuText([]byte(`<body><main>` + longer + `</main><p>Open daily</p></body>`))
	require.NoError(t, err)
	assert.Equal(t, longer, text)
}

func TestExtractMenuText_Empty(t *testing.T) {
	t.Parallel()

	_, text, err := ExtractMenuText([]byte(`<html><body><script>x()</script></body></html>`))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "collapses whitespace",
			in:   "  Pad   Thai\t\t14  \n\nGreen  curry 15",
			want: "Pad Thai 14\nGreen curry 15",
		},
		{
			name: "drops short lines",
			in:   "Tofu\n$\n|\nab\nabc",
			want: "Tofu\nabc",
		},
		{
			name: "counts characters not bytes",
			in:   "açaí\néé",
			want: "açaí",
		},
		{
			name: "empty",
			in:   "\n \n\t",
			want: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestTextLen(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 4, TextLen("café"))
	assert.Equal(t, 0, TextLen(""))
}
