package markdown

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// stubResolver resolves the IDs it knows and fails the rest.
type stubResolver struct {
	known map[uint]string
}

func (s *stubResolver) ResolvePermalink(postID uint) (string, bool) {
	url, ok := s.known[postID]
	return url, ok
}

func TestNormalizeCitations(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"canonical form is untouched", "See [[#12]].", "See [[#12]]."},
		{"single brackets are doubled", "See [#12].", "See [[#12]]."},
		{"missing hash is added", "See [[12]].", "See [[#12]]."},
		{"stray spaces are stripped", "See [[ # 12 ]].", "See [[#12]]."},
		{"groups split into individual markers", "See [[#1, #2, 3]].", "See [[#1]][[#2]][[#3]]."},
		{"wp ids are preserved", "See [wp_7].", "See [[#wp_7]]."},
		{"non-numeric bracketed text passes through", "[note] and [see also]", "[note] and [see also]"},
		{"no markers at all", "nothing here", "nothing here"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeCitations(tc.in))
		})
	}
}

func TestConvertCitations(t *testing.T) {
	resolver := &stubResolver{known: map[uint]string{
		12: "https://forum.example.com/topic/3/#post-12",
	}}

	t.Run("Resolvable citation becomes a superscript anchor", func(t *testing.T) {
		got := ConvertCitations("Answer.[[#12]]", resolver, CitationOptions{})
		assert.Equal(t,
			`Answer.<sup><a href="https://forum.example.com/topic/3/#post-12" class="ai-citation" target="_blank" rel="noopener">#12</a></sup>`,
			got)
	})

	t.Run("Inline style omits the sup wrapper", func(t *testing.T) {
		got := ConvertCitations("Answer [[#12]]", resolver, CitationOptions{Style: CitationStyleInline})
		assert.NotContains(t, got, "<sup>")
		assert.Contains(t, got, `>#12</a>`)
	})

	t.Run("Unresolvable citation stays literal", func(t *testing.T) {
		got := ConvertCitations("See [[#999]].", resolver, CitationOptions{})
		assert.Equal(t, "See [[#999]].", got)
	})

	t.Run("Loose spellings are normalized before resolving", func(t *testing.T) {
		got := ConvertCitations("See [# 12].", resolver, CitationOptions{})
		assert.Contains(t, got, `href="https://forum.example.com/topic/3/#post-12"`)
	})

	t.Run("Grouped citations resolve independently", func(t *testing.T) {
		got := ConvertCitations("Both say so.[[#12, #999]]", resolver, CitationOptions{})
		assert.Contains(t, got, `#post-12`)
		assert.Contains(t, got, "[[#999]]")
	})

	t.Run("wp ids need the wp resolver", func(t *testing.T) {
		got := ConvertCitations("Docs: [[wp_5]]", resolver, CitationOptions{})
		assert.Equal(t, "Docs: [[#wp_5]]", got)

		wp := &stubResolver{known: map[uint]string{5: "https://example.com/?page_id=5"}}
		got = ConvertCitations("Docs: [[wp_5]]", resolver, CitationOptions{WPResolver: wp})
		assert.Contains(t, got, `href="https://example.com/?page_id=5"`)
		assert.Contains(t, got, ">#5</a>")
	})

	t.Run("Nil resolver returns the text unchanged", func(t *testing.T) {
		input := "See [[#12]]."
		assert.Equal(t, input, ConvertCitations(input, nil, CitationOptions{}))
	})
}

func ExampleConvertCitations() {
	resolver := &stubResolver{known: map[uint]string{4: "https://forum.example.com/topic/1/#post-4"}}
	fmt.Println(ConvertCitations("Seen here.[[#4]]", resolver, CitationOptions{Style: CitationStyleInline}))
	// Output: Seen here.<a href="https://forum.example.com/topic/1/#post-4" class="ai-citation" target="_blank" rel="noopener">#4</a>
}
