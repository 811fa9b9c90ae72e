package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTML_Frontend(t *testing.T) {
	t.Run("Inline markdown renders with escaped content", func(t *testing.T) {
		got := ToHTML("**bold** and `code`", ModeFrontend, Options{})
		assert.Equal(t, "<strong>bold</strong> and <code>code</code>", got)
	})

	t.Run("Rendering already-rendered output is a no-op", func(t *testing.T) {
		once := ToHTML("**bold** and `code`", ModeFrontend, Options{})
		twice := ToHTML(once, ModeFrontend, Options{})
		assert.Equal(t, once, twice)
	})

	t.Run("Plain text with HTML characters is escaped exactly once", func(t *testing.T) {
		got := ToHTML("5 < 6 & true", ModeFrontend, Options{})
		assert.Equal(t, "5 &lt; 6 &amp; true", got)
		assert.Equal(t, got, ToHTML(got, ModeFrontend, Options{}))
	})

	t.Run("Already-escaped tag-free output passes through untouched", func(t *testing.T) {
		rendered := "5 &lt; 6 &amp; true"
		assert.Equal(t, rendered, ToHTML(rendered, ModeFrontend, Options{}))
	})

	t.Run("Fenced code keeps its body escaped and untouched by other rules", func(t *testing.T) {
		got := ToHTML("```\n<script>alert(1)</script>\n```", ModeFrontend, Options{})
		assert.Equal(t, "<pre><code>&lt;script&gt;alert(1)&lt;/script&gt;</code></pre>", got)
	})

	t.Run("Markdown links get target and rel attributes", func(t *testing.T) {
		got := ToHTML("[site](https://example.com)", ModeFrontend, Options{})
		assert.Equal(t, `<a href="https://example.com" target="_blank" rel="noopener">site</a>`, got)
	})

	t.Run("Custom link target is honored", func(t *testing.T) {
		got := ToHTML("[site](https://example.com)", ModeFrontend, Options{LinkTarget: "_self"})
		assert.Contains(t, got, `target="_self"`)
	})

	t.Run("Bare URLs are auto-linked", func(t *testing.T) {
		got := ToHTML("see https://example.com now", ModeFrontend, Options{})
		assert.Equal(t, `see <a href="https://example.com" target="_blank" rel="noopener">https://example.com</a> now`, got)
	})

	t.Run("Unordered list lines open and close one list", func(t *testing.T) {
		got := ToHTML("intro\n- one\n- two\ndone", ModeFrontend, Options{})
		assert.Equal(t, "intro<br>\n<ul>\n<li>one</li>\n<li>two</li>\n</ul>\ndone", got)
	})

	t.Run("Ordered list lines become an ol", func(t *testing.T) {
		got := ToHTML("1. first\n2) second", ModeFrontend, Options{})
		assert.Equal(t, "<ol>\n<li>first</li>\n<li>second</li>\n</ol>\n", got)
	})

	t.Run("Consecutive blockquote lines share one blockquote", func(t *testing.T) {
		got := ToHTML("> quoted\n> more\nafter", ModeFrontend, Options{})
		assert.Equal(t, "<blockquote>\nquoted\nmore\n</blockquote>\nafter", got)
	})

	t.Run("Switching block kinds closes the previous block", func(t *testing.T) {
		got := ToHTML("- item\n> quote", ModeFrontend, Options{})
		assert.Equal(t, "<ul>\n<li>item</li>\n</ul>\n<blockquote>\nquote\n</blockquote>\n", got)
	})

	t.Run("Plain newlines become br tags", func(t *testing.T) {
		got := ToHTML("line one\r\nline two", ModeFrontend, Options{})
		assert.Equal(t, "line one<br>\nline two", got)
	})

	t.Run("Empty input renders to empty output", func(t *testing.T) {
		assert.Equal(t, "", ToHTML("   \n  ", ModeFrontend, Options{}))
	})
}

func TestToHTML_Admin(t *testing.T) {
	t.Run("Headings, emphasis and strikethrough render", func(t *testing.T) {
		got := ToHTML("# Title\n**bold** ~~gone~~", ModeAdmin, Options{})
		assert.Contains(t, got, "<h1>Title</h1>")
		assert.Contains(t, got, "<strong>bold</strong>")
		assert.Contains(t, got, "<del>gone</del>")
	})

	t.Run("Raw script tags are stripped by the sanitizer", func(t *testing.T) {
		got := ToHTML("hello <script>alert(1)</script> world", ModeAdmin, Options{})
		assert.NotContains(t, got, "<script")
		assert.Contains(t, got, "hello")
	})

	t.Run("Unsafe link schemes are removed", func(t *testing.T) {
		got := ToHTML("[click](javascript:alert(1))", ModeAdmin, Options{})
		assert.NotContains(t, got, "javascript:")
	})

	t.Run("Safe links survive sanitization", func(t *testing.T) {
		got := ToHTML("[docs](https://example.com/docs)", ModeAdmin, Options{})
		assert.Contains(t, got, `href="https://example.com/docs"`)
		assert.Contains(t, got, ">docs</a>")
	})

	t.Run("Horizontal rules and lists render", func(t *testing.T) {
		got := ToHTML("- a\n---\n1. b", ModeAdmin, Options{})
		assert.Contains(t, got, "<li>a</li>")
		assert.Contains(t, got, "<hr>")
		assert.Contains(t, got, "<li>b</li>")
	})

	t.Run("Unknown mode falls back to the admin renderer", func(t *testing.T) {
		got := ToHTML("**bold**", Mode("mystery"), Options{})
		assert.Contains(t, got, "<strong>bold</strong>")
	})
}
