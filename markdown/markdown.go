// Package markdown renders AI-generated markdown into HTML. Two
// independent renderers are selected by mode: the frontend renderer
// protects code, links and emphasis behind opaque placeholders, escapes
// everything else line by line while tracking open list/blockquote state,
// then restores the placeholders; the admin renderer is a plain ordered
// sequence of regex substitutions followed by an allow-list sanitization
// pass. Both are stateless string transforms; malformed input is echoed
// back untouched rather than raising an error.
package markdown

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Mode selects which renderer ToHTML uses.
type Mode string

const (
	ModeFrontend Mode = "frontend"
	ModeAdmin    Mode = "admin"
)

// Options adjusts rendering details.
type Options struct {
	// LinkTarget is applied to generated anchors ("_blank" by default).
	LinkTarget string
}

var (
	reFencedCode  = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\n?(.*?)```")
	reInlineCode  = regexp.MustCompile("`([^`\n]+)`")
	reMDLink      = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`)
	reBold        = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	reItalic      = regexp.MustCompile(`\*([^*\n]+)\*`)
	reBareURL     = regexp.MustCompile(`(^|[\s(])((?:https?|ftp)://[^\s<>"')]+)`)
	reUnorderedLi = regexp.MustCompile(`^\s{0,3}[-*+]\s+(.*)$`)
	reOrderedLi   = regexp.MustCompile(`^\s{0,3}\d+[.)]\s+(.*)$`)
	reBlockquote  = regexp.MustCompile(`^\s{0,3}>\s?(.*)$`)

	// Markup this package itself emits. Input that already carries it has
	// been rendered once; running the renderer again must be a no-op.
	reRendered = regexp.MustCompile(`(?i)<(br|p|pre|code|strong|em|ul|ol|li|blockquote|a)[\s/>]`)

	// Entities the escaping pass emits. Tag-free output (plain text that
	// only needed escaping) is recognized by these instead.
	reEscaped = regexp.MustCompile(`&(?:lt|gt|amp|#34|#39);`)
)

// ToHTML converts markdown text to HTML using the renderer selected by
// mode. Unknown modes fall back to the admin renderer.
func ToHTML(text string, mode Mode, opts Options) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if opts.LinkTarget == "" {
		opts.LinkTarget = "_blank"
	}
	if mode == ModeFrontend {
		return frontendToHTML(text, opts)
	}
	return adminToHTML(text, opts)
}

// frontendToHTML is the placeholder-based renderer used for chatbot
// replies shown on the forum frontend.
func frontendToHTML(text string, opts Options) string {
	// Single-escape invariant: output of a previous run passes through
	// unchanged instead of having its emitted tags or entities escaped
	// again.
	if reRendered.MatchString(text) || reEscaped.MatchString(text) {
		return text
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")

	var stash []string
	put := func(rendered string) string {
		stash = append(stash, rendered)
		return fmt.Sprintf("\x00MD%d\x00", len(stash)-1)
	}

	// Order matters: fenced code first so nothing inside it is touched.
	text = reFencedCode.ReplaceAllStringFunc(text, func(m string) string {
		body := reFencedCode.FindStringSubmatch(m)[1]
		return put("<pre><code>" + html.EscapeString(strings.TrimRight(body, "\n")) + "</code></pre>")
	})
	text = reInlineCode.ReplaceAllStringFunc(text, func(m string) string {
		body := reInlineCode.FindStringSubmatch(m)[1]
		return put("<code>" + html.EscapeString(body) + "</code>")
	})
	text = reMDLink.ReplaceAllStringFunc(text, func(m string) string {
		sub := reMDLink.FindStringSubmatch(m)
		return put(fmt.Sprintf(`<a href="%s" target="%s" rel="noopener">%s</a>`,
			html.EscapeString(sub[2]), opts.LinkTarget, html.EscapeString(sub[1])))
	})
	text = reBold.ReplaceAllStringFunc(text, func(m string) string {
		body := reBold.FindStringSubmatch(m)[1]
		return put("<strong>" + html.EscapeString(body) + "</strong>")
	})
	text = reItalic.ReplaceAllStringFunc(text, func(m string) string {
		body := reItalic.FindStringSubmatch(m)[1]
		return put("<em>" + html.EscapeString(body) + "</em>")
	})
	text = reBareURL.ReplaceAllStringFunc(text, func(m string) string {
		sub := reBareURL.FindStringSubmatch(m)
		return sub[1] + put(fmt.Sprintf(`<a href="%s" target="%s" rel="noopener">%s</a>`,
			html.EscapeString(sub[2]), opts.LinkTarget, html.EscapeString(sub[2])))
	})

	text = renderBlocks(text)

	// Restore placeholders after escaping is done.
	for i, rendered := range stash {
		text = strings.Replace(text, fmt.Sprintf("\x00MD%d\x00", i), rendered, 1)
	}
	return text
}

type blockState int

const (
	blockNone blockState = iota
	blockInUL
	blockInOL
	blockInQuote
)

// renderBlocks escapes text line by line while tracking open list and
// blockquote state. Any open block is closed when a non-matching line or
// the end of input is reached; remaining newlines become <br>.
func renderBlocks(text string) string {
	var out strings.Builder
	state := blockNone

	closeBlock := func() {
		switch state {
		case blockInUL:
			out.WriteString("</ul>\n")
		case blockInOL:
			out.WriteString("</ol>\n")
		case blockInQuote:
			out.WriteString("</blockquote>\n")
		}
		state = blockNone
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		switch {
		case reUnorderedLi.MatchString(line):
			if state != blockInUL {
				closeBlock()
				out.WriteString("<ul>\n")
				state = blockInUL
			}
			out.WriteString("<li>" + escapeKeepingPlaceholders(reUnorderedLi.FindStringSubmatch(line)[1]) + "</li>\n")
		case reOrderedLi.MatchString(line):
			if state != blockInOL {
				closeBlock()
				out.WriteString("<ol>\n")
				state = blockInOL
			}
			out.WriteString("<li>" + escapeKeepingPlaceholders(reOrderedLi.FindStringSubmatch(line)[1]) + "</li>\n")
		case reBlockquote.MatchString(line):
			if state != blockInQuote {
				closeBlock()
				out.WriteString("<blockquote>\n")
				state = blockInQuote
			}
			out.WriteString(escapeKeepingPlaceholders(reBlockquote.FindStringSubmatch(line)[1]) + "\n")
		default:
			closeBlock()
			out.WriteString(escapeKeepingPlaceholders(line))
			if i < len(lines)-1 {
				out.WriteString("<br>\n")
			}
		}
	}
	closeBlock()
	return strings.TrimSuffix(out.String(), "<br>\n")
}

// escapeKeepingPlaceholders HTML-escapes a line. The \x00-delimited
// placeholder tokens contain no escapable characters, so they ride
// through untouched.
func escapeKeepingPlaceholders(s string) string {
	return html.EscapeString(s)
}

var adminSubs = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\n?(.*?)```"), "<pre><code>$1</code></pre>"},
	{regexp.MustCompile("`([^`\n]+)`"), "<code>$1</code>"},
	{regexp.MustCompile(`(?m)^######\s+(.*)$`), "<h6>$1</h6>"},
	{regexp.MustCompile(`(?m)^#####\s+(.*)$`), "<h5>$1</h5>"},
	{regexp.MustCompile(`(?m)^####\s+(.*)$`), "<h4>$1</h4>"},
	{regexp.MustCompile(`(?m)^###\s+(.*)$`), "<h3>$1</h3>"},
	{regexp.MustCompile(`(?m)^##\s+(.*)$`), "<h2>$1</h2>"},
	{regexp.MustCompile(`(?m)^#\s+(.*)$`), "<h1>$1</h1>"},
	{regexp.MustCompile(`\*\*([^*\n]+)\*\*`), "<strong>$1</strong>"},
	{regexp.MustCompile(`\*([^*\n]+)\*`), "<em>$1</em>"},
	{regexp.MustCompile(`~~([^~\n]+)~~`), "<del>$1</del>"},
	{regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`), `<a href="$2">$1</a>`},
	{regexp.MustCompile(`(?m)^\s{0,3}[-*+]\s+(.*)$`), "<li>$1</li>"},
	{regexp.MustCompile(`(?m)^\s{0,3}\d+[.)]\s+(.*)$`), "<li>$1</li>"},
	{regexp.MustCompile(`(?m)^\s{0,3}>\s?(.*)$`), "<blockquote>$1</blockquote>"},
	{regexp.MustCompile(`(?m)^(---+|\*\*\*+)\s*$`), "<hr>"},
}

var adminPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "strong", "em", "del", "code", "pre",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "blockquote", "hr", "sup")
	p.AllowAttrs("href", "target", "rel").OnElements("a")
	p.AllowStandardURLs()
	return p
}()

// adminToHTML is the simple renderer used on admin screens: a fixed
// sequence of regex substitutions, then an HTML allow-list pass.
func adminToHTML(text string, opts Options) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, sub := range adminSubs {
		text = sub.re.ReplaceAllString(text, sub.repl)
	}
	text = strings.ReplaceAll(text, "\n", "<br>\n")
	return adminPolicy.Sanitize(text)
}
