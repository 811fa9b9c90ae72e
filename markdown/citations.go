package markdown

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// PermalinkResolver maps a forum post ID to its public URL. The boolean
// is false when the ID cannot be resolved; the citation is then left as
// literal text.
type PermalinkResolver interface {
	ResolvePermalink(postID uint) (string, bool)
}

// CitationStyle selects how resolved citations are rendered.
type CitationStyle string

const (
	CitationStyleSuperscript CitationStyle = "superscript"
	CitationStyleInline      CitationStyle = "inline"
)

// CitationOptions adjusts citation rendering.
type CitationOptions struct {
	Style CitationStyle
	// WPResolver resolves wp_-prefixed IDs (host CMS pages rather than
	// forum posts). Nil leaves wp_ markers as literal text.
	WPResolver PermalinkResolver
}

var (
	// Malformed spellings the AI emits: single brackets, stray spaces,
	// missing hash. All are normalized to the canonical [[#id]] form.
	reCitationLoose = regexp.MustCompile(`\[{1,2}\s*#?\s*((?:wp_)?\d+(?:\s*,\s*#?\s*(?:wp_)?\d+)*)\s*\]{1,2}`)
	reCitationID    = regexp.MustCompile(`^(wp_)?(\d+)$`)
	canonical       = regexp.MustCompile(`\[\[#((?:wp_)?\d+)\]\]`)
)

// NormalizeCitations rewrites every recognizable citation marker into the
// canonical [[#id]] form and splits grouped citations ("[[#1, #2]]")
// into individual markers. Text without markers passes through unchanged.
func NormalizeCitations(text string) string {
	return reCitationLoose.ReplaceAllStringFunc(text, func(m string) string {
		group := reCitationLoose.FindStringSubmatch(m)[1]
		parts := strings.Split(group, ",")
		var out strings.Builder
		for _, p := range parts {
			id := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p), "#"))
			id = strings.ReplaceAll(id, " ", "")
			if !reCitationID.MatchString(id) {
				// Not actually a citation; echo the original marker back.
				return m
			}
			out.WriteString("[[#" + id + "]]")
		}
		return out.String()
	})
}

// ConvertCitations normalizes citation markers and replaces each
// resolvable one with an anchor to the cited post. Unresolvable IDs stay
// as literal marker text; no error is ever raised.
func ConvertCitations(text string, resolver PermalinkResolver, opts CitationOptions) string {
	if resolver == nil || strings.TrimSpace(text) == "" {
		return text
	}
	if opts.Style == "" {
		opts.Style = CitationStyleSuperscript
	}
	text = NormalizeCitations(text)

	return canonical.ReplaceAllStringFunc(text, func(m string) string {
		raw := canonical.FindStringSubmatch(m)[1]
		sub := reCitationID.FindStringSubmatch(raw)
		if sub == nil {
			return m
		}
		isWP := sub[1] == "wp_"
		var id uint
		fmt.Sscanf(sub[2], "%d", &id)

		var url string
		var ok bool
		if isWP {
			if opts.WPResolver == nil {
				return m
			}
			url, ok = opts.WPResolver.ResolvePermalink(id)
		} else {
			url, ok = resolver.ResolvePermalink(id)
		}
		if !ok {
			return m
		}

		label := fmt.Sprintf("#%d", id)
		anchor := fmt.Sprintf(`<a href="%s" class="ai-citation" target="_blank" rel="noopener">%s</a>`,
			html.EscapeString(url), label)
		if opts.Style == CitationStyleSuperscript {
			return "<sup>" + anchor + "</sup>"
		}
		return anchor
	})
}
