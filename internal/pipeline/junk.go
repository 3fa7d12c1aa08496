package pipeline

import (
	"regexp"
	"strings"
)

// JunkKind names one boilerplate signature. The set is a closed enum;
// each kind has exactly one matcher so the drop policy is auditable in
// isolation.
type JunkKind string

const (
	JunkTableOfContents JunkKind = "table_of_contents"
	JunkBreadcrumb      JunkKind = "breadcrumb"
	JunkLinkStub        JunkKind = "link_stub"
	JunkSeparator       JunkKind = "separator"
)

// AllJunkKinds is the default enabled set.
var AllJunkKinds = []JunkKind{
	JunkTableOfContents,
	JunkBreadcrumb,
	JunkLinkStub,
	JunkSeparator,
}

// junkMatchers maps each kind to its matcher. Matching is structural over
// the full content, never substring-anywhere, so prose that merely
// mentions "table of contents" is not a false positive.
var junkMatchers = map[JunkKind]func(string) bool{
	JunkTableOfContents: matchTableOfContents,
	JunkBreadcrumb:      matchBreadcrumb,
	JunkLinkStub:        matchLinkStub,
	JunkSeparator:       matchSeparator,
}

// MatchJunk reports the first enabled kind whose matcher accepts the
// full content, or "" when none does.
func MatchJunk(content string, kinds []JunkKind) JunkKind {
	for _, kind := range kinds {
		m := junkMatchers[kind]
		if m != nil && m(content) {
			return kind
		}
	}
	return ""
}

var tocMarkers = map[string]bool{
	"table of contents":   true,
	"[table of contents]": true,
	"contents":            true,
	"toc":                 true,
	"[toc]":               true,
}

// matchTableOfContents accepts content that is only a TOC marker,
// optionally as a markdown heading.
func matchTableOfContents(content string) bool {
	s := strings.ToLower(strings.TrimSpace(content))
	s = strings.TrimLeft(s, "#")
	s = strings.TrimSpace(s)
	return tocMarkers[s]
}

// matchBreadcrumb accepts a single navigation line of short segments
// joined by > or » separators.
func matchBreadcrumb(content string) bool {
	s := strings.TrimSpace(content)
	if s == "" || strings.ContainsAny(s, "\n") {
		return false
	}
	sep := ">"
	if strings.Contains(s, "»") {
		sep = "»"
	}
	parts := strings.Split(s, sep)
	if len(parts) < 3 {
		return false
	}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || len(p) > 40 {
			return false
		}
		// Sentence punctuation means prose, not navigation.
		if strings.ContainsAny(p, ".!?,;") {
			return false
		}
	}
	return true
}

var (
	markdownLinkLine = regexp.MustCompile(`^\s*(?:[-*]\s*)?\[[^\]]+\]\([^)]+\)\s*$`)
	bareURLLine      = regexp.MustCompile(`^\s*https?://\S+\s*$`)
)

// matchLinkStub accepts content whose every non-blank line is a markdown
// link or a bare URL.
func matchLinkStub(content string) bool {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	seen := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !markdownLinkLine.MatchString(line) && !bareURLLine.MatchString(line) {
			return false
		}
		seen = true
	}
	return seen
}

var separatorOnly = regexp.MustCompile(`^[\s\-=_*~•·]+$`)

// matchSeparator accepts content made only of separator characters, with
// at least three of them.
func matchSeparator(content string) bool {
	s := strings.TrimSpace(content)
	if s == "" || !separatorOnly.MatchString(s) {
		return false
	}
	count := 0
	for _, r := range s {
		switch r {
		case '-', '=', '_', '*', '~', '•', '·':
			count++
		}
	}
	return count >= 3
}
