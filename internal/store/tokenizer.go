package store

import (
	"strings"
	"unicode"
)

// Tokenize lowercases and splits text into terms for lexical indexing.
// Identifiers in code chunks are additionally split on camelCase and
// snake_case boundaries so a query for "audit" matches "auditTrail" and
// "audit_log".
func Tokenize(text string, cfg SparseConfig) []string {
	stop := buildStopWordMap(cfg.StopWords)
	minLen := cfg.MinTokenLength
	if minLen <= 0 {
		minLen = 2
	}

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		for _, part := range splitIdentifier(f) {
			part = strings.ToLower(part)
			if len(part) < minLen {
				continue
			}
			if stop[part] {
				continue
			}
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// splitIdentifier breaks a raw token on snake_case and camelCase
// boundaries. The original compound form is kept alongside its parts so
// exact-identifier queries still match.
func splitIdentifier(token string) []string {
	parts := strings.Split(token, "_")
	out := make([]string, 0, len(parts)+1)
	compound := len(parts) > 1
	for _, p := range parts {
		if p == "" {
			continue
		}
		camel := splitCamelCase(p)
		if len(camel) > 1 {
			compound = true
		}
		out = append(out, camel...)
	}
	if compound {
		out = append(out, token)
	}
	return out
}

// splitCamelCase splits on lower-to-upper transitions and acronym
// boundaries ("HTTPServer" -> "HTTP", "Server").
func splitCamelCase(s string) []string {
	runes := []rune(s)
	if len(runes) < 2 {
		return []string{s}
	}

	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := false
		switch {
		case unicode.IsLower(prev) && unicode.IsUpper(cur):
			boundary = true
		case unicode.IsUpper(prev) && unicode.IsUpper(cur) &&
			i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			boundary = true
		case unicode.IsDigit(prev) != unicode.IsDigit(cur):
			boundary = true
		}
		if boundary {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	parts = append(parts, string(runes[start:]))
	return parts
}

func buildStopWordMap(words []string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = true
	}
	return m
}
