package pipeline

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// IntentDetector decides whether a query signals programming intent.
// Detection is keyword-based and cheap; results are cached per query
// since the same query is checked once per code chunk.
type IntentDetector struct {
	cache *lru.Cache[string, bool]
}

const intentCacheSize = 512

// intentKeywords are single-word signals checked against the tokenized
// query.
var intentKeywords = map[string]bool{
	"code": true, "function": true, "script": true, "implement": true,
	"implementation": true, "example": true, "snippet": true,
	"api": true, "sdk": true, "debug": true, "syntax": true,
	"compile": true, "library": true, "class": true, "method": true,
	"regex": true, "query": true, "endpoint": true,
}

// intentLanguages are programming-language names treated as intent
// signals and matched against a chunk's CodeLanguage.
var intentLanguages = map[string]bool{
	"python": true, "javascript": true, "typescript": true, "java": true,
	"go": true, "golang": true, "rust": true, "ruby": true, "php": true,
	"kotlin": true, "swift": true, "scala": true, "sql": true,
	"bash": true, "shell": true, "powershell": true, "yaml": true,
	"terraform": true, "html": true, "css": true,
}

// intentPhrases are multi-word signals checked as substrings of the
// lowercased query.
var intentPhrases = []string{"how to", "how do i", "sample code", "source code"}

// NewIntentDetector builds a detector with an LRU result cache.
func NewIntentDetector() *IntentDetector {
	cache, _ := lru.New[string, bool](intentCacheSize)
	return &IntentDetector{cache: cache}
}

// HasProgrammingIntent reports whether the query signals programming
// intent. An empty query is permissive and reports true (no query means
// no basis to drop code).
func (d *IntentDetector) HasProgrammingIntent(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if v, ok := d.cache.Get(q); ok {
		return v
	}
	result := detectIntent(q)
	d.cache.Add(q, result)
	return result
}

func detectIntent(q string) bool {
	for _, phrase := range intentPhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	for _, word := range strings.FieldsFunc(q, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ',' || r == '.' ||
			r == '?' || r == '!' || r == ':' || r == ';' || r == '(' || r == ')'
	}) {
		if intentKeywords[word] || intentLanguages[word] {
			return true
		}
	}
	return false
}

// MatchesLanguage reports whether the query names the chunk's language.
func (d *IntentDetector) MatchesLanguage(query, codeLanguage string) bool {
	lang := strings.ToLower(strings.TrimSpace(codeLanguage))
	if lang == "" {
		return false
	}
	q := strings.ToLower(query)
	for _, word := range strings.Fields(q) {
		word = strings.Trim(word, ".,?!:;()")
		if word == lang {
			return true
		}
	}
	return false
}
