package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasProgrammingIntent(t *testing.T) {
	d := NewIntentDetector()

	tests := []struct {
		query string
		want  bool
	}{
		{"Show me the Python authentication code", true},
		{"how to configure SSO", true},
		{"give me an example function", true},
		{"terraform module for S3 buckets", true},
		{"What are the approval rules?", false},
		{"data retention policy for customer records", false},
		{"", true}, // permissive default
		{"   ", true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, d.HasProgrammingIntent(tt.query))
		})
	}
}

func TestHasProgrammingIntent_Cached(t *testing.T) {
	d := NewIntentDetector()
	q := "implement audit logging"
	assert.True(t, d.HasProgrammingIntent(q))
	// Second call hits the cache and must agree.
	assert.True(t, d.HasProgrammingIntent(q))
}

func TestMatchesLanguage(t *testing.T) {
	d := NewIntentDetector()

	assert.True(t, d.MatchesLanguage("show me Python snippets", "python"))
	assert.True(t, d.MatchesLanguage("is this valid go?", "Go"))
	assert.False(t, d.MatchesLanguage("going forward we need a plan", "go"))
	assert.False(t, d.MatchesLanguage("anything", ""))
}
