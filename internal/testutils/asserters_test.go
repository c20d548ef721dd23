package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingT captures Errorf calls so failing assertions can be inspected
type recordingT struct {
	messages []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.messages = append(r.messages, fmt.Sprintf(format, args...))
}

func TestTextAsserter_Defaults(t *testing.T) {
	opts := NewTextAsserter(t).Options()

	assert.True(t, opts.TrimSpace)
	assert.True(t, opts.IgnoreTrailingWhitespace)
	assert.False(t, opts.IgnoreEmptyLines)
	assert.False(t, opts.EnableColors)
}

func TestTextAsserter_Assert(t *testing.T) {
	tests := []struct {
		name     string
		opts     []TextOption
		actual   string
		expected string
		match    bool
	}{
		{"identical", nil, "a\nb\n", "a\nb\n", true},
		{"surrounding whitespace trimmed", nil, "\n  a\nb  \n\n", "  a\nb", true},
		{"trailing whitespace per line", nil, "a   \nb\t\n", "a\nb", true},
		{"changed line", nil, "a\nc", "a\nb", false},
		{"empty lines kept by default", nil, "a\n\nb", "a\nb", false},
		{"empty lines ignored on request", []TextOption{WithIgnoreEmptyLines(true)}, "a\n\nb", "a\nb", true},
		{"trailing whitespace significant on request", []TextOption{WithIgnoreTrailingWhitespace(false)}, "a \nb", "a\nb", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			ok := NewTextAsserter(rec, tt.opts...).Assert(tt.actual, tt.expected)

			assert.Equal(t, tt.match, ok)
			if tt.match {
				assert.Empty(t, rec.messages)
			} else {
				assert.Len(t, rec.messages, 1, "mismatch MUST be reported once")
			}
		})
	}
}

func TestTextAsserter_UnifiedDiff(t *testing.T) {
	diff := NewTextAsserter(t).Diff("Widget-1\nGadget-3\n", "Widget-1\nGadget-2\n")

	assert.Contains(t, diff, "--- expected")
	assert.Contains(t, diff, "+++ actual")
	assert.Contains(t, diff, "-Gadget-2")
	assert.Contains(t, diff, "+Gadget-3")
}

func TestTextAsserter_ColoredDiffShowsWhitespace(t *testing.T) {
	diff := NewTextAsserter(t, WithEnableColors(true), WithIgnoreTrailingWhitespace(false)).Diff("a b\n", "a\tb\n")

	assert.Contains(t, diff, "a·b")
	assert.Contains(t, diff, "a→b")
}

func TestJSONAsserter_Defaults(t *testing.T) {
	opts := NewJSONAsserter(t).Options()

	assert.True(t, opts.IgnoreExtraKeys)
	assert.True(t, opts.AllowPresencePlaceholder)
	assert.Empty(t, opts.IgnoredFields)
}

func TestJSONAsserter_Assert(t *testing.T) {
	tests := []struct {
		name     string
		opts     []JSONOption
		actual   string
		expected string
		match    bool
	}{
		{
			name:     "equal objects with different key order",
			actual:   `{"address":"aa:01","name":"Widget-1"}`,
			expected: `{"name":"Widget-1","address":"aa:01"}`,
			match:    true,
		},
		{
			name:     "extra keys ignored by default",
			actual:   `{"address":"aa:01","rssi":-60}`,
			expected: `{"address":"aa:01"}`,
			match:    true,
		},
		{
			name:     "extra keys significant on request",
			opts:     []JSONOption{WithIgnoreExtraKeys(false)},
			actual:   `{"address":"aa:01","rssi":-60}`,
			expected: `{"address":"aa:01"}`,
			match:    false,
		},
		{
			name:     "presence placeholder matches any value",
			actual:   `{"address":"aa:01","seen":"2026-01-01T00:00:00Z"}`,
			expected: `{"address":"aa:01","seen":"<<PRESENCE>>"}`,
			match:    true,
		},
		{
			name:     "presence placeholder requires the key",
			actual:   `{"address":"aa:01"}`,
			expected: `{"address":"aa:01","seen":"<<PRESENCE>>"}`,
			match:    false,
		},
		{
			name:     "root arrays are compared in order",
			actual:   `[{"id":"1800"},{"id":"180f"}]`,
			expected: `[{"id":"180f"},{"id":"1800"}]`,
			match:    false,
		},
		{
			name:     "ignored fields at any depth",
			opts:     []JSONOption{WithIgnoredFields("seen"), WithIgnoreExtraKeys(false)},
			actual:   `[{"address":"aa:01","seen":"x"}]`,
			expected: `[{"address":"aa:01","seen":"y"}]`,
			match:    true,
		},
		{
			name:     "invalid actual document",
			actual:   `{"address":`,
			expected: `{}`,
			match:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			ok := NewJSONAsserter(rec, tt.opts...).Assert(tt.actual, tt.expected)

			assert.Equal(t, tt.match, ok, "messages: %v", rec.messages)
		})
	}
}

func TestJSONAsserter_AssertValue(t *testing.T) {
	type record struct {
		Address string `json:"address"`
		RSSI    int    `json:"rssi"`
	}

	NewJSONAsserter(t).AssertValue(record{Address: "aa:01", RSSI: -42}, `{"address":"aa:01","rssi":-42}`)

	rec := &recordingT{}
	assert.False(t, NewJSONAsserter(rec).AssertValue(make(chan int), `{}`))
	assert.Len(t, rec.messages, 1)
}
