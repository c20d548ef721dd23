package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// PresencePlaceholder in expected JSON matches any actual value, as long as the key exists
const PresencePlaceholder = "<<PRESENCE>>"

type JSONAssertOptions struct {
	IgnoreExtraKeys          bool     `default:"true"`
	AllowPresencePlaceholder bool     `default:"true"`
	IgnoredFields            []string `default:""`
}

// JSONOption is a functional option for configuring JSONAsserter
type JSONOption func(*JSONAssertOptions)

// JSONAsserter compares JSON documents structurally and reports a gojsondiff diff
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

// NewJSONAsserter creates a JSONAsserter with default options plus opts
func NewJSONAsserter(t TestingT, opts ...JSONOption) *JSONAsserter {
	options := JSONAssertOptions{}
	defaults.SetDefaults(&options)
	for _, opt := range opts {
		opt(&options)
	}
	return &JSONAsserter{t: t, options: options}
}

// Options returns a copy of the current options
func (ja *JSONAsserter) Options() JSONAssertOptions {
	return ja.options
}

// Assert compares actualJSON against expectedJSON and reports whether they match
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) bool {
	diff := ja.Diff(actualJSON, expectedJSON)
	if diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
		return false
	}
	return true
}

// AssertValue marshals v and compares it against expectedJSON
func (ja *JSONAsserter) AssertValue(v any, expectedJSON string) bool {
	data, err := json.Marshal(v)
	if err != nil {
		ja.t.Errorf("JSON assertion failed: cannot marshal %T: %v", v, err)
		return false
	}
	return ja.Assert(string(data), expectedJSON)
}

// Diff returns a readable diff, or "" when the documents match
func (ja *JSONAsserter) Diff(actualJSON, expectedJSON string) string {
	var expected, actual any
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff compares objects only
	if _, ok := expected.([]any); ok {
		expected = map[string]any{"array": expected}
		actual = map[string]any{"array": actual}
	}

	if ja.options.AllowPresencePlaceholder {
		resolvePresence(expected, actual)
	}
	if len(ja.options.IgnoredFields) > 0 {
		removeFields(expected, ja.options.IgnoredFields)
		removeFields(actual, ja.options.IgnoredFields)
	}
	if ja.options.IgnoreExtraKeys {
		pruneExtraKeys(actual, expected)
	}

	expectedMap, _ := expected.(map[string]any)
	actualMap, ok := actual.(map[string]any)
	if expectedMap == nil || !ok {
		return fmt.Sprintf("JSON type mismatch: expected %T, got %T", expected, actual)
	}

	diff := gojsondiff.New().CompareObjects(expectedMap, actualMap)
	if !diff.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expectedMap, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       false,
	})
	out, err := f.Format(diff)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	return out
}

// resolvePresence copies actual values over placeholders whose key exists in actual
func resolvePresence(expected, actual any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return
		}
		for k, v := range exp {
			actVal, present := act[k]
			if s, isStr := v.(string); isStr && s == PresencePlaceholder {
				if present {
					exp[k] = actVal
				}
				continue
			}
			resolvePresence(v, actVal)
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				resolvePresence(exp[i], act[i])
			}
		}
	}
}

// pruneExtraKeys removes keys in actual that don't exist in expected
func pruneExtraKeys(actual, expected any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return
		}
		for k := range act {
			if _, exists := exp[k]; !exists {
				delete(act, k)
			}
		}
		for k := range exp {
			pruneExtraKeys(act[k], exp[k])
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				pruneExtraKeys(act[i], exp[i])
			}
		}
	}
}

func removeFields(v any, fields []string) {
	switch val := v.(type) {
	case map[string]any:
		for _, f := range fields {
			delete(val, f)
		}
		for _, child := range val {
			removeFields(child, fields)
		}
	case []any:
		for _, child := range val {
			removeFields(child, fields)
		}
	}
}

// WithIgnoreExtraKeys sets whether keys missing from expected are ignored
func WithIgnoreExtraKeys(ignore bool) JSONOption {
	return func(opts *JSONAssertOptions) {
		opts.IgnoreExtraKeys = ignore
	}
}

// WithAllowPresencePlaceholder sets whether "<<PRESENCE>>" matches any value
func WithAllowPresencePlaceholder(allow bool) JSONOption {
	return func(opts *JSONAssertOptions) {
		opts.AllowPresencePlaceholder = allow
	}
}

// WithIgnoredFields drops the named keys at every depth before comparing
func WithIgnoredFields(fields ...string) JSONOption {
	return func(opts *JSONAssertOptions) {
		opts.IgnoredFields = fields
	}
}
