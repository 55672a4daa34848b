package testutils

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// TestingT is the part of testing.T the asserters need.
type TestingT interface {
	Errorf(format string, args ...interface{})
}

func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

type JSONAssertOptions struct {
	IgnoreExtraKeys  bool     `default:"false"`
	IgnoreArrayOrder bool     `default:"false"`
	IgnoredFields    []string `default:""`
}

// Option is a functional option for configuring JSONAsserter
type Option func(*JSONAssertOptions)

// WithIgnoreExtraKeys drops object keys that are present only in the actual JSON.
func WithIgnoreExtraKeys(ignore bool) Option {
	return func(o *JSONAssertOptions) { o.IgnoreExtraKeys = ignore }
}

// WithIgnoreArrayOrder compares arrays as multisets.
func WithIgnoreArrayOrder(ignore bool) Option {
	return func(o *JSONAssertOptions) { o.IgnoreArrayOrder = ignore }
}

// WithIgnoredFields removes the named object keys, at any depth, from both sides.
func WithIgnoredFields(fields ...string) Option {
	return func(o *JSONAssertOptions) { o.IgnoredFields = append(o.IgnoredFields, fields...) }
}

type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

// NewJSONAsserter creates a new JSONAsserter with default options
func NewJSONAsserter(t TestingT) *JSONAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONAsserter{
		t:       t,
		options: opts,
	}
}

// WithOptions applies functional options to the JSONAsserter
func (ja *JSONAsserter) WithOptions(opts ...Option) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

// Assert compares actualJSON against expectedJSON
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) {
	if diff := ja.Diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
	}
}

// Diff returns a human-readable difference, or "" when the documents match.
func (ja *JSONAsserter) Diff(actualJSON, expectedJSON string) string {
	var expected, actual interface{}
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v\n%s", err, actualJSON)
	}

	// gojsondiff compares objects only; wrap so top-level arrays work too.
	left := map[string]interface{}{"root": expected}
	right := map[string]interface{}{"root": actual}

	if len(ja.options.IgnoredFields) > 0 {
		removeFields(left, ja.options.IgnoredFields)
		removeFields(right, ja.options.IgnoredFields)
	}
	if ja.options.IgnoreArrayOrder {
		sortArrays(left)
		sortArrays(right)
	}
	if ja.options.IgnoreExtraKeys {
		pruneExtraKeys(right, left)
	}

	diff := gojsondiff.New().CompareObjects(left, right)
	if !diff.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(left, formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       false,
	})
	out, err := f.Format(diff)
	if err != nil {
		return fmt.Sprintf("JSON documents differ (formatting failed: %v)", err)
	}
	return out
}

func removeFields(v interface{}, fields []string) {
	switch node := v.(type) {
	case map[string]interface{}:
		for _, f := range fields {
			delete(node, f)
		}
		for _, child := range node {
			removeFields(child, fields)
		}
	case []interface{}:
		for _, child := range node {
			removeFields(child, fields)
		}
	}
}

func sortArrays(v interface{}) {
	switch node := v.(type) {
	case map[string]interface{}:
		for _, child := range node {
			sortArrays(child)
		}
	case []interface{}:
		for _, child := range node {
			sortArrays(child)
		}
		sort.SliceStable(node, func(i, j int) bool {
			return MustJSON(node[i]) < MustJSON(node[j])
		})
	}
}

// pruneExtraKeys removes keys from actual that expected does not mention.
func pruneExtraKeys(actual, expected interface{}) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		for k := range act {
			if _, keep := exp[k]; !keep {
				delete(act, k)
				continue
			}
			pruneExtraKeys(act[k], exp[k])
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := 0; i < len(act) && i < len(exp); i++ {
			pruneExtraKeys(act[i], exp[i])
		}
	}
}
