// Package softassert records expectation failures without stopping the
// scenario and reports them together when the scenario finishes.
package softassert

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"
)

type Failure struct {
	Scenario string `json:"scenario"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Message  string `json:"message"`
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: expected %s, got %s", f.Message, f.Expected, f.Actual)
}

// AggregateError is the single error returned by Finish.
type AggregateError struct {
	Scenario string
	Failures []Failure
}

func (e *AggregateError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d assertion(s) failed", e.Scenario, len(e.Failures))
	for i, f := range e.Failures {
		fmt.Fprintf(&sb, "\n  %d) %s", i+1, f)
	}
	return sb.String()
}

type Collector struct {
	scenario string
	failures []Failure
}

func New(scenario string) *Collector {
	return &Collector{scenario: scenario}
}

func (c *Collector) record(expected, actual, message string) {
	c.failures = append(c.failures, Failure{
		Scenario: c.scenario,
		Expected: expected,
		Actual:   actual,
		Message:  message,
	})
}

func (c *Collector) Failf(expected, actual any, format string, args ...any) {
	c.record(render(expected), render(actual), fmt.Sprintf(format, args...))
}

func (c *Collector) Equal(actual, expected any, message string) bool {
	if cmp.Equal(expected, actual) {
		return true
	}
	msg := message
	if d := cmp.Diff(expected, actual); d != "" && isComposite(expected) {
		msg += " (-want +got):\n" + d
	}
	c.record(render(expected), render(actual), msg)
	return false
}

func (c *Collector) NotNil(value any, message string) bool {
	if !isNil(value) {
		return true
	}
	c.record("non-null value", "null", message)
	return false
}

func (c *Collector) NotEmpty(value string, message string) bool {
	if value != "" {
		return true
	}
	c.record("non-empty value", `""`, message)
	return false
}

func (c *Collector) True(cond bool, message string) bool {
	if cond {
		return true
	}
	c.record("true", "false", message)
	return false
}

func (c *Collector) StatusIn(actual int, allowed []int, message string) bool {
	if slices.Contains(allowed, actual) {
		return true
	}
	want := make([]string, len(allowed))
	for i, s := range allowed {
		want[i] = fmt.Sprint(s)
	}
	c.record(strings.Join(want, " or "), fmt.Sprint(actual), message)
	return false
}

func (c *Collector) Failures() []Failure {
	return append([]Failure(nil), c.failures...)
}

func (c *Collector) Failed() bool { return len(c.failures) > 0 }

// Finish returns nil when nothing failed, otherwise one *AggregateError
// listing every failure in the order it was recorded.
func (c *Collector) Finish() error {
	if len(c.failures) == 0 {
		return nil
	}
	return &AggregateError{Scenario: c.scenario, Failures: c.Failures()}
}

func render(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func isComposite(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	}
	return false
}
