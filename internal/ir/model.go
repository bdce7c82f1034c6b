package ir

import (
	"errors"
	"fmt"
	"strings"
)

// Expectation types (string constants for portability)
const (
	ExpectStatus   = "status"
	ExpectJSONPath = "jsonPath"
	ExpectNotEmpty = "notEmpty"
	ExpectContract = "contract"
)

// Step auth modes.
const (
	AuthSession = "session"
	AuthNone    = "none"
	AuthToken   = "token"
)

type TestSuite struct {
	Name           string     `json:"name" yaml:"name"`
	OpenAPI        string     `json:"openapi,omitempty" yaml:"openapi,omitempty"`
	TeardownStatus []int      `json:"teardownStatus,omitempty" yaml:"teardownStatus,omitempty"`
	Scenarios      []Scenario `json:"scenarios" yaml:"scenarios"`

	// Dir is the directory of the suite file; relative paths resolve against it.
	Dir string `json:"-" yaml:"-"`
}

type Scenario struct {
	Name           string   `json:"name" yaml:"name"`
	Tags           []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Requires       []string `json:"requires,omitempty" yaml:"requires,omitempty"`
	TeardownStatus []int    `json:"teardownStatus,omitempty" yaml:"teardownStatus,omitempty"`
	Steps          []Step   `json:"steps" yaml:"steps"`
}

type Step struct {
	Name       string            `json:"name,omitempty" yaml:"name,omitempty"`
	Op         string            `json:"op" yaml:"op"`
	Auth       string            `json:"auth,omitempty" yaml:"auth,omitempty"`
	Token      string            `json:"token,omitempty" yaml:"token,omitempty"`
	PathParams map[string]string `json:"pathParams,omitempty" yaml:"pathParams,omitempty"`
	Query      map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	JSON       any               `json:"json,omitempty" yaml:"json,omitempty"`
	Multipart  []Part            `json:"multipart,omitempty" yaml:"multipart,omitempty"`
	Capture    *Capture          `json:"capture,omitempty" yaml:"capture,omitempty"`
	Release    string            `json:"release,omitempty" yaml:"release,omitempty"`
	TimeoutMs  int               `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
	Expect     []Expectation     `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// Label is the step name, falling back to its operation.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Op
}

// Part is one multipart form field. Exactly one of Value, Values or File is set.
type Part struct {
	Name     string   `json:"name" yaml:"name"`
	Value    string   `json:"value,omitempty" yaml:"value,omitempty"`
	Values   []string `json:"values,omitempty" yaml:"values,omitempty"`
	File     string   `json:"file,omitempty" yaml:"file,omitempty"`
	MimeType string   `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
}

// Capture records the resource a step created so teardown deletes it.
type Capture struct {
	Type string `json:"type" yaml:"type"`
	From string `json:"from,omitempty" yaml:"from,omitempty"`
}

type Expectation struct {
	Type   string `json:"type" yaml:"type"`
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	Value  any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// StatusCodes normalizes a status expectation value: a single code or a list.
func StatusCodes(v any) ([]int, error) {
	switch x := v.(type) {
	case int:
		return []int{x}, nil
	case []int:
		if len(x) == 0 {
			return nil, errors.New("status list must not be empty")
		}
		return x, nil
	case []any:
		if len(x) == 0 {
			return nil, errors.New("status list must not be empty")
		}
		out := make([]int, 0, len(x))
		for _, item := range x {
			code, ok := item.(int)
			if !ok {
				return nil, fmt.Errorf("status %v is not an integer", item)
			}
			out = append(out, code)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("status %v is not an integer or list", v)
	}
}

// FilterByTags keeps scenarios carrying any include tag (when given) and
// none of the exclude tags. Matching is case-insensitive.
func FilterByTags(in []Scenario, include, exclude []string) []Scenario {
	if len(include) == 0 && len(exclude) == 0 {
		return in
	}
	toSet := func(ss []string) map[string]bool {
		m := map[string]bool{}
		for _, s := range ss {
			m[strings.ToLower(s)] = true
		}
		return m
	}
	inc, exc := toSet(include), toSet(exclude)
	hasAny := func(tags []string, m map[string]bool) bool {
		for _, t := range tags {
			if m[strings.ToLower(t)] {
				return true
			}
		}
		return false
	}
	out := make([]Scenario, 0, len(in))
	for _, sc := range in {
		if len(inc) > 0 && !hasAny(sc.Tags, inc) {
			continue
		}
		if len(exc) > 0 && hasAny(sc.Tags, exc) {
			continue
		}
		out = append(out, sc)
	}
	return out
}
