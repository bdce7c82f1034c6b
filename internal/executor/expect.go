package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"news-qa/internal/client"
	"news-qa/internal/ir"
	"news-qa/internal/softassert"
)

// ---- Expectations ----

func (r *Runner) evalExpectation(ctx context.Context, c *softassert.Collector, step *StepResult, exp ir.Expectation) {
	resp := step.resp
	switch exp.Type {
	case ir.ExpectStatus:
		want, err := ir.StatusCodes(exp.Value)
		if err != nil {
			c.Failf("integer status", exp.Value, "step %q: status expectation: %v", step.Name, err)
			return
		}
		c.StatusIn(resp.StatusCode, want, fmt.Sprintf("step %q: status (body: %s)", step.Name, resp.Snippet(256)))

	case ir.ExpectJSONPath:
		got, ok := resp.Lookup(exp.Target)
		want := walkInterpolate(exp.Value, step.vars)
		if !ok {
			c.Failf(want, "<missing>", "step %q: jsonPath %s not found", step.Name, exp.Target)
			return
		}
		c.Equal(client.Stringify(got), client.Stringify(want), fmt.Sprintf("step %q: jsonPath %s", step.Name, exp.Target))

	case ir.ExpectNotEmpty:
		got, _ := resp.String(exp.Target)
		c.NotEmpty(got, fmt.Sprintf("step %q: %s", step.Name, exp.Target))

	case ir.ExpectContract:
		if r.contractV == nil {
			c.Failf("OpenAPI document", "none", "step %q: contract requested but no OpenAPI document configured", step.Name)
			return
		}
		op, err := r.contractV.Check(ctx, resp)
		if err != nil {
			c.Failf("response matching "+op.String(), err.Error(), "step %q: contract", step.Name)
			return
		}
		r.coverage.Mark(op)

	default:
		c.Failf("known expectation", exp.Type, "step %q: unknown expectation type", step.Name)
	}
}

// ---- Interpolation (with defaults + unresolved guard) ----

var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func interpolateMap(m map[string]string, vars map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = interpolate(v, vars)
	}
	return out
}

func walkInterpolate(v any, vars map[string]string) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return interpolate(x, vars)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = walkInterpolate(vv, vars)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = walkInterpolate(x[i], vars)
		}
		return out
	default:
		return v
	}
}

// ${KEY|default} supported; if missing and no default, leaves ${KEY} intact (so we can error clearly)
func interpolate(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(m string) string {
		inner := m[2 : len(m)-1]
		key, def := inner, ""
		if i := strings.Index(inner, "|"); i >= 0 {
			key, def = inner[:i], inner[i+1:]
		}
		if v, ok := vars[key]; ok && v != "" {
			return v
		}
		if def != "" {
			return def
		}
		return m
	})
}

func findUnresolved(s string) []string {
	var out []string
	for _, m := range varPattern.FindAllStringSubmatch(s, -1) {
		key := m[1]
		if i := strings.Index(key, "|"); i >= 0 {
			continue
		} // had default
		out = append(out, "${"+key+"}")
	}
	return out
}
