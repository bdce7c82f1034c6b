package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"news-qa/internal/endpoint"
	"news-qa/internal/ir"
	"news-qa/internal/session"
)

var ErrValidation = errors.New("validation error")

type Parser struct {
	table *endpoint.Table
}

// New returns a parser that validates operations against table, or the
// default news API table when table is nil.
func New(table ...*endpoint.Table) *Parser {
	p := &Parser{table: endpoint.Default()}
	if len(table) > 0 && table[0] != nil {
		p.table = table[0]
	}
	return p
}

// ParseFile reads a suite from disk. Multipart file paths and the openapi
// document are resolved relative to the suite's directory.
func (p *Parser) ParseFile(path string) (*ir.TestSuite, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}
	suite, err := p.ParseBytes(b)
	if err != nil {
		return nil, err
	}
	suite.Dir = filepath.Dir(path)
	if suite.OpenAPI != "" {
		suite.OpenAPI = relativeTo(suite.Dir, suite.OpenAPI)
	}
	for i := range suite.Scenarios {
		for j := range suite.Scenarios[i].Steps {
			parts := suite.Scenarios[i].Steps[j].Multipart
			for k := range parts {
				if parts[k].File != "" {
					parts[k].File = relativeTo(suite.Dir, parts[k].File)
				}
			}
		}
	}
	return suite, nil
}

// ParseBytes parses YAML (or JSON) into IR and validates it.
func (p *Parser) ParseBytes(b []byte) (*ir.TestSuite, error) {
	var suite ir.TestSuite

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true) // fail on unknown fields

	if err := dec.Decode(&suite); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := p.validateSuite(&suite); err != nil {
		return nil, err
	}
	return &suite, nil
}

func relativeTo(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// --- validation helpers ---

func (p *Parser) validateSuite(s *ir.TestSuite) error {
	if s.Name == "" {
		return wrapValidation("suite.name must not be empty")
	}
	if len(s.Scenarios) == 0 {
		return wrapValidation("suite.scenarios must not be empty")
	}
	if err := validateCodes("suite.teardownStatus", s.TeardownStatus); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i := range s.Scenarios {
		if err := p.validateScenario(&s.Scenarios[i], i); err != nil {
			return err
		}
		if seen[s.Scenarios[i].Name] {
			return wrapValidation(fmt.Sprintf("scenario[%d].name %q is duplicated", i, s.Scenarios[i].Name))
		}
		seen[s.Scenarios[i].Name] = true
	}
	return nil
}

func (p *Parser) validateScenario(sc *ir.Scenario, idx int) error {
	if sc.Name == "" {
		return wrapValidation(fmt.Sprintf("scenario[%d].name must not be empty", idx))
	}
	if len(sc.Steps) == 0 {
		return wrapValidation(fmt.Sprintf("scenario[%d].steps must not be empty", idx))
	}
	for _, r := range sc.Requires {
		if _, err := session.ParseResourceType(r); err != nil {
			return wrapValidation(fmt.Sprintf("scenario[%d].requires: %v", idx, err))
		}
	}
	if err := validateCodes(fmt.Sprintf("scenario[%d].teardownStatus", idx), sc.TeardownStatus); err != nil {
		return err
	}
	for j := range sc.Steps {
		if err := p.validateStep(&sc.Steps[j], idx, j); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) validateStep(st *ir.Step, i, j int) error {
	at := fmt.Sprintf("scenario[%d].step[%d]", i, j)
	if st.Op == "" {
		return wrapValidation(at + ".op must not be empty")
	}
	if _, err := p.table.Lookup(st.Op); err != nil {
		return wrapValidation(fmt.Sprintf("%s.op: %v", at, err))
	}
	switch st.Auth {
	case "", ir.AuthSession, ir.AuthNone:
		if st.Token != "" {
			return wrapValidation(at + ".token requires auth: token")
		}
	case ir.AuthToken:
	default:
		return wrapValidation(fmt.Sprintf("%s.auth %q is not one of session, none, token", at, st.Auth))
	}
	if st.JSON != nil && len(st.Multipart) > 0 {
		return wrapValidation(at + " cannot have both json and multipart bodies")
	}
	for k, part := range st.Multipart {
		if part.Name == "" {
			return wrapValidation(fmt.Sprintf("%s.multipart[%d].name must not be empty", at, k))
		}
		set := 0
		if part.Value != "" {
			set++
		}
		if part.Values != nil {
			set++
		}
		if part.File != "" {
			set++
		}
		if set > 1 {
			return wrapValidation(fmt.Sprintf("%s.multipart[%d] sets more than one of value, values, file", at, k))
		}
	}
	if st.Capture != nil {
		if _, err := session.ParseResourceType(st.Capture.Type); err != nil {
			return wrapValidation(fmt.Sprintf("%s.capture: %v", at, err))
		}
	}
	if st.Release != "" {
		if _, err := session.ParseResourceType(st.Release); err != nil {
			return wrapValidation(fmt.Sprintf("%s.release: %v", at, err))
		}
	}
	if st.TimeoutMs < 0 {
		return wrapValidation(at + ".timeoutMs must not be negative")
	}
	for k, e := range st.Expect {
		if err := validateExpectation(e, fmt.Sprintf("%s.expect[%d]", at, k)); err != nil {
			return err
		}
	}
	return nil
}

func validateExpectation(e ir.Expectation, at string) error {
	switch e.Type {
	case ir.ExpectStatus:
		if _, err := ir.StatusCodes(e.Value); err != nil {
			return wrapValidation(fmt.Sprintf("%s.value: %v", at, err))
		}
	case ir.ExpectJSONPath:
		if e.Target == "" {
			return wrapValidation(at + ".target must not be empty")
		}
	case ir.ExpectNotEmpty:
		if e.Target == "" {
			return wrapValidation(at + ".target must not be empty")
		}
	case ir.ExpectContract:
	default:
		return wrapValidation(fmt.Sprintf("%s.type %q is unknown", at, e.Type))
	}
	return nil
}

func validateCodes(at string, codes []int) error {
	for _, c := range codes {
		if c < 100 || c > 599 {
			return wrapValidation(fmt.Sprintf("%s: %d is not an HTTP status", at, c))
		}
	}
	return nil
}

func wrapValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
