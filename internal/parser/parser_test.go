package parser_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"news-qa/internal/ir"
	"news-qa/internal/parser"
)

const validYAML = `
name: News API
teardownStatus: [200, 204]
scenarios:
  - name: Create post returns 201
    tags: [posts, smoke]
    requires: [user]
    steps:
      - name: create post
        op: createPost
        timeoutMs: 10000
        multipart:
          - {name: title, value: T}
          - {name: text, value: X}
          - {name: tags, values: [a, b]}
          - {name: file, file: testdata/sc.png, mimeType: image/png}
        capture: {type: post, from: id}
        expect:
          - type: status
            value: 201
          - type: notEmpty
            target: id
      - op: deletePost
        pathParams: {id: "${post.id}"}
        release: post
        expect:
          - {type: status, value: [200, 204]}
`

const missingNameYAML = `
scenarios: []
`

const unknownFieldYAML = `
name: Foo
scenarios:
  - name: Bar
    steps:
      - op: whoAmI
        expect: []
    notARealField: true
`

func TestParse_ValidSuite(t *testing.T) {
	p := parser.New()

	suite, err := p.ParseBytes([]byte(validYAML))
	if err != nil {
		t.Fatalf("ParseBytes error: %v", err)
	}
	if suite == nil {
		t.Fatal("suite is nil")
	}
	if diff := cmp.Diff("News API", suite.Name); diff != "" {
		t.Fatalf("name mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{200, 204}, suite.TeardownStatus); diff != "" {
		t.Fatalf("teardownStatus mismatch (-want +got):\n%s", diff)
	}

	if len(suite.Scenarios) != 1 {
		t.Fatalf("scenarios len = %d, want 1", len(suite.Scenarios))
	}

	sc := suite.Scenarios[0]
	if diff := cmp.Diff([]string{"user"}, sc.Requires); diff != "" {
		t.Fatalf("requires mismatch (-want +got):\n%s", diff)
	}
	if got, want := len(sc.Steps), 2; got != want {
		t.Fatalf("steps len = %d, want %d", got, want)
	}
	step := sc.Steps[0]
	if step.Op != "createPost" {
		t.Fatalf("op = %s, want createPost", step.Op)
	}
	if step.TimeoutMs != 10000 {
		t.Fatalf("timeoutMs = %d, want 10000", step.TimeoutMs)
	}
	wantParts := []ir.Part{
		{Name: "title", Value: "T"},
		{Name: "text", Value: "X"},
		{Name: "tags", Values: []string{"a", "b"}},
		{Name: "file", File: "testdata/sc.png", MimeType: "image/png"},
	}
	if diff := cmp.Diff(wantParts, step.Multipart); diff != "" {
		t.Fatalf("multipart mismatch (-want +got):\n%s", diff)
	}
	if got, want := len(step.Expect), 2; got != want {
		t.Fatalf("expect len = %d, want %d", got, want)
	}
	if step.Expect[0].Type != ir.ExpectStatus {
		t.Fatalf("expect[0].type = %s, want %s", step.Expect[0].Type, ir.ExpectStatus)
	}
	if sc.Steps[1].Release != "post" {
		t.Fatalf("release = %q, want post", sc.Steps[1].Release)
	}
}

func TestParse_Validation_MissingName(t *testing.T) {
	p := parser.New()

	_, err := p.ParseBytes([]byte(missingNameYAML))
	if err == nil {
		t.Fatal("expected error for missing suite name, got nil")
	}
	if !errors.Is(err, parser.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestParse_KnownFieldsEnforced(t *testing.T) {
	p := parser.New()

	_, err := p.ParseBytes([]byte(unknownFieldYAML))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestParse_Validation_Rejections(t *testing.T) {
	cases := []struct {
		name string
		step string
		want string
	}{
		{"unknown op", "op: listUsersOfDoom", "unknown endpoint"},
		{"unknown auth", "op: whoAmI\n        auth: cookie", "auth"},
		{"token without token auth", "op: whoAmI\n        token: abc", "token requires auth: token"},
		{"unknown capture type", "op: createPost\n        capture: {type: video}", "capture"},
		{"unknown release type", "op: deletePost\n        release: video", "release"},
		{"status not int", "op: whoAmI\n        expect: [{type: status, value: ok}]", "status"},
		{"empty status list", "op: whoAmI\n        expect: [{type: status, value: []}]", "must not be empty"},
		{"jsonPath without target", "op: whoAmI\n        expect: [{type: jsonPath, value: 1}]", "target"},
		{"unknown expectation", "op: whoAmI\n        expect: [{type: eventually}]", "unknown"},
		{"both bodies", "op: createComment\n        json: {a: 1}\n        multipart: [{name: a, value: b}]", "both json and multipart"},
		{"ambiguous part", "op: createPost\n        multipart: [{name: a, value: b, file: c}]", "more than one"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := "name: S\nscenarios:\n  - name: X\n    steps:\n      - " + tc.step + "\n"
			_, err := parser.New().ParseBytes([]byte(doc))
			if !errors.Is(err, parser.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestParse_DuplicateScenarioNames(t *testing.T) {
	doc := `
name: S
scenarios:
  - name: X
    steps: [{op: whoAmI}]
  - name: X
    steps: [{op: whoAmI}]
`
	_, err := parser.New().ParseBytes([]byte(doc))
	if !errors.Is(err, parser.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestParseFile_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "suite.yaml")
	doc := `
name: S
openapi: openapi.yaml
scenarios:
  - name: X
    steps:
      - op: createPost
        multipart:
          - {name: file, file: testdata/sc.png}
          - {name: other, file: /abs/img.png}
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	suite, err := parser.New().ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if suite.Dir != dir {
		t.Fatalf("dir = %s, want %s", suite.Dir, dir)
	}
	if want := filepath.Join(dir, "openapi.yaml"); suite.OpenAPI != want {
		t.Fatalf("openapi = %s, want %s", suite.OpenAPI, want)
	}
	parts := suite.Scenarios[0].Steps[0].Multipart
	if want := filepath.Join(dir, "testdata", "sc.png"); parts[0].File != want {
		t.Fatalf("file = %s, want %s", parts[0].File, want)
	}
	if parts[1].File != "/abs/img.png" {
		t.Fatalf("absolute path rewritten: %s", parts[1].File)
	}
}

func TestParseFile_BundledNewsSuite(t *testing.T) {
	suite, err := parser.New().ParseFile(filepath.Join("..", "..", "suites", "news-api.yaml"))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(suite.Scenarios) == 0 {
		t.Fatal("bundled suite has no scenarios")
	}
}
