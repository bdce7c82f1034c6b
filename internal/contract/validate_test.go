package contract_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"news-qa/internal/config"
	"news-qa/internal/contract"
	"news-qa/internal/executor"
	"news-qa/internal/ir"
	"news-qa/internal/mockapi"
)

const openapiYAML = `
openapi: 3.0.3
info: { title: News API, version: "1.0.0" }
paths:
  /auth/login:
    post:
      responses:
        "200":
          description: logged in
          content:
            application/json:
              schema:
                type: object
                required: [accessToken, user]
                properties:
                  accessToken: { type: string }
                  user:
                    type: object
                    required: [id]
                    properties:
                      id: { type: string }
        "401": { description: rejected }
  /auth/whoami:
    get:
      responses:
        "200":
          description: current user
          content:
            application/json:
              schema:
                type: object
                required: [id, email]
                properties:
                  id: { type: string }
                  email: { type: string }
        "401": { description: unauthenticated }
  /posts:
    get:
      responses:
        "200": { description: ok }
`

// strictWhoAmI documents a field the mock never returns.
const strictWhoAmI = `
openapi: 3.0.3
info: { title: News API, version: "1.0.0" }
paths:
  /auth/whoami:
    get:
      responses:
        "200":
          description: current user
          content:
            application/json:
              schema:
                type: object
                required: [id, nickname]
                properties:
                  id: { type: string }
                  nickname: { type: string }
`

func newRunner(t *testing.T, doc string) (*executor.Runner, *contract.Validator) {
	t.Helper()
	v, err := contract.LoadFromBytes([]byte(doc))
	if err != nil {
		t.Fatalf("load openapi: %v", err)
	}
	return executor.New(newConfig(t)).WithContract(v), v
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	api := mockapi.New()
	if _, err := api.SeedUser("qa@example.com", "password123", "QA"); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg.BaseURL, cfg.Email, cfg.Password, cfg.Timeout = srv.URL, "qa@example.com", "password123", 2*time.Second
	return cfg
}

func whoAmISuite(expect ...ir.Expectation) *ir.TestSuite {
	return &ir.TestSuite{
		Name: "Contract",
		Scenarios: []ir.Scenario{{
			Name:  "GET /auth/whoami",
			Steps: []ir.Step{{Op: "whoAmI", Expect: expect}},
		}},
	}
}

func TestContract_ValidatesResponse_OK(t *testing.T) {
	r, v := newRunner(t, openapiYAML)

	res, err := r.RunSuite(context.Background(), whoAmISuite(
		ir.Expectation{Type: ir.ExpectStatus, Value: 200},
		ir.Expectation{Type: ir.ExpectContract},
	))
	if err != nil {
		t.Fatalf("RunSuite: %v", err)
	}
	if !res.Passed {
		t.Fatalf("suite should pass, got: %v", res.Scenarios[0].Err)
	}

	rep := r.Coverage().Report(v.Doc())
	if rep.Total != 3 || rep.Covered != 1 {
		t.Fatalf("coverage = %+v, want 1 of 3", rep)
	}
	if rep.CoveredSet[0] != "GET /auth/whoami" {
		t.Fatalf("covered = %v", rep.CoveredSet)
	}
}

func TestContract_UndocumentedStatus_Fails(t *testing.T) {
	r, _ := newRunner(t, openapiYAML)

	suite := &ir.TestSuite{
		Name: "Contract bad",
		Scenarios: []ir.Scenario{{
			Name: "list posts without auth",
			Steps: []ir.Step{{
				Op:     "listPosts",
				Auth:   ir.AuthNone,
				Expect: []ir.Expectation{{Type: ir.ExpectContract}},
			}},
		}},
	}

	res, _ := r.RunSuite(context.Background(), suite)
	if res.Passed {
		t.Fatalf("suite should fail: 401 is not documented for GET /posts")
	}
	if !strings.Contains(res.Scenarios[0].Err.Error(), "contract") {
		t.Fatalf("expected contract failure details, got %v", res.Scenarios[0].Err)
	}
	if rep := r.Coverage().Report(nil); rep.Total != 0 || rep.Percent != 100 {
		t.Fatalf("empty document coverage = %+v", rep)
	}
}

func TestContract_SchemaMismatch_Fails(t *testing.T) {
	r, _ := newRunner(t, strictWhoAmI)

	res, _ := r.RunSuite(context.Background(), whoAmISuite(ir.Expectation{Type: ir.ExpectContract}))
	if res.Passed {
		t.Fatalf("suite should fail: response lacks nickname")
	}
}

func TestContract_RequestedWithoutDocument_Fails(t *testing.T) {
	r := executor.New(newConfig(t))

	res, _ := r.RunSuite(context.Background(), whoAmISuite(ir.Expectation{Type: ir.ExpectContract}))
	if res.Passed {
		t.Fatal("contract expectation without a document must fail")
	}
	if !strings.Contains(res.Scenarios[0].Err.Error(), "no OpenAPI document") {
		t.Fatalf("err = %v", res.Scenarios[0].Err)
	}
	if r.Coverage() != nil {
		t.Fatal("coverage is only tracked with a document")
	}
}

func TestValidateResponse_RouteNotFound(t *testing.T) {
	v, err := contract.LoadFromBytes([]byte(openapiYAML))
	if err != nil {
		t.Fatal(err)
	}
	_, err = v.ValidateResponse(context.Background(), http.MethodDelete, "http://localhost/nowhere", 200, nil, nil)
	if err == nil || !strings.Contains(err.Error(), "route not found") {
		t.Fatalf("err = %v, want route not found", err)
	}
}
