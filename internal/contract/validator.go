package contract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"

	"news-qa/internal/client"
)

// Validator checks received responses against an OpenAPI document of the
// news API.
type Validator struct {
	doc    *openapi3.T
	router routers.Router
}

func LoadFromFile(path string) (*Validator, error) {
	loader := &openapi3.Loader{IsExternalRefsAllowed: true}
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return build(doc)
}

func LoadFromBytes(b []byte) (*Validator, error) {
	loader := &openapi3.Loader{IsExternalRefsAllowed: true}
	doc, err := loader.LoadFromData(b)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return build(doc)
}

func build(doc *openapi3.T) (*Validator, error) {
	// Strict: if the document is invalid, fail fast with a clear message.
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi: %w", err)
	}
	r, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	return &Validator{doc: doc, router: r}, nil
}

func (v *Validator) Doc() *openapi3.T { return v.doc }

// Check validates a received response and returns the matched operation so
// callers can account coverage.
func (v *Validator) Check(ctx context.Context, resp *client.Response) (Operation, error) {
	return v.ValidateResponse(ctx, resp.Method, resp.URL, resp.StatusCode, resp.Header, resp.Body)
}

// ValidateResponse validates (method, url, status, headers, body) against the
// document. The operation is returned whenever a route matched, even if the
// response itself is invalid.
func (v *Validator) ValidateResponse(
	ctx context.Context,
	method string,
	rawURL string,
	status int,
	header map[string][]string,
	body []byte,
) (Operation, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Operation{}, fmt.Errorf("parse url: %w", err)
	}
	hdr := http.Header(header)
	req := &http.Request{
		Method: method,
		URL:    u,
		Header: hdr,
	}

	route, pathParams, err := v.router.FindRoute(req)
	if err != nil {
		return Operation{}, fmt.Errorf("route not found: %w", err)
	}
	op := Operation{Method: route.Method, Path: route.Path}

	rvi := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
		Options:    &openapi3filter.Options{},
	}
	rsp := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: rvi,
		Status:                 status,
		Header:                 hdr,
		Body:                   io.NopCloser(bytes.NewReader(body)),
		Options:                &openapi3filter.Options{IncludeResponseStatus: true},
	}
	if err := openapi3filter.ValidateResponse(ctx, rsp); err != nil {
		return op, err
	}
	return op, nil
}
