package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const DefaultTimeout = 10 * time.Second

// TransportError means no HTTP response was received.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tr := &http.Transport{
		MaxIdleConns:        128,
		MaxIdleConnsPerHost: 64,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &Client{httpClient: &http.Client{Transport: tr}, timeout: timeout}
}

// NewWithHTTPClient wraps an existing client, e.g. one from httptest.
func NewWithHTTPClient(hc *http.Client, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{httpClient: hc, timeout: timeout}
}

// Do sends req and reads the full body before returning. A timeout of zero
// uses the client default.
func (c *Client) Do(req *http.Request, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: fmt.Errorf("read body: %w", err)}
	}
	return &Response{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Duration:   time.Since(start),
	}, nil
}

// Response is a fully received HTTP response. The JSON body is parsed on
// first access.
type Response struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration

	parsed   bool
	json     any
	parseErr error
}

func (r *Response) JSON() (any, error) {
	if !r.parsed {
		r.parsed = true
		if len(bytes.TrimSpace(r.Body)) == 0 {
			r.parseErr = errors.New("empty body")
		} else {
			dec := json.NewDecoder(bytes.NewReader(r.Body))
			dec.UseNumber()
			r.parseErr = dec.Decode(&r.json)
		}
	}
	return r.json, r.parseErr
}

// Lookup walks a dotted path ("user.id", "items.0.id", "$.id") through the JSON body.
func (r *Response) Lookup(path string) (any, bool) {
	doc, err := r.JSON()
	if err != nil {
		return nil, false
	}
	path = strings.TrimPrefix(strings.TrimPrefix(path, "$"), ".")
	if path == "" {
		return doc, true
	}
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// String returns the value at path rendered as a string; null and missing
// values report false.
func (r *Response) String(path string) (string, bool) {
	v, ok := r.Lookup(path)
	if !ok || v == nil {
		return "", false
	}
	return Stringify(v), true
}

func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Snippet returns the body capped at max bytes for messages.
func (r *Response) Snippet(max int) string {
	if len(r.Body) <= max {
		return string(r.Body)
	}
	return string(r.Body[:max]) + "...[truncated]"
}
