package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"news-qa/internal/endpoint"
	"news-qa/internal/session"
)

type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyJSON
	BodyMultipart
)

func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyMultipart:
		return "multipart"
	default:
		return "none"
	}
}

// AuthMode selects how the Authorization header is produced.
type AuthMode string

const (
	AuthSession AuthMode = "session" // bearer from the session, if any
	AuthNone    AuthMode = "none"    // never send Authorization
	AuthToken   AuthMode = "token"   // send Descriptor.Token as bearer
)

const DefaultFileMimeType = "application/octet-stream"

var ErrMissingRequiredField = errors.New("missing required field")

type MissingRequiredFieldError struct {
	Endpoint string
	Fields   []string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("%s for %s: %s", ErrMissingRequiredField, e.Endpoint, strings.Join(e.Fields, ", "))
}

func (e *MissingRequiredFieldError) Unwrap() error { return ErrMissingRequiredField }

// File is a multipart file part. Content wins over Path when both are set.
type File struct {
	Path     string
	Content  []byte
	Filename string
	MimeType string
}

// Field is one multipart form entry. Values produces one part per element.
type Field struct {
	Name   string
	Value  string
	Values []string
	File   *File
}

type Descriptor struct {
	Endpoint   string
	PathParams map[string]string
	Query      map[string]string
	Headers    map[string]string
	Auth       AuthMode
	Token      string
	Body       BodyKind
	JSON       any
	Multipart  []Field
}

// RequireFields reports the names that are absent from the descriptor body.
// Scenarios call it for operations whose required fields they know; Build
// never does, so negative tests can still send incomplete bodies.
func RequireFields(d Descriptor, names ...string) error {
	present := map[string]bool{}
	switch d.Body {
	case BodyMultipart:
		for _, f := range d.Multipart {
			present[f.Name] = true
		}
	case BodyJSON:
		if m, ok := d.JSON.(map[string]any); ok {
			for k, v := range m {
				present[k] = v != nil
			}
		}
	}
	var missing []string
	for _, n := range names {
		if !present[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &MissingRequiredFieldError{Endpoint: d.Endpoint, Fields: missing}
	}
	return nil
}

type Builder struct {
	table *endpoint.Table
}

func NewBuilder(table *endpoint.Table) *Builder {
	if table == nil {
		table = endpoint.Default()
	}
	return &Builder{table: table}
}

func (b *Builder) Table() *endpoint.Table { return b.table }

// Build turns a descriptor into an executable request. It performs no network I/O.
func (b *Builder) Build(ctx context.Context, d Descriptor, sess *session.Context) (*http.Request, error) {
	spec, err := b.table.Lookup(d.Endpoint)
	if err != nil {
		return nil, err
	}
	auth := d.Auth
	if auth == "" {
		auth = AuthSession
	}
	if spec.RequiresAuth && auth == AuthSession && !sess.Authenticated() {
		return nil, fmt.Errorf("%s %s: %w", spec.Method, spec.Name, session.ErrNotAuthenticated)
	}

	path, err := b.table.Resolve(d.Endpoint, d.PathParams)
	if err != nil {
		return nil, err
	}
	target := sess.BaseURL + path
	if len(d.Query) > 0 {
		q := url.Values{}
		for k, v := range d.Query {
			q.Set(k, v)
		}
		target += "?" + q.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch d.Body {
	case BodyJSON:
		buf, err := encodeJSON(d.JSON)
		if err != nil {
			return nil, fmt.Errorf("%s: json body: %w", d.Endpoint, err)
		}
		body, contentType = bytes.NewReader(buf), "application/json"
	case BodyMultipart:
		buf, ct, err := encodeMultipart(d.Multipart)
		if err != nil {
			return nil, fmt.Errorf("%s: multipart body: %w", d.Endpoint, err)
		}
		body, contentType = bytes.NewReader(buf), ct
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}

	switch auth {
	case AuthSession:
		if sess.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
		}
	case AuthToken:
		req.Header.Set("Authorization", "Bearer "+d.Token)
	case AuthNone:
		req.Header.Del("Authorization")
	default:
		return nil, fmt.Errorf("unknown auth mode %q", auth)
	}
	return req, nil
}

func encodeJSON(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		return x, nil
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return json.Marshal(x)
	}
}

func encodeMultipart(fields []Field) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		switch {
		case f.File != nil:
			if err := writeFilePart(w, f.Name, f.File); err != nil {
				return nil, "", err
			}
		case f.Values != nil:
			for _, v := range f.Values {
				if err := w.WriteField(f.Name, v); err != nil {
					return nil, "", fmt.Errorf("field %s: %w", f.Name, err)
				}
			}
		default:
			if err := w.WriteField(f.Name, f.Value); err != nil {
				return nil, "", fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFilePart(w *multipart.Writer, name string, f *File) error {
	filename := f.Filename
	if filename == "" && f.Path != "" {
		filename = filepath.Base(f.Path)
	}
	if filename == "" {
		filename = name
	}
	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = DefaultFileMimeType
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(name), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("file %s: %w", name, err)
	}

	if f.Content != nil || f.Path == "" {
		_, err = part.Write(f.Content)
		return err
	}
	src, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("file %s: %w", name, err)
	}
	defer src.Close()
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("file %s: %w", name, err)
	}
	return nil
}
