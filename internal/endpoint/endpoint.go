package endpoint

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Logical operation names of the news API.
const (
	Signup        = "signup"
	Login         = "login"
	WhoAmI        = "whoAmI"
	UserInfo      = "userInfo"
	UpdateUser    = "updateUser"
	UserList      = "userList"
	CreatePost    = "createPost"
	ListPosts     = "listPosts"
	UpdatePost    = "updatePost"
	DeletePost    = "deletePost"
	CreateComment = "createComment"
	UpdateComment = "updateComment"
	DeleteComment = "deleteComment"
)

var (
	ErrUnknownEndpoint       = errors.New("unknown endpoint")
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")
	ErrDuplicateEndpoint     = errors.New("duplicate endpoint")
)

// UnresolvedPlaceholderError names the placeholders left in a template after
// substitution.
type UnresolvedPlaceholderError struct {
	Endpoint     string
	Placeholders []string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("%s %q: missing %s", ErrUnresolvedPlaceholder, e.Endpoint, strings.Join(e.Placeholders, ", "))
}

func (e *UnresolvedPlaceholderError) Unwrap() error { return ErrUnresolvedPlaceholder }

type Spec struct {
	Name         string
	Method       string
	PathTemplate string
	RequiresAuth bool
}

// Table maps operation names to endpoint specs. It is never mutated after
// construction, so a single Table can be shared by every scenario.
type Table struct {
	specs map[string]Spec
}

func NewTable(specs ...Spec) (*Table, error) {
	t := &Table{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		if s.Name == "" || s.PathTemplate == "" {
			return nil, fmt.Errorf("endpoint %q: name and path template are required", s.Name)
		}
		if _, dup := t.specs[s.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEndpoint, s.Name)
		}
		s.Method = strings.ToUpper(s.Method)
		if s.Method == "" {
			s.Method = http.MethodGet
		}
		t.specs[s.Name] = s
	}
	return t, nil
}

var defaultTable = mustTable(
	Spec{Name: Signup, Method: http.MethodPost, PathTemplate: "/auth/signup"},
	Spec{Name: Login, Method: http.MethodPost, PathTemplate: "/auth/login"},
	Spec{Name: WhoAmI, Method: http.MethodGet, PathTemplate: "/auth/whoami", RequiresAuth: true},
	Spec{Name: UserInfo, Method: http.MethodGet, PathTemplate: "/users/{id}", RequiresAuth: true},
	Spec{Name: UpdateUser, Method: http.MethodPatch, PathTemplate: "/users/{id}", RequiresAuth: true},
	Spec{Name: UserList, Method: http.MethodGet, PathTemplate: "/users", RequiresAuth: true},
	Spec{Name: CreatePost, Method: http.MethodPost, PathTemplate: "/posts", RequiresAuth: true},
	Spec{Name: ListPosts, Method: http.MethodGet, PathTemplate: "/posts", RequiresAuth: true},
	Spec{Name: UpdatePost, Method: http.MethodPatch, PathTemplate: "/posts/{id}", RequiresAuth: true},
	Spec{Name: DeletePost, Method: http.MethodDelete, PathTemplate: "/posts/{id}", RequiresAuth: true},
	Spec{Name: CreateComment, Method: http.MethodPost, PathTemplate: "/comments", RequiresAuth: true},
	Spec{Name: UpdateComment, Method: http.MethodPatch, PathTemplate: "/comments/{id}", RequiresAuth: true},
	Spec{Name: DeleteComment, Method: http.MethodDelete, PathTemplate: "/comments/{id}", RequiresAuth: true},
)

// Default returns the process-wide table of news API endpoints.
func Default() *Table { return defaultTable }

func mustTable(specs ...Spec) *Table {
	t, err := NewTable(specs...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) Lookup(name string) (Spec, error) {
	s, ok := t.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
	}
	return s, nil
}

func (t *Table) Names() []string {
	out := make([]string, 0, len(t.specs))
	for n := range t.specs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

var placeholderPattern = regexp.MustCompile(`\{([^{}]*)\}`)

// Resolve substitutes every {key} in the named endpoint's template with the
// path-escaped value from params.
func (t *Table) Resolve(name string, params map[string]string) (string, error) {
	s, err := t.Lookup(name)
	if err != nil {
		return "", err
	}
	var missing []string
	path := placeholderPattern.ReplaceAllStringFunc(s.PathTemplate, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := params[key]
		if !ok || v == "" {
			missing = append(missing, m)
			return m
		}
		return url.PathEscape(v)
	})
	if len(missing) > 0 || strings.ContainsAny(path, "{}") {
		if len(missing) == 0 {
			missing = []string{path}
		}
		return "", &UnresolvedPlaceholderError{Endpoint: name, Placeholders: missing}
	}
	return path, nil
}
