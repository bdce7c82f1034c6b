package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrNotAuthenticated = errors.New("session is not authenticated")

type ResourceType string

const (
	User    ResourceType = "user"
	Post    ResourceType = "post"
	Comment ResourceType = "comment"
)

func ParseResourceType(s string) (ResourceType, error) {
	switch rt := ResourceType(strings.ToLower(strings.TrimSpace(s))); rt {
	case User, Post, Comment:
		return rt, nil
	default:
		return "", fmt.Errorf("unknown resource type %q", s)
	}
}

type CreatedResource struct {
	Type           ResourceType
	ID             string
	OwnerSessionID string
	// Released is set when the scenario deleted the resource itself.
	Released bool
}

// Context is the state of one scenario execution. It must not be shared
// between concurrently running scenarios.
type Context struct {
	ID          string
	BaseURL     string
	AccessToken string
	UserID      string

	created []CreatedResource
}

func New(baseURL string) *Context {
	return &Context{
		ID:      uuid.NewString(),
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *Context) Authenticated() bool { return c.AccessToken != "" }

// SetCredentials replaces the token and user id from a login.
func (c *Context) SetCredentials(token, userID string) {
	c.AccessToken = token
	c.UserID = userID
}

func (c *Context) Record(t ResourceType, id string) CreatedResource {
	r := CreatedResource{Type: t, ID: id, OwnerSessionID: c.ID}
	c.created = append(c.created, r)
	return r
}

// Lookup returns the most recent live resource of the given type.
func (c *Context) Lookup(t ResourceType) (string, bool) {
	for i := len(c.created) - 1; i >= 0; i-- {
		if r := c.created[i]; r.Type == t && !r.Released {
			return r.ID, true
		}
	}
	return "", false
}

// Release marks the most recent live resource of type t as already deleted.
func (c *Context) Release(t ResourceType) (string, bool) {
	for i := len(c.created) - 1; i >= 0; i-- {
		if c.created[i].Type == t && !c.created[i].Released {
			c.created[i].Released = true
			return c.created[i].ID, true
		}
	}
	return "", false
}

// Created returns a copy of the created resources in creation order.
func (c *Context) Created() []CreatedResource {
	return append([]CreatedResource(nil), c.created...)
}

// Vars exposes session values for ${...} interpolation.
func (c *Context) Vars() map[string]string {
	out := map[string]string{}
	if c.UserID != "" {
		out["session.userId"] = c.UserID
	}
	if c.AccessToken != "" {
		out["session.token"] = c.AccessToken
	}
	for _, t := range []ResourceType{User, Post, Comment} {
		if id, ok := c.Lookup(t); ok {
			out[string(t)+".id"] = id
		}
	}
	return out
}
