package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"news-qa/internal/client"
	"news-qa/internal/endpoint"
	"news-qa/internal/request"
	"news-qa/internal/session"
)

var ErrAuthenticationFailed = errors.New("authentication failed")

type AuthenticationFailedError struct {
	StatusCode int
	Body       string
	Reason     string
}

func (e *AuthenticationFailedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: status %d: %s", ErrAuthenticationFailed, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("%s: status %d: %s", ErrAuthenticationFailed, e.StatusCode, e.Body)
}

func (e *AuthenticationFailedError) Unwrap() error { return ErrAuthenticationFailed }

// Gateway logs sessions in against the login endpoint.
type Gateway struct {
	builder *request.Builder
	client  *client.Client
}

func NewGateway(b *request.Builder, c *client.Client) *Gateway {
	return &Gateway{builder: b, client: c}
}

// Login replaces the session's token and user id. Calling it again simply
// overwrites them.
func (g *Gateway) Login(ctx context.Context, sess *session.Context, email, password string) error {
	req, err := g.builder.Build(ctx, request.Descriptor{
		Endpoint: endpoint.Login,
		Auth:     request.AuthNone,
		Body:     request.BodyJSON,
		JSON:     map[string]any{"email": email, "password": password},
	}, sess)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req, 0)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &AuthenticationFailedError{StatusCode: resp.StatusCode, Body: resp.Snippet(512)}
	}

	token, ok := resp.String("accessToken")
	if !ok || token == "" {
		return &AuthenticationFailedError{StatusCode: resp.StatusCode, Body: resp.Snippet(512), Reason: "response has no accessToken"}
	}
	userID, ok := resp.String("user.id")
	if !ok || userID == "" {
		return &AuthenticationFailedError{StatusCode: resp.StatusCode, Body: resp.Snippet(512), Reason: "response has no user.id"}
	}
	sess.SetCredentials(token, userID)
	return nil
}

func (g *Gateway) WhoAmI(ctx context.Context, sess *session.Context) (*client.Response, error) {
	req, err := g.builder.Build(ctx, request.Descriptor{Endpoint: endpoint.WhoAmI}, sess)
	if err != nil {
		return nil, err
	}
	return g.client.Do(req, 0)
}
