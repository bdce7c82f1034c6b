// Package fixtures creates the prerequisite resources a scenario can ask
// the resource chain for: a throwaway user, a post, and a comment on that post.
package fixtures

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"news-qa/internal/chain"
	"news-qa/internal/client"
	"news-qa/internal/config"
	"news-qa/internal/endpoint"
	"news-qa/internal/request"
	"news-qa/internal/session"
)

var ErrCreateFailed = errors.New("create failed")

// placeholderPNG is a 1x1 transparent PNG used when no fixture file is configured.
var placeholderPNG, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII=")

func PlaceholderPNG() []byte { return append([]byte(nil), placeholderPNG...) }

// Creators returns the chain creators for every resource type.
func Creators(cfg config.Fixtures) map[session.ResourceType]chain.Creator {
	return map[session.ResourceType]chain.Creator{
		session.User:    createUser(cfg.User),
		session.Post:    createPost(cfg.Post),
		session.Comment: createComment(cfg.Comment),
	}
}

func PostDescriptor(f config.PostFixture) request.Descriptor {
	file := &request.File{Path: f.File, MimeType: f.FileMime}
	if f.File == "" {
		file = &request.File{Content: PlaceholderPNG(), Filename: "fixture.png", MimeType: "image/png"}
	}
	tags := f.Tags
	if tags == nil {
		tags = []string{}
	}
	return request.Descriptor{
		Endpoint: endpoint.CreatePost,
		Body:     request.BodyMultipart,
		Multipart: []request.Field{
			{Name: "title", Value: f.Title},
			{Name: "text", Value: f.Text},
			{Name: "tags", Values: tags},
			{Name: "file", File: file},
		},
	}
}

func createUser(f config.UserFixture) chain.Creator {
	return func(ctx context.Context, c *chain.Chain) (string, error) {
		d := request.Descriptor{
			Endpoint: endpoint.Signup,
			Auth:     request.AuthNone,
			Body:     request.BodyJSON,
			JSON: map[string]any{
				"email":     fmt.Sprintf("qa+%s@example.com", uuid.NewString()),
				"password":  f.Password,
				"firstName": f.FirstName,
			},
		}
		if err := request.RequireFields(d, "email", "password"); err != nil {
			return "", err
		}
		resp, err := c.Dispatch(ctx, d)
		if err != nil {
			return "", err
		}
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			return "", failed(session.User, resp)
		}
		if id, ok := resp.String("user.id"); ok && id != "" {
			return id, nil
		}
		return idFrom(session.User, resp)
	}
}

func createPost(f config.PostFixture) chain.Creator {
	return func(ctx context.Context, c *chain.Chain) (string, error) {
		d := PostDescriptor(f)
		if err := request.RequireFields(d, "title", "text", "tags"); err != nil {
			return "", err
		}
		resp, err := c.Dispatch(ctx, d)
		if err != nil {
			return "", err
		}
		if resp.StatusCode != http.StatusCreated {
			return "", failed(session.Post, resp)
		}
		return idFrom(session.Post, resp)
	}
}

func createComment(f config.CommentFixture) chain.Creator {
	return func(ctx context.Context, c *chain.Chain) (string, error) {
		postID, err := c.Ensure(ctx, session.Post)
		if err != nil {
			return "", err
		}
		d := request.Descriptor{
			Endpoint: endpoint.CreateComment,
			Body:     request.BodyJSON,
			JSON:     map[string]any{"postId": postID, "content": f.Content},
		}
		if err := request.RequireFields(d, "postId", "content"); err != nil {
			return "", err
		}
		resp, err := c.Dispatch(ctx, d)
		if err != nil {
			return "", err
		}
		if resp.StatusCode != http.StatusCreated {
			return "", failed(session.Comment, resp)
		}
		return idFrom(session.Comment, resp)
	}
}

func idFrom(t session.ResourceType, resp *client.Response) (string, error) {
	id, ok := resp.String("id")
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %s response has no id: %s", ErrCreateFailed, t, resp.Snippet(256))
	}
	return id, nil
}

func failed(t session.ResourceType, resp *client.Response) error {
	return fmt.Errorf("%w: %s: status %d: %s", ErrCreateFailed, t, resp.StatusCode, resp.Snippet(256))
}
