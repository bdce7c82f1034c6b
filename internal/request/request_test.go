package request_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-qa/internal/endpoint"
	"news-qa/internal/request"
	"news-qa/internal/session"
)

type part struct {
	name, filename, contentType, body string
}

func readParts(t *testing.T, req *http.Request) []part {
	t.Helper()
	mt, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mt)

	mr := multipart.NewReader(req.Body, params["boundary"])
	var out []part
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(p)
		require.NoError(t, err)
		out = append(out, part{
			name:        p.FormName(),
			filename:    p.FileName(),
			contentType: p.Header.Get("Content-Type"),
			body:        string(b),
		})
	}
	return out
}

func authed() *session.Context {
	s := session.New("http://api.test")
	s.SetCredentials("tok-1", "u-1")
	return s
}

func TestBuild_JSONBody(t *testing.T) {
	b := request.NewBuilder(nil)
	req, err := b.Build(context.Background(), request.Descriptor{
		Endpoint: endpoint.CreateComment,
		Body:     request.BodyJSON,
		JSON:     map[string]any{"postId": "p1", "content": "hi"},
	}, authed())
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://api.test/comments", req.URL.String())
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))

	var got map[string]any
	require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
	assert.Equal(t, map[string]any{"postId": "p1", "content": "hi"}, got)
}

func TestBuild_MultipartRepeatedFieldsAndFile(t *testing.T) {
	b := request.NewBuilder(nil)
	req, err := b.Build(context.Background(), request.Descriptor{
		Endpoint: endpoint.CreatePost,
		Body:     request.BodyMultipart,
		Multipart: []request.Field{
			{Name: "title", Value: "T"},
			{Name: "text", Value: "X"},
			{Name: "tags", Values: []string{"tag1", "tag2"}},
			{Name: "file", File: &request.File{Content: []byte("PNG"), Filename: "sc.png", MimeType: "image/png"}},
		},
	}, authed())
	require.NoError(t, err)

	parts := readParts(t, req)
	require.Len(t, parts, 5)
	assert.Equal(t, part{name: "title", body: "T"}, parts[0])
	assert.Equal(t, part{name: "text", body: "X"}, parts[1])
	assert.Equal(t, part{name: "tags", body: "tag1"}, parts[2])
	assert.Equal(t, part{name: "tags", body: "tag2"}, parts[3])
	assert.Equal(t, part{name: "file", filename: "sc.png", contentType: "image/png", body: "PNG"}, parts[4])
}

func TestBuild_MultipartFileFromPathDefaultsMime(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "note.bin")
	require.NoError(t, os.WriteFile(fp, []byte("payload"), 0o644))

	req, err := request.NewBuilder(nil).Build(context.Background(), request.Descriptor{
		Endpoint:  endpoint.CreatePost,
		Body:      request.BodyMultipart,
		Multipart: []request.Field{{Name: "file", File: &request.File{Path: fp}}},
	}, authed())
	require.NoError(t, err)

	parts := readParts(t, req)
	require.Len(t, parts, 1)
	assert.Equal(t, "note.bin", parts[0].filename)
	assert.Equal(t, request.DefaultFileMimeType, parts[0].contentType)
	assert.Equal(t, "payload", parts[0].body)
}

func TestBuild_MissingFileFails(t *testing.T) {
	_, err := request.NewBuilder(nil).Build(context.Background(), request.Descriptor{
		Endpoint:  endpoint.CreatePost,
		Body:      request.BodyMultipart,
		Multipart: []request.Field{{Name: "file", File: &request.File{Path: "/does/not/exist.png"}}},
	}, authed())
	assert.Error(t, err)
}

func TestBuild_AuthModes(t *testing.T) {
	b := request.NewBuilder(nil)

	req, err := b.Build(context.Background(), request.Descriptor{Endpoint: endpoint.WhoAmI, Auth: request.AuthNone}, authed())
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))

	req, err = b.Build(context.Background(), request.Descriptor{Endpoint: endpoint.WhoAmI, Auth: request.AuthToken, Token: "Token123"}, authed())
	require.NoError(t, err)
	assert.Equal(t, "Bearer Token123", req.Header.Get("Authorization"))

	// Login does not require auth, so an anonymous session is fine and sends no header.
	req, err = b.Build(context.Background(), request.Descriptor{Endpoint: endpoint.Login, Body: request.BodyJSON}, session.New("http://api.test"))
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestBuild_RequiresSessionToken(t *testing.T) {
	_, err := request.NewBuilder(nil).Build(context.Background(), request.Descriptor{Endpoint: endpoint.WhoAmI}, session.New("http://api.test"))
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestBuild_PathParamsAndQuery(t *testing.T) {
	req, err := request.NewBuilder(nil).Build(context.Background(), request.Descriptor{
		Endpoint:   endpoint.UserInfo,
		PathParams: map[string]string{"id": "u-7"},
		Query:      map[string]string{"page": "2"},
		Headers:    map[string]string{"X-Trace": "abc"},
	}, authed())
	require.NoError(t, err)
	assert.Equal(t, "http://api.test/users/u-7?page=2", req.URL.String())
	assert.Equal(t, "abc", req.Header.Get("X-Trace"))
	assert.Nil(t, req.Body)
}

func TestBuild_UnresolvedPlaceholder(t *testing.T) {
	_, err := request.NewBuilder(nil).Build(context.Background(), request.Descriptor{Endpoint: endpoint.DeletePost}, authed())
	assert.ErrorIs(t, err, endpoint.ErrUnresolvedPlaceholder)
}

func TestRequireFields(t *testing.T) {
	d := request.Descriptor{
		Endpoint: endpoint.CreateComment,
		Body:     request.BodyJSON,
		JSON:     map[string]any{"content": "no post id"},
	}
	err := request.RequireFields(d, "postId", "content")
	require.Error(t, err)
	assert.ErrorIs(t, err, request.ErrMissingRequiredField)

	var mrf *request.MissingRequiredFieldError
	require.ErrorAs(t, err, &mrf)
	assert.Equal(t, []string{"postId"}, mrf.Fields)

	mp := request.Descriptor{
		Endpoint:  endpoint.CreatePost,
		Body:      request.BodyMultipart,
		Multipart: []request.Field{{Name: "title", Value: "T"}, {Name: "tags", Values: []string{"a"}}},
	}
	assert.NoError(t, request.RequireFields(mp, "title", "tags"))
	assert.Error(t, request.RequireFields(mp, "text"))
}
