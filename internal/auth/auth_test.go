package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-qa/internal/auth"
	"news-qa/internal/client"
	"news-qa/internal/mockapi"
	"news-qa/internal/request"
	"news-qa/internal/session"
)

func newGateway(t *testing.T) (*auth.Gateway, *httptest.Server) {
	t.Helper()
	api := mockapi.New()
	_, err := api.SeedUser("qa@example.com", "password123", "QA")
	require.NoError(t, err)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return auth.NewGateway(request.NewBuilder(nil), client.New(2*time.Second)), srv
}

func TestLogin_ThenWhoAmIReturnsSameUser(t *testing.T) {
	gw, srv := newGateway(t)
	sess := session.New(srv.URL)

	require.NoError(t, gw.Login(context.Background(), sess, "qa@example.com", "password123"))
	require.True(t, sess.Authenticated())
	require.NotEmpty(t, sess.UserID)

	resp, err := gw.WhoAmI(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	id, ok := resp.String("id")
	require.True(t, ok)
	assert.Equal(t, sess.UserID, id)
}

func TestLogin_IsIdempotent(t *testing.T) {
	gw, srv := newGateway(t)
	sess := session.New(srv.URL)

	require.NoError(t, gw.Login(context.Background(), sess, "qa@example.com", "password123"))
	firstUser := sess.UserID
	require.NoError(t, gw.Login(context.Background(), sess, "qa@example.com", "password123"))

	assert.Equal(t, firstUser, sess.UserID)
	assert.NotEmpty(t, sess.AccessToken)
	assert.Empty(t, sess.Created())
}

func TestLogin_RejectedCredentials(t *testing.T) {
	gw, srv := newGateway(t)
	sess := session.New(srv.URL)

	err := gw.Login(context.Background(), sess, "t.email@example.com", "pass")
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrAuthenticationFailed))

	var afe *auth.AuthenticationFailedError
	require.ErrorAs(t, err, &afe)
	assert.Equal(t, http.StatusUnauthorized, afe.StatusCode)
	assert.Contains(t, afe.Body, "invalid credentials")
	assert.False(t, sess.Authenticated())
}

func TestLogin_ResponseWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"id":"u-1"}}`))
	}))
	defer srv.Close()

	gw := auth.NewGateway(request.NewBuilder(nil), client.New(time.Second))
	err := gw.Login(context.Background(), session.New(srv.URL), "a", "b")

	var afe *auth.AuthenticationFailedError
	require.ErrorAs(t, err, &afe)
	assert.Equal(t, http.StatusOK, afe.StatusCode)
	assert.Contains(t, afe.Error(), "accessToken")
}

func TestLogin_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	gw := auth.NewGateway(request.NewBuilder(nil), client.New(time.Second))
	err := gw.Login(context.Background(), session.New(srv.URL), "a", "b")
	assert.True(t, client.IsTransport(err))
}

func TestWhoAmI_WithoutSessionIsPrecondition(t *testing.T) {
	gw, srv := newGateway(t)
	_, err := gw.WhoAmI(context.Background(), session.New(srv.URL))
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}
