// Package mockapi is an in-memory implementation of the news API used for
// local runs (cmd/apimock) and end-to-end tests of the harness.
package mockapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ctxUserID = "user_id"

type Server struct {
	store  *Store
	secret []byte
	ttl    time.Duration
	engine *gin.Engine

	mu   sync.Mutex
	hits map[string]int
}

type Option func(*Server)

func WithSecret(secret []byte) Option { return func(s *Server) { s.secret = secret } }

func WithTokenTTL(d time.Duration) Option { return func(s *Server) { s.ttl = d } }

func New(opts ...Option) *Server {
	s := &Server{
		store:  NewStore(),
		secret: []byte(uuid.NewString()),
		ttl:    time.Hour,
		hits:   map[string]int{},
	}
	for _, o := range opts {
		o(s)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.countHits())

	r.POST("/auth/signup", s.signup)
	r.POST("/auth/login", s.login)

	authed := r.Group("/", s.requireUser())
	authed.GET("/auth/whoami", s.whoAmI)
	authed.GET("/users", s.listUsers)
	authed.GET("/users/:id", s.getUser)
	authed.PATCH("/users/:id", s.updateUser)
	authed.GET("/posts", s.listPosts)
	authed.POST("/posts", s.createPost)
	authed.PATCH("/posts/:id", s.updatePost)
	authed.DELETE("/posts/:id", s.deletePost)
	authed.POST("/comments", s.createComment)
	authed.PATCH("/comments/:id", s.updateComment)
	authed.DELETE("/comments/:id", s.deleteComment)

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Store() *Store { return s.store }

// SeedUser registers an account, typically the harness login user.
func (s *Server) SeedUser(email, password, firstName string) (User, error) {
	return s.store.CreateUser(email, password, firstName)
}

// Hits returns how many requests reached a route, e.g. Hits("POST", "/posts").
func (s *Server) Hits(method, route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+route]
}

func (s *Server) countHits() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		s.mu.Lock()
		s.hits[c.Request.Method+" "+route]++
		s.mu.Unlock()
		c.Next()
	}
}

// ---- auth ----

type credentials struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
}

func (s *Server) issueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parseToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c.GetHeader("Authorization"))
		if token == "" {
			abort(c, http.StatusUnauthorized, "authentication required")
			return
		}
		userID, err := s.parseToken(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid authentication token")
			return
		}
		if _, err := s.store.User(userID); err != nil {
			abort(c, http.StatusUnauthorized, "unknown user")
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func bearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func (s *Server) signup(c *gin.Context) {
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		abort(c, http.StatusBadRequest, "invalid json body")
		return
	}
	if missing := missingFields(map[string]string{"email": in.Email, "password": in.Password}); len(missing) > 0 {
		validation(c, missing)
		return
	}
	u, err := s.store.CreateUser(in.Email, in.Password, in.FirstName)
	if err != nil {
		abort(c, http.StatusBadRequest, "email already registered")
		return
	}
	s.respondWithToken(c, http.StatusCreated, u)
}

func (s *Server) login(c *gin.Context) {
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		abort(c, http.StatusBadRequest, "invalid json body")
		return
	}
	if missing := missingFields(map[string]string{"email": in.Email, "password": in.Password}); len(missing) > 0 {
		validation(c, missing)
		return
	}
	u, ok := s.store.Authenticate(in.Email, in.Password)
	if !ok {
		abort(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.respondWithToken(c, http.StatusOK, u)
}

func (s *Server) respondWithToken(c *gin.Context, status int, u User) {
	token, err := s.issueToken(u.ID)
	if err != nil {
		abort(c, http.StatusInternalServerError, "sign token")
		return
	}
	c.JSON(status, gin.H{"accessToken": token, "user": u})
}

func (s *Server) whoAmI(c *gin.Context) {
	u, err := s.store.User(c.GetString(ctxUserID))
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ---- users ----

func (s *Server) listUsers(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Users())
}

func (s *Server) getUser(c *gin.Context) {
	u, err := s.store.User(c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) updateUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.store.User(id); err != nil {
		storeError(c, err)
		return
	}
	if id != c.GetString(ctxUserID) {
		abort(c, http.StatusForbidden, "cannot update another user")
		return
	}
	fields, err := formOrJSON(c)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	u, err := s.store.UpdateUser(id, func(u *User) {
		if v, ok := fields["firstName"]; ok {
			u.FirstName = first(v)
		}
		if v, ok := fields["lastName"]; ok {
			u.LastName = first(v)
		}
		if v, ok := fields["email"]; ok && first(v) != "" {
			u.Email = first(v)
		}
	})
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ---- posts ----

func (s *Server) listPosts(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Posts())
}

func (s *Server) createPost(c *gin.Context) {
	if _, err := c.MultipartForm(); err != nil {
		abort(c, http.StatusBadRequest, "multipart/form-data body required")
		return
	}
	p := Post{
		Title:    c.PostForm("title"),
		Text:     c.PostForm("text"),
		Tags:     nonEmpty(c.PostFormArray("tags")),
		AuthorID: c.GetString(ctxUserID),
	}
	missing := missingFields(map[string]string{"title": p.Title, "text": p.Text})
	if len(p.Tags) == 0 {
		missing = append(missing, "tags")
	}
	if len(missing) > 0 {
		validation(c, missing)
		return
	}
	if fh, err := c.FormFile("file"); err == nil {
		p.Image = fh.Filename
	}
	c.JSON(http.StatusCreated, s.store.CreatePost(p))
}

func (s *Server) updatePost(c *gin.Context) {
	fields, err := formOrJSON(c)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.store.UpdatePost(c.Param("id"), c.GetString(ctxUserID), func(p *Post) {
		if v, ok := fields["title"]; ok && first(v) != "" {
			p.Title = first(v)
		}
		if v, ok := fields["text"]; ok && first(v) != "" {
			p.Text = first(v)
		}
		if v, ok := fields["tags"]; ok && len(nonEmpty(v)) > 0 {
			p.Tags = nonEmpty(v)
		}
	})
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deletePost(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.DeletePost(id, c.GetString(ctxUserID)); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// ---- comments ----

type commentBody struct {
	PostID  string `json:"postId"`
	Content string `json:"content"`
	Text    string `json:"text"`
}

func (b commentBody) body() string {
	if b.Content != "" {
		return b.Content
	}
	return b.Text
}

func (s *Server) createComment(c *gin.Context) {
	var in commentBody
	if err := c.ShouldBindJSON(&in); err != nil {
		abort(c, http.StatusBadRequest, "invalid json body")
		return
	}
	if missing := missingFields(map[string]string{"postId": in.PostID, "content": in.body()}); len(missing) > 0 {
		validation(c, missing)
		return
	}
	cm, err := s.store.CreateComment(Comment{PostID: in.PostID, Content: in.body(), AuthorID: c.GetString(ctxUserID)})
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

func (s *Server) updateComment(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		abort(c, http.StatusBadRequest, "malformed comment id")
		return
	}
	var in commentBody
	if err := c.ShouldBindJSON(&in); err != nil {
		abort(c, http.StatusBadRequest, "invalid json body")
		return
	}
	if in.body() == "" {
		validation(c, []string{"content"})
		return
	}
	cm, err := s.store.UpdateComment(id, c.GetString(ctxUserID), in.body())
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cm)
}

func (s *Server) deleteComment(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		abort(c, http.StatusBadRequest, "malformed comment id")
		return
	}
	if err := s.store.DeleteComment(id, c.GetString(ctxUserID)); err != nil {
		storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- helpers ----

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func validation(c *gin.Context, missing []string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":  "validation failed",
		"fields": missing,
	})
}

func storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errNotFound):
		abort(c, http.StatusNotFound, "not found")
	case errors.Is(err, errForbidden):
		abort(c, http.StatusForbidden, "forbidden")
	default:
		abort(c, http.StatusInternalServerError, err.Error())
	}
}

func missingFields(fields map[string]string) []string {
	var out []string
	for _, k := range []string{"email", "password", "title", "text", "postId", "content"} {
		if v, ok := fields[k]; ok && strings.TrimSpace(v) == "" {
			out = append(out, k)
		}
	}
	return out
}

// formOrJSON reads a PATCH body that may be multipart or JSON.
func formOrJSON(c *gin.Context) (map[string][]string, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, fmt.Errorf("multipart body: %w", err)
		}
		return form.Value, nil
	}
	if c.Request.ContentLength == 0 {
		return map[string][]string{}, nil
	}
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		return nil, fmt.Errorf("json body: %w", err)
	}
	out := make(map[string][]string, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case []any:
			for _, e := range x {
				out[k] = append(out[k], fmt.Sprint(e))
			}
		case nil:
		default:
			out[k] = []string{fmt.Sprint(x)}
		}
	}
	return out, nil
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
