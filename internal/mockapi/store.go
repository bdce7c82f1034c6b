package mockapi

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	errNotFound  = errors.New("not found")
	errForbidden = errors.New("forbidden")
	errConflict  = errors.New("already exists")
)

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	password  string
}

type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	Tags      []string  `json:"tags"`
	Image     string    `json:"image,omitempty"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}

type Comment struct {
	ID       string `json:"id"`
	PostID   string `json:"postId"`
	Content  string `json:"content"`
	AuthorID string `json:"authorId"`
}

// Store keeps the mock API state in memory. All methods return copies.
type Store struct {
	mu       sync.Mutex
	users    map[string]*User
	byEmail  map[string]string
	posts    map[string]*Post
	order    []string
	comments map[string]*Comment
}

func NewStore() *Store {
	return &Store{
		users:    map[string]*User{},
		byEmail:  map[string]string{},
		posts:    map[string]*Post{},
		comments: map[string]*Comment{},
	}
}

func (s *Store) CreateUser(email, password, firstName string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byEmail[email]; dup {
		return User{}, errConflict
	}
	u := &User{ID: uuid.NewString(), Email: email, FirstName: firstName, password: password}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return *u, nil
}

func (s *Store) Authenticate(email, password string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok || s.users[id].password != password {
		return User{}, false
	}
	return *s.users[id], true
}

func (s *Store) User(id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, errNotFound
	}
	return *u, nil
}

func (s *Store) Users() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b User) int {
		switch {
		case a.Email < b.Email:
			return -1
		case a.Email > b.Email:
			return 1
		}
		return 0
	})
	return out
}

func (s *Store) UpdateUser(id string, apply func(*User)) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, errNotFound
	}
	oldEmail := u.Email
	apply(u)
	if u.Email != oldEmail {
		delete(s.byEmail, oldEmail)
		s.byEmail[u.Email] = u.ID
	}
	return *u, nil
}

func (s *Store) CreatePost(p Post) Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	p.Tags = slices.Clone(p.Tags)
	s.posts[p.ID] = &p
	s.order = append(s.order, p.ID)
	return p
}

func (s *Store) Post(id string) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return Post{}, errNotFound
	}
	return clonePost(p), nil
}

func (s *Store) Posts() []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Post, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clonePost(s.posts[id]))
	}
	return out
}

func (s *Store) UpdatePost(id, userID string, apply func(*Post)) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return Post{}, errNotFound
	}
	if p.AuthorID != userID {
		return Post{}, errForbidden
	}
	apply(p)
	return clonePost(p), nil
}

// DeletePost removes the post and its comments.
func (s *Store) DeletePost(id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return errNotFound
	}
	if p.AuthorID != userID {
		return errForbidden
	}
	delete(s.posts, id)
	s.order = slices.DeleteFunc(s.order, func(x string) bool { return x == id })
	for cid, c := range s.comments {
		if c.PostID == id {
			delete(s.comments, cid)
		}
	}
	return nil
}

func (s *Store) CreateComment(c Comment) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[c.PostID]; !ok {
		return Comment{}, errNotFound
	}
	c.ID = uuid.NewString()
	s.comments[c.ID] = &c
	return c, nil
}

func (s *Store) Comment(id string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return Comment{}, errNotFound
	}
	return *c, nil
}

func (s *Store) UpdateComment(id, userID, content string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return Comment{}, errNotFound
	}
	if c.AuthorID != userID {
		return Comment{}, errForbidden
	}
	c.Content = content
	return *c, nil
}

func (s *Store) DeleteComment(id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return errNotFound
	}
	if c.AuthorID != userID {
		return errForbidden
	}
	delete(s.comments, id)
	return nil
}

// Counts reports how many posts and comments currently exist.
func (s *Store) Counts() (posts, comments int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts), len(s.comments)
}

func clonePost(p *Post) Post {
	out := *p
	out.Tags = slices.Clone(p.Tags)
	return out
}
