package session_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"news-qa/internal/session"
)

func TestNew_TrimsBaseURLAndAssignsID(t *testing.T) {
	a := session.New("http://api.local/")
	b := session.New("http://api.local")
	if a.BaseURL != "http://api.local" {
		t.Fatalf("BaseURL = %q", a.BaseURL)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("session ids must be unique and non-empty: %q %q", a.ID, b.ID)
	}
	if a.Authenticated() {
		t.Fatal("fresh session must not be authenticated")
	}
}

func TestSetCredentials_Replaces(t *testing.T) {
	s := session.New("http://x")
	s.SetCredentials("t1", "u1")
	s.SetCredentials("t2", "u1")
	if s.AccessToken != "t2" || s.UserID != "u1" {
		t.Fatalf("got token=%q user=%q", s.AccessToken, s.UserID)
	}
}

func TestRecordLookupRelease(t *testing.T) {
	s := session.New("http://x")
	s.Record(session.Post, "p1")
	s.Record(session.Comment, "c1")

	if id, ok := s.Lookup(session.Post); !ok || id != "p1" {
		t.Fatalf("Lookup(post) = %q, %v", id, ok)
	}
	if _, ok := s.Lookup(session.User); ok {
		t.Fatal("no user was recorded")
	}

	if id, ok := s.Release(session.Comment); !ok || id != "c1" {
		t.Fatalf("Release(comment) = %q, %v", id, ok)
	}
	if _, ok := s.Lookup(session.Comment); ok {
		t.Fatal("released comment must not be returned by Lookup")
	}

	want := []session.CreatedResource{
		{Type: session.Post, ID: "p1", OwnerSessionID: s.ID},
		{Type: session.Comment, ID: "c1", OwnerSessionID: s.ID, Released: true},
	}
	if diff := cmp.Diff(want, s.Created()); diff != "" {
		t.Fatalf("created mismatch (-want +got):\n%s", diff)
	}
}

func TestVars(t *testing.T) {
	s := session.New("http://x")
	s.SetCredentials("tok", "u-1")
	s.Record(session.Post, "p-9")

	want := map[string]string{
		"session.userId": "u-1",
		"session.token":  "tok",
		"post.id":        "p-9",
	}
	if diff := cmp.Diff(want, s.Vars()); diff != "" {
		t.Fatalf("vars mismatch (-want +got):\n%s", diff)
	}
}

func TestParseResourceType(t *testing.T) {
	for _, in := range []string{"post", " Post ", "COMMENT", "user"} {
		if _, err := session.ParseResourceType(in); err != nil {
			t.Fatalf("ParseResourceType(%q): %v", in, err)
		}
	}
	if _, err := session.ParseResourceType("attachment"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
