package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/voicepanel/internal/app"
	"github.com/dkeye/voicepanel/internal/config"
)

func TestStaticResolver(t *testing.T) {
	r, err := New(config.Identity{
		Mode:  config.IdentityStatic,
		Users: []config.StaticUser{{Token: "tok-a", ID: 1, Username: "alice"}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	u, err := r.Resolve(ctx, "tok-a")
	if err != nil || u.ID != 1 || u.Username != "alice" {
		t.Fatalf("user=%+v err=%v", u, err)
	}
	if u, err := r.Resolve(ctx, ""); err != nil || u.Authenticated() {
		t.Fatalf("empty token: user=%+v err=%v", u, err)
	}
	if _, err := r.Resolve(ctx, "nope"); !errors.Is(err, app.ErrInvalidToken) {
		t.Fatalf("unknown token err=%v", err)
	}
}

func TestStaticResolver_RejectsInvalidEntries(t *testing.T) {
	if _, err := NewStaticResolver([]config.StaticUser{{Token: "t", ID: 0, Username: "x"}}); err == nil {
		t.Fatalf("non-positive id should be rejected")
	}
	if _, err := New(config.Identity{Mode: "ldap"}); err == nil {
		t.Fatalf("unknown mode should be rejected")
	}
}

func TestHTTPResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Token good":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":7,"username":"grace","email":"g@example.org"}`))
		case "Token broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL + "/profile/")
	ctx := context.Background()

	u, err := r.Resolve(ctx, "good")
	if err != nil || u.ID != 7 || u.Username != "grace" {
		t.Fatalf("user=%+v err=%v", u, err)
	}
	if _, err := r.Resolve(ctx, "bad"); !errors.Is(err, app.ErrInvalidToken) {
		t.Fatalf("401 err=%v", err)
	}
	if _, err := r.Resolve(ctx, "broken"); !errors.Is(err, app.ErrIdentityUnavailable) {
		t.Fatalf("500 err=%v", err)
	}
	if u, err := r.Resolve(ctx, ""); err != nil || u.Authenticated() {
		t.Fatalf("empty token should be anonymous without a call: %+v %v", u, err)
	}
}
