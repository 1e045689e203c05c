package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// portalStub serves a login endpoint and one content page, counting logins.
type portalStub struct {
	logins   atomic.Int64
	password string
}

func (p *portalStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		p.logins.Add(1)
		if r.FormValue("password") != p.password {
			w.Write([]byte(`<html><body><form><input type="password" name="password"></form></body></html>`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "portal_session", Value: "tok-1"})
		w.Write([]byte(`<html><body><a href="/logout">logout</a></body></html>`))
	})
	mux.HandleFunc("/departments", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><table><tr><td><a href="?department=9">Informatics</a></td></tr></table></body></html>`))
	})
	return mux
}

func newTestSession(t *testing.T, srv *httptest.Server, auth *Authenticator, cookieFile string) *Session {
	t.Helper()
	s, err := New(Config{
		BaseURL:    srv.URL,
		Username:   "u123",
		Password:   "hunter2",
		CookieFile: cookieFile,
	}, auth, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestGetAuthenticatesOnceWithinTTL(t *testing.T) {
	t.Parallel()

	stub := &portalStub{password: "hunter2"}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	auth := NewAuthenticator(15 * time.Minute)
	s := newTestSession(t, srv, auth, "")

	doc, err := s.Get(context.Background(), srv.URL+"/departments")
	require.NoError(t, err)
	require.Equal(t, "Informatics", doc.Find("a").First().Text())

	_, err = s.Get(context.Background(), srv.URL+"/departments")
	require.NoError(t, err)
	require.Equal(t, int64(1), stub.logins.Load())
}

func TestEnsureReauthenticatesAfterTTL(t *testing.T) {
	t.Parallel()

	stub := &portalStub{password: "hunter2"}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	auth := NewAuthenticator(15 * time.Minute)
	current := time.Now()
	auth.now = func() time.Time { return current }

	s := newTestSession(t, srv, auth, "")
	_, err := s.Get(context.Background(), srv.URL+"/departments")
	require.NoError(t, err)

	// Still fresh at 14 minutes, stale at 16.
	current = current.Add(14 * time.Minute)
	_, err = s.Get(context.Background(), srv.URL+"/departments")
	require.NoError(t, err)
	require.Equal(t, int64(1), stub.logins.Load())

	current = current.Add(2 * time.Minute)
	_, err = s.Get(context.Background(), srv.URL+"/departments")
	require.NoError(t, err)
	require.Equal(t, int64(2), stub.logins.Load())
}

func TestInvalidateForcesReauth(t *testing.T) {
	t.Parallel()

	stub := &portalStub{password: "hunter2"}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	auth := NewAuthenticator(15 * time.Minute)
	s := newTestSession(t, srv, auth, "")

	_, err := s.Get(context.Background(), srv.URL+"/departments")
	require.NoError(t, err)
	auth.Invalidate()
	_, err = s.Get(context.Background(), srv.URL+"/departments")
	require.NoError(t, err)
	require.Equal(t, int64(2), stub.logins.Load())
}

func TestBadCredentials(t *testing.T) {
	t.Parallel()

	stub := &portalStub{password: "other"}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	s := newTestSession(t, srv, NewAuthenticator(0), "")
	_, err := s.Get(context.Background(), srv.URL+"/departments")
	require.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestSharedCookieFileIsConstructionError(t *testing.T) {
	t.Parallel()

	stub := &portalStub{password: "hunter2"}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	auth := NewAuthenticator(0)
	path := filepath.Join(t.TempDir(), "cookies.json")

	_ = newTestSession(t, srv, auth, path)
	_, err := New(Config{
		BaseURL:    srv.URL,
		Username:   "u123",
		Password:   "hunter2",
		CookieFile: path,
	}, auth, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already in use")
}

func TestCookiesPersistAcrossSessions(t *testing.T) {
	t.Parallel()

	stub := &portalStub{password: "hunter2"}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "cookies.json")

	first := newTestSession(t, srv, NewAuthenticator(0), path)
	_, err := first.Get(context.Background(), srv.URL+"/departments")
	require.NoError(t, err)

	// A fresh session (fresh coordinator, same file) starts with the
	// persisted cookie already in its jar.
	second := newTestSession(t, srv, NewAuthenticator(0), path)
	cookies := second.jar.Cookies(second.base)
	require.Len(t, cookies, 1)
	require.Equal(t, "portal_session", cookies[0].Name)
}

func TestMissingConfigIsRejected(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Username: "u", Password: "p"}, NewAuthenticator(0), nil)
	require.Error(t, err)

	_, err = New(Config{BaseURL: "http://example.com"}, NewAuthenticator(0), nil)
	require.Error(t, err)

	_, err = New(Config{BaseURL: "http://example.com", Username: "u", Password: "p"}, nil, nil)
	require.Error(t, err)
}
