package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/localvakil/vakil/pkg/kv"
	"github.com/localvakil/vakil/pkg/vlog"
)

func newTestManager(t *testing.T) (*Manager, *kv.MemoryStore) {
	t.Helper()
	store := kv.NewMemoryStore()
	m := NewManager(store, Config{CookieName: "sid", TTL: time.Hour}, vlog.NewDiscard())
	return m, store
}

func sessionCookie(t *testing.T, res *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestMiddlewareStartsSession(t *testing.T) {
	m, store := newTestManager(t)

	var seen *State
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		seen.SetCSRFToken("token")
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == nil || !seen.Initiated {
		t.Fatalf("handler saw state %+v", seen)
	}

	c := sessionCookie(t, rec.Result(), "sid")
	if c == nil {
		t.Fatal("no session cookie issued")
	}
	if c.Value != seen.ID {
		t.Errorf("cookie value %q, state id %q", c.Value, seen.ID)
	}
	if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.Path != "/" || c.Domain != "" {
		t.Errorf("cookie attributes = %+v", c)
	}
	if c.Secure {
		t.Error("plain http request must not get a Secure cookie")
	}
	if store.Len() != 1 {
		t.Errorf("store has %d records, want 1", store.Len())
	}
}

// touch is a handler that stores something in the session.
var touch = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	FromContext(r.Context()).AddFlash("info", "seen")
})

func TestMiddlewareSkipsUntouchedSessions(t *testing.T) {
	m, store := newTestManager(t)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			t.Error("no state on context")
		}
		w.Write([]byte("ok"))
	}))

	for i := 0; i < 500; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if c := sessionCookie(t, rec.Result(), "sid"); c != nil {
			t.Fatalf("request %d got a cookie for an empty session", i)
		}
	}
	if store.Len() != 0 {
		t.Errorf("store has %d records after cookieless requests, want 0", store.Len())
	}
}

func TestMiddlewareSecureBehindProxy(t *testing.T) {
	m, _ := newTestManager(t)
	h := m.Middleware(touch)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	c := sessionCookie(t, rec.Result(), "sid")
	if c == nil || !c.Secure {
		t.Fatalf("cookie = %+v, want Secure", c)
	}
}

func TestMiddlewareResumesSession(t *testing.T) {
	m, _ := newTestManager(t)

	step := 0
	var got []Flash
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := FromContext(r.Context())
		if step == 0 {
			st.AddFlash("success", "hello")
		} else {
			got = st.DrainFlash()
		}
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	c := sessionCookie(t, rec.Result(), "sid")
	if c == nil {
		t.Fatal("no cookie on first request")
	}

	step = 1
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if len(got) != 1 || got[0].Message != "hello" {
		t.Fatalf("flash = %+v", got)
	}
	if sessionCookie(t, rec.Result(), "sid") != nil {
		t.Error("resumed session should not reissue the cookie")
	}

	st, err := m.Load(context.Background(), c.Value)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Flash) != 0 {
		t.Errorf("drained flash was not persisted: %+v", st.Flash)
	}
}

func TestMiddlewareReplacesUnknownID(t *testing.T) {
	m, _ := newTestManager(t)
	h := m.Middleware(touch)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "attacker-chosen"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	c := sessionCookie(t, rec.Result(), "sid")
	if c == nil || c.Value == "attacker-chosen" {
		t.Fatalf("unknown session id was adopted: %+v", c)
	}
}

func TestRegenerateDropsOldRecord(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	st := &State{Initiated: true}
	if err := m.Regenerate(ctx, st); err != nil {
		t.Fatal(err)
	}
	first := st.ID

	st.SetUser(User{ID: uuid.New(), Name: "A"})
	if err := m.Regenerate(ctx, st); err != nil {
		t.Fatal(err)
	}
	if st.ID == first {
		t.Fatal("id did not change")
	}
	if _, err := m.Load(ctx, first); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("old record still loadable: %v", err)
	}
	loaded, err := m.Load(ctx, st.ID)
	if err != nil || loaded.UserName != "A" {
		t.Fatalf("new record = %+v, %v", loaded, err)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d records, want 1", store.Len())
	}
}

func TestDestroyExpiresCookie(t *testing.T) {
	m, store := newTestManager(t)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.Destroy(r.Context(), FromContext(r.Context())); err != nil {
			t.Errorf("Destroy: %v", err)
		}
		http.Redirect(w, r, "/", http.StatusFound)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/logout", nil))

	header := strings.Join(rec.Result().Header.Values("Set-Cookie"), "\n")
	if !strings.Contains(header, "sid=;") || !strings.Contains(header, "Max-Age=0") {
		t.Errorf("Set-Cookie = %q, want an expired sid cookie", header)
	}
	if store.Len() != 0 {
		t.Errorf("store has %d records after destroy", store.Len())
	}
}

func TestCorruptRecordIsReplaced(t *testing.T) {
	m, store := newTestManager(t)
	store.Set(context.Background(), kvPrefixSession+"broken", []byte("{not json"), time.Hour)

	h := m.Middleware(touch)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "broken"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if c := sessionCookie(t, rec.Result(), "sid"); c == nil || c.Value == "broken" {
		t.Errorf("cookie = %+v", c)
	}
}

func TestCurrentUserID(t *testing.T) {
	var nilState *State
	if _, ok := nilState.CurrentUserID(); ok {
		t.Error("nil state reported a user")
	}

	st := &State{UserID: "not-a-uuid"}
	if _, ok := st.CurrentUserID(); ok {
		t.Error("garbage user id accepted")
	}

	id := uuid.New()
	st.SetUser(User{ID: id})
	got, ok := st.CurrentUserID()
	if !ok || got != id {
		t.Errorf("CurrentUserID = %v, %v", got, ok)
	}
}
