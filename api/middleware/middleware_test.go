package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/paytrack/pkg/errors"
	"github.com/angelmondragon/paytrack/pkg/logger"
	"github.com/angelmondragon/paytrack/pkg/types"
)

func scopeEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ClientScopeFromContext(r.Context())))
	})
}

func TestClientScopePrefersHeader(t *testing.T) {
	handler := ClientScope(nil, false)(scopeEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/poll", nil)
	req.Header.Set(ClientIDHeader, "browser-1")
	req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: "cookie-1"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Body.String() != "browser-1" {
		t.Fatalf("expected header scope, got %q", rec.Body.String())
	}
	if rec.Header().Get(ClientIDHeader) != "browser-1" {
		t.Fatalf("expected scope echoed in response header")
	}
}

func TestClientScopeFallsBackToCookie(t *testing.T) {
	handler := ClientScope(nil, false)(scopeEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/poll", nil)
	req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: "cookie-1"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Body.String() != "cookie-1" {
		t.Fatalf("expected cookie scope, got %q", rec.Body.String())
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("existing cookie must not be reissued")
	}
}

func TestClientScopeIssuesCookie(t *testing.T) {
	handler := ClientScope(nil, true)(scopeEcho(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/poll", nil))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != ClientCookieName {
		t.Fatalf("expected %s cookie, got %+v", ClientCookieName, cookies)
	}
	if !cookies[0].HttpOnly || !cookies[0].Secure {
		t.Fatalf("expected httponly secure cookie")
	}
	if rec.Body.String() != cookies[0].Value {
		t.Fatalf("expected generated scope %q in context, got %q", cookies[0].Value, rec.Body.String())
	}
}

func TestClientScopeRejectsInvalidID(t *testing.T) {
	handler := ClientScope(nil, false)(scopeEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/poll", nil)
	req.Header.Set(ClientIDHeader, "bad id;drop")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestScopeLimiterPerScope(t *testing.T) {
	limiter := NewScopeLimiter(60, 2)
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatal("burst should be allowed")
	}
	if limiter.Allow("a") {
		t.Fatal("third immediate call should be limited")
	}
	if !limiter.Allow("b") {
		t.Fatal("other scopes keep their own bucket")
	}

	now = now.Add(time.Second)
	if !limiter.Allow("a") {
		t.Fatal("one token refills per second at 60/min")
	}

	now = now.Add(limiterIdleTTL + time.Minute)
	limiter.Allow("c")
	if got := limiter.size(); got != 1 {
		t.Fatalf("expected idle buckets swept, have %d", got)
	}
}

func TestScopeLimiterDisabled(t *testing.T) {
	limiter := NewScopeLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("a") {
			t.Fatal("disabled limiter must allow everything")
		}
	}
}

func TestPollRateLimitReturns429(t *testing.T) {
	limiter := NewScopeLimiter(1, 1)
	handler := PollRateLimit(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	codes := []int{}
	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/poll", nil)
		req = req.WithContext(WithClientScope(req.Context(), "client-a"))
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}
	if codes[0] != http.StatusAccepted || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
	if got := last.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60 for one start per minute, got %q", got)
	}
}

type fakeWindowStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (f *fakeWindowStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestWindowRateLimitBlocksAfterLimit(t *testing.T) {
	store := &fakeWindowStore{counts: map[string]int64{}}
	policy := NewWindowPolicy("Sandbox", time.Minute, 2)
	handler := WindowRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/simulate", strings.NewReader(`{}`))
		req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i < 2 && rec.Code != http.StatusOK {
			t.Fatalf("expected success before limit, got %d", rec.Code)
		}
		if i == 2 {
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429, got %d", rec.Code)
			}
			var payload struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
				t.Fatalf("unexpected code: %s", payload.Error.Code)
			}
		}
	}
	if store.counts["sandbox:9.9.9.9"] != 3 {
		t.Fatalf("expected counter keyed by policy and first forwarded ip, got %v", store.counts)
	}
}

func TestWindowRateLimitPassThroughWithoutStore(t *testing.T) {
	handler := WindowRateLimit(NewWindowPolicy("sandbox", time.Minute, 1), nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected pass-through, got %d", rec.Code)
		}
	}
}

func TestLoggingKeepsFlusher(t *testing.T) {
	handler := Logging(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Fatal("expected flusher")
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
}

func TestRecovererWritesInternalError(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(types.RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get(types.RequestIDHeader) != "req-1" {
		t.Fatalf("expected request id echoed")
	}
}

func TestRequestIDReplacesUnsafeValues(t *testing.T) {
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for _, id := range []string{strings.Repeat("a", maxRequestIDLen+1), "bad\nid"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(types.RequestIDHeader, id)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		got := rec.Header().Get(types.RequestIDHeader)
		if got == "" || got == id {
			t.Fatalf("expected a minted id for %q, got %q", id, got)
		}
	}
}

func TestRecovererReraisesAbortHandler(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestLoggingRecordsStatusAndQuietsProbes(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	handler := Logging(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if buf.Len() != 0 {
		t.Fatalf("healthy probe should log at debug only, got %s", buf.String())
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/poll", nil))
	entry := buf.String()
	for _, want := range []string{`"status":200`, `"bytes":2`, `"path":"/api/v1/poll"`, `"message":"request.complete"`} {
		if !strings.Contains(entry, want) {
			t.Fatalf("expected %s in %s", want, entry)
		}
	}
}
