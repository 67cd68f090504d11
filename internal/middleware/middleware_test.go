package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamchat/internal/model"
)

type stubVerifier map[string]model.Principal

func (s stubVerifier) Verify(token string) (model.Principal, error) {
	p, ok := s[token]
	if !ok {
		return model.Principal{}, errors.New("bad token")
	}
	return p, nil
}

type recordingSyncer struct {
	synced []model.Principal
	err    error
}

func (r *recordingSyncer) SyncUser(_ context.Context, p model.Principal) error {
	r.synced = append(r.synced, p)
	return r.err
}

func whoami(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(GetUserID(r.Context())))
}

func TestOptionalAuth(t *testing.T) {
	alice := model.Principal{UserID: "alice", Name: "Alice"}
	syncer := &recordingSyncer{}
	h := OptionalAuth(stubVerifier{"good": alice}, syncer)(http.HandlerFunc(whoami))

	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", rec.Body.String())
	})

	t.Run("query token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=good", nil))
		assert.Equal(t, "alice", rec.Body.String())
	})

	t.Run("invalid token is anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer forged")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	require.Len(t, syncer.synced, 2)
	assert.Equal(t, alice, syncer.synced[0])
}

func TestOptionalAuthSyncFailureDoesNotBlock(t *testing.T) {
	syncer := &recordingSyncer{err: errors.New("db down")}
	h := OptionalAuth(stubVerifier{"good": {UserID: "bob"}}, syncer)(http.HandlerFunc(whoami))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "bob", rec.Body.String())
}

func TestRequireAuth(t *testing.T) {
	h := RequireAuth(http.HandlerFunc(whoami))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req = req.WithContext(WithPrincipal(req.Context(), model.Principal{UserID: "carol"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "carol", GetPrincipal(req.Context()).UserID)
}

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Stop()
	h := rl.Handler(http.HandlerFunc(whoami))

	call := func(remote string, userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if userID != "" {
			req = req.WithContext(WithPrincipal(req.Context(), model.Principal{UserID: userID}))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1000", ""))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1001", ""))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002", ""))

	// other IP and authenticated users have their own buckets
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1000", ""))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:1003", "dave"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	defer rl.Stop()
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("k"))
	}
}

// panicCount читает teamchat_http_panics_total{route} из реестра по умолчанию.
func panicCount(t *testing.T, route string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "teamchat_http_panics_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "route" && l.GetValue() == route {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRecoverJSON(t *testing.T) {
	r := chi.NewRouter()
	r.Use(RecoverJSON)
	r.Get("/api/messages/{id}", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	r.Get("/api/partial", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late boom")
	})
	before := panicCount(t, "/api/messages/{id}")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages/m1", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
	assert.Equal(t, before+1, panicCount(t, "/api/messages/{id}"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/partial", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRecoverJSONRethrowsAbort(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRequestLogKeepsResponse(t *testing.T) {
	r := chi.NewRouter()
	r.Use(RequestLog)
	r.Get("/api/channels/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/channels/abc", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "tea", rec.Body.String())
}

func TestRedactQueryToken(t *testing.T) {
	var seenURI, seenToken string
	h := RedactQueryToken(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seenURI = r.RequestURI
		seenToken = r.URL.Query().Get("token")
	}))
	req := httptest.NewRequest(http.MethodGet, "/ws?token=eyJhbGciOiJIUzI1NiJ9.secret", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotContains(t, seenURI, "secret")
	assert.Contains(t, seenURI, "token=eyJh")
	assert.Equal(t, "eyJhbGciOiJIUzI1NiJ9.secret", seenToken)
	assert.Equal(t, "****", MaskToken("abc"))
}

func TestSecureHeadersAndMetrics(t *testing.T) {
	r := chi.NewRouter()
	r.Use(SecureHeaders, Metrics)
	r.Get("/api/channels/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/channels/abc", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
