package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/service"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
	status int
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	if d.status != 0 {
		w.WriteHeader(d.status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type verifierFunc func(ctx context.Context, token string) (service.Identity, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (service.Identity, error) {
	return f(ctx, token)
}

var testVerifier = verifierFunc(func(ctx context.Context, token string) (service.Identity, error) {
	switch token {
	case "good":
		return service.Identity{AccountID: "alice", SessionID: "s1"}, nil
	case "broken":
		return service.Identity{}, errors.New("db down")
	}
	return service.Identity{}, gateway.ErrUnauthorized
})

func TestSessionAuth(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		header     string
		wantCalled bool
		wantCode   int
	}{
		{"missing token", "/v1/posts", "", false, http.StatusUnauthorized},
		{"wrong scheme", "/v1/posts", "Basic good", false, http.StatusUnauthorized},
		{"invalid token", "/v1/posts", "Bearer nope", false, http.StatusUnauthorized},
		{"verifier failure", "/v1/posts", "Bearer broken", false, http.StatusInternalServerError},
		{"valid token", "/v1/posts", "bearer good", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dummy := &dummyHandler{}
			h := SessionAuth(testVerifier)(dummy)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			h.ServeHTTP(rec, req)

			if dummy.called != tt.wantCalled {
				t.Errorf("next called = %v; want %v", dummy.called, tt.wantCalled)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d; want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestSessionAuth_StoresIdentity(t *testing.T) {
	dummy := &dummyHandler{}
	h := SessionAuth(testVerifier)(dummy)
	req := httptest.NewRequest("GET", "/v1/account", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(httptest.NewRecorder(), req)

	id, ok := IdentityFromContext(dummy.ctx)
	if !ok || id.AccountID != "alice" || id.SessionID != "s1" {
		t.Errorf("identity = %+v, %v", id, ok)
	}
}

func TestIdentityFromContext(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Error("expected no identity in empty context")
	}
	ctx := WithIdentity(context.Background(), service.Identity{AccountID: "bob"})
	if id, ok := IdentityFromContext(ctx); !ok || id.AccountID != "bob" {
		t.Errorf("identity = %+v, %v", id, ok)
	}
}

func TestWithRequestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := WithRequestLogging(zap.New(core))(&dummyHandler{status: http.StatusTeapot})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/posts", nil))

	entries := logs.FilterMessage("request handled").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries; want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != "POST" || fields["path"] != "/v1/posts" || fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("unexpected fields: %v", fields)
	}

	h = WithRequestLogging(zap.New(core))(&dummyHandler{status: http.StatusBadGateway})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/posts", nil))
	if n := logs.FilterMessage("request failed").Len(); n != 1 {
		t.Errorf("logged %d failures; want 1", n)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/v1/posts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/v1/posts/p"+string(rune('0'+i)), nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/v1/posts/{id}", "404"))
	if got != 3 {
		t.Errorf("request counter = %v; want 3", got)
	}
	if n := testutil.CollectAndCount(m.latency); n != 1 {
		t.Errorf("latency series = %d; want 1", n)
	}
}
