package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
)

type fakeCaseService struct {
	resolve   func(ctx context.Context, caseID string) (domain.CaseResolved, error)
	snapshot  domain.CaseSnapshot
	stateErr  error
	lastState string
}

func (f *fakeCaseService) ResolveCase(ctx context.Context, caseID string) (domain.CaseResolved, error) {
	return f.resolve(ctx, caseID)
}

func (f *fakeCaseService) GetCaseState(_ context.Context, caseID string) (domain.CaseSnapshot, error) {
	f.lastState = caseID
	return f.snapshot, f.stateErr
}

type envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(svc *fakeCaseService, limiter *RateLimiter) http.Handler {
	return NewRouter(RouterOptions{
		Cases:   NewHandler(svc),
		Limiter: limiter,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("metrics")) }),
	})
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rec, env
}

func TestResolveCaseReturnsSummary(t *testing.T) {
	svc := &fakeCaseService{resolve: func(_ context.Context, caseID string) (domain.CaseResolved, error) {
		return domain.CaseResolved{CaseID: caseID, Summary: "LogAnalysisResults: [A]", ResolvedCount: 1}, nil
	}}
	rec, env := doRequest(t, newTestRouter(svc, nil), http.MethodPost, "/api/v1/cases/resolve", `{"caseId":"case-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got domain.CaseResolved
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if got.CaseID != "case-1" || got.ResolvedCount != 1 {
		t.Fatalf("unexpected body %+v", got)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestResolveCaseTimeoutIsSuccessEnvelope(t *testing.T) {
	svc := &fakeCaseService{resolve: func(context.Context, string) (domain.CaseResolved, error) {
		return domain.TimeoutResult(), nil
	}}
	rec, env := doRequest(t, newTestRouter(svc, nil), http.MethodPost, "/api/v1/cases/resolve", `{"caseId":"case-2"}`)
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Fatalf("expected success envelope, got %d %+v", rec.Code, env)
	}
	if !strings.Contains(string(env.Data), `"summary":"Request timed out"`) {
		t.Fatalf("expected timeout summary, got %s", env.Data)
	}
}

func TestResolveCaseErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrCaseBusy, http.StatusConflict, "CASE_BUSY"},
		{domain.ErrUnsupportedMode, http.StatusBadRequest, "UNSUPPORTED_MODE"},
		{domain.ErrInvalidInput, http.StatusBadRequest, "VALIDATION_ERROR"},
		{domain.ErrStorageUnavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{errors.New("unexpected"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		svc := &fakeCaseService{resolve: func(context.Context, string) (domain.CaseResolved, error) {
			return domain.CaseResolved{}, tc.err
		}}
		rec, env := doRequest(t, newTestRouter(svc, nil), http.MethodPost, "/api/v1/cases/resolve", `{"caseId":"case-1"}`)
		if rec.Code != tc.status || env.Code != tc.code || env.Status != "error" {
			t.Fatalf("%v: expected %d/%s, got %d/%s", tc.err, tc.status, tc.code, rec.Code, env.Code)
		}
	}
}

func TestResolveCaseRejectsMalformedBody(t *testing.T) {
	svc := &fakeCaseService{resolve: func(context.Context, string) (domain.CaseResolved, error) {
		t.Fatalf("service must not be called")
		return domain.CaseResolved{}, nil
	}}
	rec, env := doRequest(t, newTestRouter(svc, nil), http.MethodPost, "/api/v1/cases/resolve", `not json`)
	if rec.Code != http.StatusBadRequest || env.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected 400 VALIDATION_ERROR, got %d %s", rec.Code, env.Code)
	}
}

func TestGetCaseReturnsSnapshot(t *testing.T) {
	svc := &fakeCaseService{snapshot: domain.CaseSnapshot{CaseID: "case-1", ResolvedCount: 4, Phase: domain.PhaseIdle}}
	rec, env := doRequest(t, newTestRouter(svc, nil), http.MethodGet, "/api/v1/cases/case-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastState != "case-1" {
		t.Fatalf("expected path parameter to reach service, got %q", svc.lastState)
	}
	if !strings.Contains(string(env.Data), `"resolvedCount":4`) || !strings.Contains(string(env.Data), `"phase":"idle"`) {
		t.Fatalf("unexpected snapshot body %s", env.Data)
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	svc := &fakeCaseService{snapshot: domain.CaseSnapshot{CaseID: "case-1"}}
	router := newTestRouter(svc, NewRateLimiter(0.001, 1, time.Minute))

	rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/cases/case-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}
	rec, env := doRequest(t, router, http.MethodGet, "/api/v1/cases/case-1", "")
	if rec.Code != http.StatusTooManyRequests || env.Code != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("expected 429, got %d %s", rec.Code, env.Code)
	}
}

func TestOperationalRoutes(t *testing.T) {
	router := NewRouter(RouterOptions{
		Ready:   func(context.Context) error { return errors.New("bus down") },
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("metrics")) }),
	})
	if rec, _ := doRequest(t, router, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz expected 200, got %d", rec.Code)
	}
	if rec, _ := doRequest(t, router, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz expected 503, got %d", rec.Code)
	}
	if rec, _ := doRequest(t, router, http.MethodGet, "/metrics", ""); rec.Body.String() != "metrics" {
		t.Fatalf("metrics handler not mounted")
	}
	if rec, _ := doRequest(t, router, http.MethodPost, "/api/v1/cases/resolve", `{"caseId":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("case routes must be absent without a case handler, got %d", rec.Code)
	}
}

func TestRateLimiterNilAllows(t *testing.T) {
	var l *RateLimiter
	if !l.Allow("k", time.Now()) {
		t.Fatalf("nil limiter must allow")
	}
	if NewRateLimiter(0, 1, time.Minute) != nil {
		t.Fatalf("expected nil limiter for zero rps")
	}
}
