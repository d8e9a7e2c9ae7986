package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/metrics"
	"storefront-checkout/internal/service/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type stubProjectRepo struct {
	project *domain.Project
	err     error
}

func (s *stubProjectRepo) GetByKey(ctx context.Context, key string) (*domain.Project, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.project == nil || s.project.Key != key {
		return nil, domain.ErrNotFound
	}
	return s.project, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, deps Deps) *gin.Engine {
	t.Helper()
	if deps.ProjectRepo == nil {
		deps.ProjectRepo = &stubProjectRepo{project: &domain.Project{ID: "p1", Key: "shop"}}
	}
	if deps.Sessions == nil {
		deps.Sessions = session.New("test-secret")
	}
	r, err := buildRouter(zap.NewNop(), stubPinger{}, deps)
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	return r
}

func do(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBuildRouterRequiresDeps(t *testing.T) {
	if _, err := buildRouter(zap.NewNop(), nil, Deps{}); err == nil {
		t.Fatalf("expected error without project repository")
	}
}

func TestProjectMiddlewareNotFound(t *testing.T) {
	r := newTestRouter(t, Deps{})
	w := do(r, http.MethodPost, "/missing/anonymous/token", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestProjectMiddlewareRepoError(t *testing.T) {
	r := newTestRouter(t, Deps{ProjectRepo: &stubProjectRepo{err: errors.New("db down")}})
	w := do(r, http.MethodPost, "/shop/anonymous/token", "", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestAnonymousTokenIsBoundToProject(t *testing.T) {
	sessions := session.New("test-secret")
	r := newTestRouter(t, Deps{Sessions: sessions})
	w := do(r, http.MethodPost, "/shop/anonymous/token", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp tokenResponse
	decode(t, w, &resp)
	if resp.AnonymousID == "" || resp.TokenType != "Bearer" {
		t.Fatalf("unexpected token response: %+v", resp)
	}
	claims, err := sessions.Verify("p1", resp.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.AnonymousID != resp.AnonymousID {
		t.Fatalf("anonymous id mismatch: %q vs %q", claims.AnonymousID, resp.AnonymousID)
	}
	if _, err := sessions.Verify("p2", resp.AccessToken); err == nil {
		t.Fatalf("token must not verify for another project")
	}

	w = do(r, http.MethodPost, "/shop/anonymous/refresh", "", `{"refresh_token":"`+resp.RefreshToken+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected refresh 200, got %d", w.Code)
	}
	w = do(r, http.MethodPost, "/shop/anonymous/refresh", "", `{"refresh_token":"nope"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected refresh 401, got %d", w.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	r := newTestRouter(t, Deps{})
	if w := do(r, http.MethodGet, "/healthz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/readyz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("readyz: %d", w.Code)
	}

	down, err := buildRouter(zap.NewNop(), stubPinger{err: errors.New("refused")}, Deps{
		ProjectRepo: &stubProjectRepo{},
		Sessions:    session.New("s"),
	})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	if w := do(down, http.MethodGet, "/readyz", "", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when db is down, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := newTestRouter(t, Deps{Metrics: m, Gatherer: reg})
	do(r, http.MethodGet, "/healthz", "", "")
	w := do(r, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `storefront_http_requests_total{route="/healthz",status="200"} 1`) {
		t.Fatalf("request counter missing from metrics output:\n%s", w.Body.String())
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":             "",
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
