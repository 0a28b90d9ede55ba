package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/pkg/config"
)

const testSecret = "gateway-secret"

func testConfig(upstreamURL string) *config.Config {
	return &config.Config{
		Env:       "test",
		APIPrefix: "/api/v1",
		Locale:    "id",
		Upstream:  config.UpstreamConfig{BaseURL: upstreamURL, Timeout: 2 * time.Second},
		Cache:     config.CacheConfig{Enabled: true, Backend: config.CacheBackendMemory, DefaultTTL: time.Minute, Namespace: "test"},
		JWT:       config.JWTConfig{Secret: testSecret},
		Lists:     config.ListConfig{DefaultPerPage: 15, MaxPerPage: 100},
	}
}

func bearer(t *testing.T, role models.UserRole, institution int64) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, models.JWTClaims{
		UserID:        "7",
		Role:          role,
		InstitutionID: institution,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func call(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterServesCachedListsWithForwardedToken(t *testing.T) {
	var hits atomic.Int32
	var gotAuth atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/students") {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		gotAuth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer upstream.Close()

	a, err := New(context.Background(), testConfig(upstream.URL), nil, Options{})
	require.NoError(t, err)
	defer a.Close()
	assert.False(t, a.BulkExports())
	r := a.Router()

	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/api/v1/students", "", "").Code)

	token := bearer(t, models.RoleSuperAdmin, 0)
	rec := call(r, http.MethodGet, "/api/v1/students", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"state":"empty"`)
	assert.Equal(t, "Bearer "+token, gotAuth.Load())

	rec = call(r, http.MethodGet, "/api/v1/students", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cache_hit":true`)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRouterGuardsAdminAndUnwiredRoutes(t *testing.T) {
	a, err := New(context.Background(), testConfig("http://127.0.0.1:1"), nil, Options{})
	require.NoError(t, err)
	defer a.Close()
	r := a.Router()

	teacher := bearer(t, models.RoleTeacher, 42)
	rec := call(r, http.MethodPost, "/api/v1/cache/invalidate", teacher, `{"resources":["students"]}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := bearer(t, models.RoleSuperAdmin, 0)
	rec = call(r, http.MethodPost, "/api/v1/cache/invalidate", admin, `{"resources":["students"]}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(r, http.MethodGet, "/api/v1/exports/abc", admin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}
