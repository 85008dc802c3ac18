package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "mppchs/internal/jwt_token"
	"mppchs/internal/platform/config"
	"mppchs/pkg/platform/middleware/request"
	"mppchs/pkg/testutil"
)

func newInMemoryApp(t *testing.T) (*app, *jwttoken.JWTService) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "FIELD_ENCRYPTION_KEY"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := buildApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { a.close(context.Background()) })
	assert.Empty(t, a.background)

	return a, jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
}

func serveRequest(t *testing.T, a *app, method, path, token, body string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(t, method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return testutil.Do(a.router, req)
}

func TestInMemoryApp_Probes(t *testing.T) {
	a, _ := newInMemoryApp(t)

	rec := serveRequest(t, a, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(request.HeaderRequestID))

	rec = serveRequest(t, a, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestInMemoryApp_RequiresAuth(t *testing.T) {
	a, _ := newInMemoryApp(t)

	rec := serveRequest(t, a, http.MethodGet, "/beneficiaries/1/change-requests", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInMemoryApp_Routes(t *testing.T) {
	a, jwt := newInMemoryApp(t)

	beneficiary, err := jwt.GenerateBeneficiaryToken(7, 1, time.Minute)
	require.NoError(t, err)
	reviewerToken, err := jwt.GenerateAccessToken(90, jwttoken.RoleReviewer, time.Minute)
	require.NoError(t, err)

	t.Run("no active request", func(t *testing.T) {
		rec := serveRequest(t, a, http.MethodGet, "/beneficiaries/1/change-requests/active", beneficiary, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, testutil.Decode[map[string]any](t, rec)["change_request"])
	})

	t.Run("draft for an unknown beneficiary", func(t *testing.T) {
		rec := serveRequest(t, a, http.MethodPut, "/beneficiaries/1/change-requests/draft", beneficiary, `{"after":{"city":"Indore"}}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("reviewer reads an unknown request", func(t *testing.T) {
		rec := serveRequest(t, a, http.MethodGet, "/change-requests/5", reviewerToken, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("beneficiary cannot approve", func(t *testing.T) {
		rec := serveRequest(t, a, http.MethodPost, "/change-requests/5/approve", beneficiary, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestBuildApp_RequiresKeyWithDatabase(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{URL: "postgres://localhost/mppchs"}}
	_, err := newCipher(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIELD_ENCRYPTION_KEY")
}
