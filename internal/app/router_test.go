package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/accessd/accessd/internal/auth"
	"github.com/accessd/accessd/internal/authz"
	"github.com/accessd/accessd/internal/observability"
	"github.com/accessd/accessd/internal/shared"
	_ "github.com/accessd/accessd/internal/testing/guard"
)

type noopAuthRepo struct{}

func (noopAuthRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return nil, shared.ErrNotFound
}

func (noopAuthRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (noopAuthRepo) DeleteSession(ctx context.Context, id string) error { return nil }

func (noopAuthRepo) SessionIDsForUsers(ctx context.Context, userIDs []int64) ([]string, error) {
	return nil, nil
}

func (noopAuthRepo) DeleteExpiredSessions(ctx context.Context) (int64, error) { return 0, nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	guard := authz.Middleware{Builder: authz.NewBuilder(nil), Evaluator: authz.NewEvaluator()}
	authHandler := auth.NewHandler(logger, auth.NewService(noopAuthRepo{}), sessions, csrf, guard)

	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second}
	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessions,
		CSRFManager:    csrf,
		AuthHandler:    authHandler,
		Metrics:        observability.NewMetrics(),
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Result().Cookies(), "session cookie should be set")
}

func TestMutatingRequestWithoutCSRFTokenIsForbidden(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/roles", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginBypassesCSRFCheck(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	// Reaches the handler, which rejects the empty body itself.
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
