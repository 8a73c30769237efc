package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lascaux-backend/internal/common/config"
	"lascaux-backend/internal/common/logger"
	"lascaux-backend/internal/common/middleware"
	authservice "lascaux-backend/internal/features/auth/service"
	"lascaux-backend/internal/features/auth/token"
	"lascaux-backend/internal/features/user/repository"
	"lascaux-backend/internal/features/user/repository/memory"
	"lascaux-backend/internal/features/user/repository/mocks"
	userservice "lascaux-backend/internal/features/user/service"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Setup(io.Discard, "router-test", false)
}

func newTestRouter(store repository.Store, origins ...string) *gin.Engine {
	cfg := &config.Config{}
	cfg.Server.Origins = origins
	codec := token.NewCodec("secret")
	return NewRouter(Deps{
		Config: cfg,
		Store:  store,
		Codec:  codec,
		Auth:   authservice.NewAuthService(store, codec, time.Minute, time.Hour),
		Users:  userservice.NewUserService(store.Users()),
	})
}

func get(r *gin.Engine, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndLive(t *testing.T) {
	r := newTestRouter(memory.New())

	w := get(r, "/healthcheck")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	assert.Equal(t, http.StatusOK, get(r, "/live").Code)
}

func TestReady(t *testing.T) {
	w := get(newTestRouter(memory.New()), "/ready")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])

	store := mocks.NewStore()
	store.PingErr = errors.New("connection refused")
	w = get(newTestRouter(store), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestRoutesAreMounted(t *testing.T) {
	r := newTestRouter(memory.New())

	assert.Equal(t, http.StatusOK, get(r, "/users").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/users/me").Code)

	w := get(r, "/users/me", "Authorization", "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_AUTHENTICATED")
}

func TestCORS(t *testing.T) {
	r := newTestRouter(memory.New(), "https://app.example.com")

	w := get(r, "/healthcheck", "Origin", "https://app.example.com")
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(r, "/healthcheck", "Origin", "https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
