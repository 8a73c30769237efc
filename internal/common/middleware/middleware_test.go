package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lascaux-backend/internal/common/errors"
	"lascaux-backend/internal/common/logger"
	"lascaux-backend/internal/features/auth/token"
	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/repository/memory"
	"lascaux-backend/internal/features/user/repository/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Setup(io.Discard, "middleware-test", false)
}

type errorBody struct {
	Detail    string `json:"detail"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery(), ErrorHandler())
	return r
}

func TestRequestID(t *testing.T) {
	r := newEngine()
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestErrorHandler(t *testing.T) {
	r := newEngine()
	r.GET("/app", func(c *gin.Context) {
		Fail(c, errors.New(errors.ErrCodeUserNotFound, "User not found"))
	})
	r.GET("/plain", func(c *gin.Context) {
		Fail(c, assert.AnError)
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	tests := []struct {
		path   string
		status int
		code   string
		detail string
	}{
		{"/app", http.StatusNotFound, "USER_NOT_FOUND", "User not found"},
		{"/plain", http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"},
		{"/panic", http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set(RequestIDHeader, "rid")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.detail, body.Detail)
			assert.Equal(t, "rid", body.RequestID)
			assert.NotContains(t, w.Body.String(), assert.AnError.Error())
			assert.NotContains(t, w.Body.String(), "boom")
		})
	}
}

type authFixture struct {
	engine *gin.Engine
	codec  *token.Codec
	user   *models.User
	admin  *models.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := memory.New()
	codec := token.NewCodec("secret")
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), WalletAddress: "W1", DisplayName: "D1", Roles: []string{models.RoleGeneral}, CreatedAt: time.Now().UTC()}
	admin := &models.User{ID: uuid.New(), WalletAddress: "W2", DisplayName: "D2", Roles: []string{models.RoleAdmin}, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Users().Create(ctx, user))
	require.NoError(t, store.Users().Create(ctx, admin))

	r := newEngine()
	r.Use(Authenticate(codec, store.Users()))
	r.GET("/whoami", func(c *gin.Context) {
		u, ok := CurrentIdentity(c).User()
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, u.DisplayName)
	})
	r.GET("/private", RequireAuth(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/admin", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	return &authFixture{engine: r, codec: codec, user: user, admin: admin}
}

func (f *authFixture) accessToken(t *testing.T, user *models.User, ttl time.Duration) string {
	t.Helper()
	tok, err := f.codec.IssueAccessToken(user.WalletAddress, token.Snapshot{
		DisplayName:   user.DisplayName,
		WalletAddress: user.WalletAddress,
		Roles:         user.Roles,
	}, ttl)
	require.NoError(t, err)
	return tok
}

func (f *authFixture) do(path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	f := newAuthFixture(t)

	t.Run("no header is anonymous", func(t *testing.T) {
		w := f.do("/whoami", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "anonymous", w.Body.String())
	})

	t.Run("valid bearer", func(t *testing.T) {
		w := f.do("/whoami", "Bearer "+f.accessToken(t, f.user, time.Minute))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "D1", w.Body.String())
	})

	t.Run("stale snapshot still authorizes", func(t *testing.T) {
		stale := *f.user
		stale.DisplayName = "old-name"
		w := f.do("/whoami", "Bearer "+f.accessToken(t, &stale, time.Minute))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "D1", w.Body.String())
	})

	refresh, err := f.codec.IssueRefreshToken("W1", time.Hour)
	require.NoError(t, err)
	orphan := &models.User{WalletAddress: "W9", DisplayName: "D9"}

	rejected := []struct {
		name   string
		header string
		code   string
	}{
		{"malformed header", "Token abc", "NOT_AUTHENTICATED"},
		{"empty bearer", "Bearer ", "NOT_AUTHENTICATED"},
		{"scheme only", "Bearer", "NOT_AUTHENTICATED"},
		{"garbage token", "Bearer garbage", "INVALID_ACCESS_TOKEN"},
		{"expired token", "Bearer " + f.accessToken(t, f.user, -time.Minute), "INVALID_ACCESS_TOKEN"},
		{"refresh token", "Bearer " + refresh, "INVALID_ACCESS_TOKEN"},
		{"unknown user", "Bearer " + f.accessToken(t, orphan, time.Minute), "INVALID_ACCESS_TOKEN"},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do("/whoami", tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestAuthenticateStoreFailure(t *testing.T) {
	store := mocks.NewStore()
	store.UserRepo.On("GetByWalletAddress", mock.Anything, "W1").Return(nil, assert.AnError)
	codec := token.NewCodec("secret")

	r := newEngine()
	r.Use(Authenticate(codec, store.Users()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	tok, err := codec.IssueAccessToken("W1", token.Snapshot{WalletAddress: "W1"}, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "DATABASE_ERROR", decodeError(t, w).Code)
}

func TestGuards(t *testing.T) {
	f := newAuthFixture(t)

	w := f.do("/private", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "NOT_AUTHENTICATED", decodeError(t, w).Code)

	w = f.do("/private", "Bearer "+f.accessToken(t, f.user, time.Minute))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do("/admin", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do("/admin", "Bearer "+f.accessToken(t, f.user, time.Minute))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, w).Code)

	w = f.do("/admin", "Bearer "+f.accessToken(t, f.admin, time.Minute))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCurrentIdentityDefaultsToAnonymous(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.True(t, CurrentIdentity(c).IsAnonymous())

	u := &models.User{ID: uuid.New()}
	c.Set(identityKey, Identified(u))
	got, ok := CurrentIdentity(c).User()
	assert.True(t, ok)
	assert.Equal(t, u, got)
}
