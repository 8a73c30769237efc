package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lascaux-backend/internal/common/logger"
	"lascaux-backend/internal/common/middleware"
	"lascaux-backend/internal/features/auth/models"
	"lascaux-backend/internal/features/auth/service"
	"lascaux-backend/internal/features/auth/token"
	"lascaux-backend/internal/features/user/repository"
	"lascaux-backend/internal/features/user/repository/memory"
	"lascaux-backend/internal/features/user/repository/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Setup(io.Discard, "auth-test", false)
}

func newRouter(store repository.Store) *gin.Engine {
	codec := token.NewCodec("secret")
	svc := service.NewAuthService(store, codec, 30*time.Minute, 7*24*time.Hour)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(), middleware.ErrorHandler(), middleware.Authenticate(codec, store.Users()))
	NewAuthHandler(svc).RegisterRoutes(&r.RouterGroup)
	return r
}

func post(t *testing.T, r http.Handler, path string, body interface{}, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

func TestSessionLifecycle(t *testing.T) {
	r := newRouter(memory.New())

	w := post(t, r, "/auth/signup", gin.H{"wallet_address": "W1", "display_name": "D1", "bio": "gm"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	signup := decode[models.Token](t, w)
	assert.Equal(t, "bearer", signup.TokenType)
	assert.Equal(t, "W1", signup.UserInfo.WalletAddress)
	assert.Equal(t, []string{"general"}, signup.UserInfo.Roles)

	var raw struct {
		UserInfo map[string]interface{} `json:"user_info"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Contains(t, raw.UserInfo, "followers_count")
	assert.Contains(t, raw.UserInfo, "profile_photo_url")
	assert.Nil(t, raw.UserInfo["profile_photo_url"])

	w = post(t, r, "/auth/token/verify", gin.H{"token": signup.AccessToken}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.VerifyResponse](t, w).Valid)

	w = post(t, r, "/auth/signin", gin.H{"wallet_address": "W1"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	signin := decode[models.Token](t, w)
	require.NotNil(t, signin.UserInfo.LastLogin)

	w = post(t, r, "/auth/token/refresh", gin.H{"refresh_token": signin.RefreshToken}, "")
	require.Equal(t, http.StatusOK, w.Code)
	rotated := decode[models.Token](t, w)
	assert.NotEqual(t, signin.RefreshToken, rotated.RefreshToken)

	w = post(t, r, "/auth/token/refresh", gin.H{"refresh_token": signin.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "STORED_TOKEN_NOT_FOUND", decode[errorBody](t, w).Code)

	w = post(t, r, "/auth/signout", gin.H{"refresh_token": rotated.RefreshToken}, rotated.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Successfully logged out", decode[models.MessageResponse](t, w).Msg)

	w = post(t, r, "/auth/signout", gin.H{"refresh_token": rotated.RefreshToken}, rotated.AccessToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, "TOKEN_NOT_FOUND", body.Code)
	assert.Equal(t, "Failed to log out", body.Detail)

	// The signup session is untouched by the other device's signout.
	w = post(t, r, "/auth/token/refresh", gin.H{"refresh_token": signup.RefreshToken}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSignupFailures(t *testing.T) {
	r := newRouter(memory.New())
	require.Equal(t, http.StatusOK, post(t, r, "/auth/signup", gin.H{"wallet_address": "W1", "display_name": "D1"}, "").Code)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"duplicate wallet", gin.H{"wallet_address": "W1", "display_name": "D2"}, http.StatusBadRequest, "DUPLICATE_WALLET"},
		{"duplicate display name", gin.H{"wallet_address": "W2", "display_name": "D1"}, http.StatusBadRequest, "DUPLICATE_DISPLAY_NAME"},
		{"padded duplicate display name", gin.H{"wallet_address": "W7", "display_name": " D1 "}, http.StatusBadRequest, "DUPLICATE_DISPLAY_NAME"},
		{"missing display name", gin.H{"wallet_address": "W3"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed json", "{", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"wallet with spaces", gin.H{"wallet_address": "W 4", "display_name": "D4"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"blank display name", gin.H{"wallet_address": "W5", "display_name": "   "}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"relative photo url", gin.H{"wallet_address": "W6", "display_name": "D6", "profile_photo_url": "/me.png"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, r, "/auth/signup", tt.body, "")
			assert.Equal(t, tt.status, w.Code)
			body := decode[errorBody](t, w)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Detail)
		})
	}
}

func TestSigninUnknownWallet(t *testing.T) {
	r := newRouter(memory.New())

	w := post(t, r, "/auth/signin", gin.H{"wallet_address": "nobody"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "USER_NOT_FOUND", decode[errorBody](t, w).Code)
}

func TestVerifyNeverFails(t *testing.T) {
	r := newRouter(memory.New())

	for _, body := range []interface{}{gin.H{"token": "garbage"}, gin.H{}, "not json"} {
		w := post(t, r, "/auth/token/verify", body, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.False(t, decode[models.VerifyResponse](t, w).Valid)
	}
}

func TestRefreshFailures(t *testing.T) {
	r := newRouter(memory.New())

	w := post(t, r, "/auth/token/refresh", gin.H{"refresh_token": "garbage"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", decode[errorBody](t, w).Code)

	w = post(t, r, "/auth/token/refresh", gin.H{}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	orphan, err := token.NewCodec("secret").IssueRefreshToken("W9", time.Hour)
	require.NoError(t, err)
	w = post(t, r, "/auth/token/refresh", gin.H{"refresh_token": orphan}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "REFRESH_USER_NOT_FOUND", decode[errorBody](t, w).Code)

	// signin keeps the 404 for an unknown wallet
	w = post(t, r, "/auth/signin", gin.H{"wallet_address": "W9"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "USER_NOT_FOUND", decode[errorBody](t, w).Code)
}

func TestSignoutRequiresAuthAndToken(t *testing.T) {
	r := newRouter(memory.New())

	w := post(t, r, "/auth/signout", gin.H{"refresh_token": "x"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "NOT_AUTHENTICATED", decode[errorBody](t, w).Code)

	signup := decode[models.Token](t, post(t, r, "/auth/signup", gin.H{"wallet_address": "W1", "display_name": "D1"}, ""))
	w = post(t, r, "/auth/signout", gin.H{}, signup.AccessToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, "TOKEN_NOT_FOUND", body.Code)
	assert.Equal(t, "Refresh token not found", body.Detail)
}

func TestStoreFailureIs500(t *testing.T) {
	store := mocks.NewStore()
	store.UserRepo.On("GetByWalletAddress", mock.Anything, "W1").Return(nil, assert.AnError)
	r := newRouter(store)

	w := post(t, r, "/auth/signin", gin.H{"wallet_address": "W1"}, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, "DATABASE_ERROR", body.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}
