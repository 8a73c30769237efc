package http

import (
	"bytes"
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
	"github.com/stretchr/testify/require"

	"lascaux-backend/internal/common/logger"
	"lascaux-backend/internal/common/middleware"
	"lascaux-backend/internal/features/auth/token"
	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/repository/memory"
	"lascaux-backend/internal/features/user/service"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Setup(io.Discard, "users-test", false)
}

type fixture struct {
	router *gin.Engine
	store  *memory.Store
	codec  *token.Codec
}

func newFixture() *fixture {
	store := memory.New()
	codec := token.NewCodec("secret")

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler(), middleware.Authenticate(codec, store.Users()))
	NewUserHandler(service.NewUserService(store.Users())).RegisterRoutes(&r.RouterGroup)
	return &fixture{router: r, store: store, codec: codec}
}

func (f *fixture) seed(t *testing.T, name string, roles ...string) (*models.User, string) {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{models.RoleGeneral}
	}
	u := &models.User{ID: uuid.New(), WalletAddress: "0x" + name, DisplayName: name, Roles: roles, CreatedAt: time.Now().UTC()}
	require.NoError(t, f.store.Users().Create(context.Background(), u))

	tok, err := f.codec.IssueAccessToken(u.WalletAddress, token.Snapshot{DisplayName: name, WalletAddress: u.WalletAddress, Roles: roles}, time.Minute)
	require.NoError(t, err)
	return u, tok
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func code(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code
}

func TestPublicRoutes(t *testing.T) {
	f := newFixture()
	alice, _ := f.seed(t, "alice")
	f.seed(t, "bob")

	w := f.do(t, http.MethodGet, "/users", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.UserInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	w = f.do(t, http.MethodGet, "/users/"+alice.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/users/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "USER_NOT_FOUND", code(t, w))

	w = f.do(t, http.MethodGet, "/users/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMe(t *testing.T) {
	f := newFixture()
	_, tok := f.seed(t, "alice")
	f.seed(t, "bob")

	w := f.do(t, http.MethodGet, "/users/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/users/me", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	var me models.UserInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "alice", me.DisplayName)

	w = f.do(t, http.MethodPatch, "/users/me", gin.H{"bio": "gm", "display_name": "alice2"}, tok)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "alice2", me.DisplayName)
	require.NotNil(t, me.Bio)
	assert.Equal(t, "gm", *me.Bio)

	w = f.do(t, http.MethodPatch, "/users/me", gin.H{"display_name": "bob"}, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "DUPLICATE_DISPLAY_NAME", code(t, w))

	w = f.do(t, http.MethodPatch, "/users/me", gin.H{"profile_photo_url": "ftp://x/y.png"}, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", code(t, w))
}

func TestFollow(t *testing.T) {
	f := newFixture()
	_, aliceTok := f.seed(t, "alice")
	bob, _ := f.seed(t, "bob")
	path := "/users/" + bob.ID.String() + "/follow"

	w := f.do(t, http.MethodPost, path, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, path, nil, aliceTok)
	require.Equal(t, http.StatusOK, w.Code)
	var info models.UserInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, 1, info.FollowersCount)

	w = f.do(t, http.MethodPost, path, nil, aliceTok)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_FOLLOWING", code(t, w))

	w = f.do(t, http.MethodDelete, path, nil, aliceTok)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, path, nil, aliceTok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "NOT_FOLLOWING", code(t, w))
}

func TestSetRoles(t *testing.T) {
	f := newFixture()
	alice, aliceTok := f.seed(t, "alice")
	_, adminTok := f.seed(t, "root", models.RoleAdmin)
	path := "/users/" + alice.ID.String() + "/roles"

	w := f.do(t, http.MethodPut, path, gin.H{"roles": []string{"admin"}}, aliceTok)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", code(t, w))

	w = f.do(t, http.MethodPut, path, gin.H{"roles": []string{}}, adminTok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, path, gin.H{"roles": []string{"Super Admin"}}, adminTok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", code(t, w))

	w = f.do(t, http.MethodPut, path, gin.H{"roles": []string{"admin", "general"}}, adminTok)
	require.Equal(t, http.StatusOK, w.Code)
	var info models.UserInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, []string{"admin", "general"}, info.Roles)
}
