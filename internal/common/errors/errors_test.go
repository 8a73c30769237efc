package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrCodeDuplicateWallet:      http.StatusBadRequest,
		ErrCodeDuplicateDisplayName: http.StatusBadRequest,
		ErrCodeTokenNotFound:        http.StatusBadRequest,
		ErrCodeUserNotFound:         http.StatusNotFound,
		ErrCodeInvalidRefreshToken:  http.StatusUnauthorized,
		ErrCodeExpiredRefreshToken:  http.StatusUnauthorized,
		ErrCodeStoredTokenNotFound:  http.StatusUnauthorized,
		ErrCodeRefreshUserNotFound:  http.StatusUnauthorized,
		ErrCodeInvalidAccessToken:   http.StatusUnauthorized,
		ErrCodeNotAuthenticated:     http.StatusUnauthorized,
		ErrCodeForbidden:            http.StatusForbidden,
		ErrCodeAlreadyFollowing:     http.StatusConflict,
		ErrCodeDatabaseError:        http.StatusInternalServerError,
		ErrCodeInternal:             http.StatusInternalServerError,
	}

	for code, want := range cases {
		assert.Equal(t, want, New(code, "x").Status(), code)
	}
}

func TestJSONHidesInternals(t *testing.T) {
	cause := stderrors.New("connection refused on 10.0.0.3:9042")
	appErr := NewDatabaseError("get user", cause).WithRequestID("req-1")

	raw, err := json.Marshal(appErr)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "Internal server error", body["detail"])
	assert.Equal(t, string(ErrCodeDatabaseError), body["code"])
	assert.Equal(t, "req-1", body["request_id"])
	assert.NotContains(t, string(raw), "10.0.0.3")
	assert.NotContains(t, body, "stack")

	assert.NotEmpty(t, appErr.Stack)
	assert.ErrorIs(t, appErr, cause)
}

func TestAsAppError(t *testing.T) {
	appErr, ok := AsAppError(NewNotAuthenticatedError())
	require.True(t, ok)
	assert.Equal(t, ErrCodeNotAuthenticated, appErr.Code)

	_, ok = AsAppError(stderrors.New("plain"))
	assert.False(t, ok)

	_, ok = AsAppError(nil)
	assert.False(t, ok)
}
