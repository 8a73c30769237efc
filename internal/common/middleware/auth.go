package middleware

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"lascaux-backend/internal/common/errors"
	"lascaux-backend/internal/features/auth/token"
	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/repository"
)

const identityKey = "identity"

// Identity is the caller resolved from the bearer token: either anonymous
// or an identified user.
type Identity struct {
	user *models.User
}

func Anonymous() Identity { return Identity{} }

func Identified(user *models.User) Identity { return Identity{user: user} }

func (i Identity) IsAnonymous() bool { return i.user == nil }

func (i Identity) User() (*models.User, bool) {
	return i.user, i.user != nil
}

// CurrentIdentity returns the identity attached by Authenticate, or
// Anonymous when none was attached.
func CurrentIdentity(c *gin.Context) Identity {
	if v, ok := c.Get(identityKey); ok {
		if identity, ok := v.(Identity); ok {
			return identity
		}
	}
	return Anonymous()
}

// Authenticate resolves the caller for every request. It trusts the claims
// embedded in the token and does not compare the profile snapshot.
func Authenticate(codec *token.Codec, users repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(identityKey, Anonymous())
			c.Next()
			return
		}

		scheme, raw, found := strings.Cut(header, " ")
		raw = strings.TrimSpace(raw)
		if !found || !strings.EqualFold(scheme, "Bearer") || raw == "" {
			Fail(c, errors.New(errors.ErrCodeNotAuthenticated, "Invalid authentication credentials"))
			return
		}

		claims, err := codec.Decode(raw)
		if err != nil {
			reason := "Could not validate credentials"
			if stderrors.Is(err, token.ErrExpired) {
				reason = "Token has expired"
			}
			Fail(c, errors.NewInvalidAccessTokenError(reason))
			return
		}
		if claims.Subject == "" || claims.WalletAddress == "" {
			Fail(c, errors.NewInvalidAccessTokenError("Could not validate credentials"))
			return
		}

		user, err := users.GetByWalletAddress(c.Request.Context(), claims.WalletAddress)
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				Fail(c, errors.NewInvalidAccessTokenError("User not found"))
				return
			}
			Fail(c, errors.NewDatabaseError("resolve bearer user", err))
			return
		}

		c.Set(identityKey, Identified(user))
		c.Next()
	}
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentIdentity(c).IsAnonymous() {
			Fail(c, errors.NewNotAuthenticatedError())
			return
		}
		c.Next()
	}
}

// RequireRole implies RequireAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentIdentity(c).User()
		if !ok {
			Fail(c, errors.NewNotAuthenticatedError())
			return
		}
		if !user.HasRole(role) {
			Fail(c, errors.NewForbiddenError("Insufficient permissions"))
			return
		}
		c.Next()
	}
}
