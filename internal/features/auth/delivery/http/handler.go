package http

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lascaux-backend/internal/common/errors"
	"lascaux-backend/internal/common/middleware"
	"lascaux-backend/internal/common/validation"
	"lascaux-backend/internal/features/auth/models"
	"lascaux-backend/internal/features/auth/service"
)

type AuthHandler struct {
	service service.AuthService
}

func NewAuthHandler(service service.AuthService) *AuthHandler {
	return &AuthHandler{
		service: service,
	}
}

func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := router.Group("/auth")
	{
		auth.POST("/signup", h.signup)
		auth.POST("/signin", h.signin)
		auth.POST("/token/verify", h.verify)
		auth.POST("/token/refresh", h.refresh)
		auth.POST("/signout", middleware.RequireAuth(), h.signout)
	}
}

// toAppError maps session failures to their rendered form.
func toAppError(err error) *errors.AppError {
	switch {
	case stderrors.Is(err, service.ErrDuplicateWallet):
		return errors.New(errors.ErrCodeDuplicateWallet, "Wallet address already registered")
	case stderrors.Is(err, service.ErrDuplicateDisplayName):
		return errors.New(errors.ErrCodeDuplicateDisplayName, "Display name already taken")
	case stderrors.Is(err, service.ErrUserNotFound):
		return errors.New(errors.ErrCodeUserNotFound, "User not found")
	case stderrors.Is(err, service.ErrInvalidRefreshToken):
		return errors.New(errors.ErrCodeInvalidRefreshToken, "Invalid refresh token")
	case stderrors.Is(err, service.ErrExpiredRefreshToken):
		return errors.New(errors.ErrCodeExpiredRefreshToken, "Refresh token has expired")
	case stderrors.Is(err, service.ErrStoredTokenNotFound):
		return errors.New(errors.ErrCodeStoredTokenNotFound, "Refresh token not found")
	default:
		return errors.NewDatabaseError("auth", err)
	}
}

func validateSignup(req *models.SignupRequest) *errors.AppError {
	if err := validation.ValidateWalletAddress(req.WalletAddress); err != nil {
		return errors.NewValidationError("wallet_address", err.Error())
	}
	if err := validation.ValidateDisplayName(req.DisplayName); err != nil {
		return errors.NewValidationError("display_name", err.Error())
	}
	if req.Bio != nil {
		if err := validation.ValidateBio(*req.Bio); err != nil {
			return errors.NewValidationError("bio", err.Error())
		}
	}
	if req.ProfilePhotoURL != nil {
		if err := validation.ValidatePhotoURL(*req.ProfilePhotoURL); err != nil {
			return errors.NewValidationError("profile_photo_url", err.Error())
		}
	}
	return nil
}

// @Summary Sign up
// @Description Register a wallet and receive an access/refresh token pair
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.SignupRequest true "Signup payload"
// @Success 200 {object} models.Token
// @Failure 400 {object} models.ErrorResponse "Wallet or display name already taken"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /auth/signup [post]
func (h *AuthHandler) signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, errors.NewValidationError("body", err.Error()))
		return
	}
	if appErr := validateSignup(&req); appErr != nil {
		middleware.Fail(c, appErr)
		return
	}

	in := service.SignupInput{
		WalletAddress: req.WalletAddress,
		DisplayName:   req.DisplayName,
	}
	if req.Bio != nil {
		in.Bio = *req.Bio
	}
	if req.ProfilePhotoURL != nil {
		in.ProfilePhotoURL = *req.ProfilePhotoURL
	}

	tok, err := h.service.Signup(c.Request.Context(), in)
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, tok)
}

// @Summary Sign in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.SigninRequest true "Signin payload"
// @Success 200 {object} models.Token
// @Failure 404 {object} models.ErrorResponse "User not found"
// @Router /auth/signin [post]
func (h *AuthHandler) signin(c *gin.Context) {
	var req models.SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, errors.NewValidationError("wallet_address", err.Error()))
		return
	}

	tok, err := h.service.Signin(c.Request.Context(), req.WalletAddress)
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, tok)
}

// @Summary Verify an access token
// @Description Checks the signature, expiry and that the embedded profile still matches the stored user. Never fails.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.TokenVerifyRequest true "Token"
// @Success 200 {object} models.VerifyResponse
// @Router /auth/token/verify [post]
func (h *AuthHandler) verify(c *gin.Context) {
	var req models.TokenVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusOK, models.VerifyResponse{Valid: false})
		return
	}

	c.JSON(http.StatusOK, models.VerifyResponse{Valid: h.service.Verify(c.Request.Context(), req.Token)})
}

// @Summary Rotate a refresh token
// @Description The presented refresh token is consumed; reuse fails.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.TokenRefreshRequest true "Refresh token"
// @Success 200 {object} models.Token
// @Failure 401 {object} models.ErrorResponse "Invalid, expired or unknown refresh token, or its user is gone"
// @Router /auth/token/refresh [post]
func (h *AuthHandler) refresh(c *gin.Context) {
	var req models.TokenRefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, errors.New(errors.ErrCodeInvalidRefreshToken, "Invalid refresh token"))
		return
	}

	tok, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		// A vanished subject is an unauthorized refresh, not a lookup miss.
		if stderrors.Is(err, service.ErrUserNotFound) {
			middleware.Fail(c, errors.New(errors.ErrCodeRefreshUserNotFound, "User not found"))
			return
		}
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, tok)
}

// @Summary Sign out
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.SignoutRequest true "Refresh token to revoke"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse "Refresh token not found"
// @Failure 401 {object} models.ErrorResponse "Not authenticated"
// @Router /auth/signout [post]
func (h *AuthHandler) signout(c *gin.Context) {
	user, _ := middleware.CurrentIdentity(c).User()

	var req models.SignoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		middleware.Fail(c, errors.New(errors.ErrCodeTokenNotFound, "Refresh token not found"))
		return
	}

	ok, err := h.service.Signout(c.Request.Context(), user.ID, req.RefreshToken)
	if err != nil {
		middleware.Fail(c, errors.NewDatabaseError("signout", err))
		return
	}
	if !ok {
		middleware.Fail(c, errors.New(errors.ErrCodeTokenNotFound, "Failed to log out"))
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse{Msg: "Successfully logged out"})
}
