package http

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lascaux-backend/internal/common/errors"
	"lascaux-backend/internal/common/middleware"
	"lascaux-backend/internal/common/validation"
	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/service"
)

type UserHandler struct {
	service service.UserService
}

func NewUserHandler(service service.UserService) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	users := router.Group("/users")
	{
		users.GET("", h.listUsers)
		users.GET("/:id", h.getUser)
	}

	me := router.Group("/users/me")
	me.Use(middleware.RequireAuth())
	{
		me.GET("", h.getMe)
		me.PATCH("", h.updateMe)
	}

	follow := router.Group("/users/:id/follow")
	follow.Use(middleware.RequireAuth())
	{
		follow.POST("", h.follow)
		follow.DELETE("", h.unfollow)
	}

	admin := router.Group("/users")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.PUT("/:id/roles", h.setRoles)
	}
}

func toAppError(err error) *errors.AppError {
	switch {
	case stderrors.Is(err, service.ErrUserNotFound):
		return errors.New(errors.ErrCodeUserNotFound, "User not found")
	case stderrors.Is(err, service.ErrDuplicateDisplayName):
		return errors.New(errors.ErrCodeDuplicateDisplayName, "Display name already taken")
	case stderrors.Is(err, service.ErrInvalidDisplayName):
		return errors.NewValidationError("display_name", "must not be empty")
	case stderrors.Is(err, service.ErrAlreadyFollowing):
		return errors.New(errors.ErrCodeAlreadyFollowing, "Already following this user")
	case stderrors.Is(err, service.ErrNotFollowing):
		return errors.New(errors.ErrCodeNotFollowing, "Not following this user")
	case stderrors.Is(err, service.ErrInvalidRoles):
		return errors.NewValidationError("roles", "must be non-empty tags")
	default:
		return errors.NewDatabaseError("users", err)
	}
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.Fail(c, errors.NewValidationError("id", "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// callerID is only valid behind RequireAuth.
func callerID(c *gin.Context) uuid.UUID {
	user, _ := middleware.CurrentIdentity(c).User()
	return user.ID
}

func validateProfile(update *models.ProfileUpdate) *errors.AppError {
	if update.DisplayName != nil {
		if err := validation.ValidateDisplayName(*update.DisplayName); err != nil {
			return errors.NewValidationError("display_name", err.Error())
		}
	}
	if update.Bio != nil {
		if err := validation.ValidateBio(*update.Bio); err != nil {
			return errors.NewValidationError("bio", err.Error())
		}
	}
	if update.ProfilePhotoURL != nil {
		if err := validation.ValidatePhotoURL(*update.ProfilePhotoURL); err != nil {
			return errors.NewValidationError("profile_photo_url", err.Error())
		}
	}
	return nil
}

// @Summary List users
// @Tags users
// @Produce json
// @Success 200 {array} models.UserInfo
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /users [get]
func (h *UserHandler) listUsers(c *gin.Context) {
	users, err := h.service.List(c.Request.Context())
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, users)
}

// @Summary Get user by ID
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} models.UserInfo
// @Failure 400 {object} models.ErrorResponse "Invalid id"
// @Failure 404 {object} models.ErrorResponse "User not found"
// @Router /users/{id} [get]
func (h *UserHandler) getUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	user, err := h.service.GetUser(c.Request.Context(), id)
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, user)
}

// @Summary Get current user
// @Description Re-reads the caller from the store rather than trusting token claims
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.UserInfo
// @Failure 401 {object} models.ErrorResponse "Not authenticated"
// @Router /users/me [get]
func (h *UserHandler) getMe(c *gin.Context) {
	user, err := h.service.GetUser(c.Request.Context(), callerID(c))
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, user)
}

// @Summary Update current user's profile
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param profile body models.ProfileUpdate true "Fields to change"
// @Success 200 {object} models.UserInfo
// @Failure 400 {object} models.ErrorResponse "Invalid body or display name taken"
// @Failure 401 {object} models.ErrorResponse "Not authenticated"
// @Router /users/me [patch]
func (h *UserHandler) updateMe(c *gin.Context) {
	var update models.ProfileUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		middleware.Fail(c, errors.NewValidationError("body", err.Error()))
		return
	}
	if appErr := validateProfile(&update); appErr != nil {
		middleware.Fail(c, appErr)
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), callerID(c), update)
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, user)
}

// @Summary Follow a user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User to follow"
// @Success 200 {object} models.UserInfo "The followed user"
// @Failure 404 {object} models.ErrorResponse "User not found"
// @Failure 409 {object} models.ErrorResponse "Already following"
// @Router /users/{id}/follow [post]
func (h *UserHandler) follow(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	user, err := h.service.Follow(c.Request.Context(), callerID(c), id)
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, user)
}

// @Summary Unfollow a user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User to unfollow"
// @Success 200 {object} models.UserInfo "The unfollowed user"
// @Failure 400 {object} models.ErrorResponse "Not following"
// @Failure 404 {object} models.ErrorResponse "User not found"
// @Router /users/{id}/follow [delete]
func (h *UserHandler) unfollow(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	user, err := h.service.Unfollow(c.Request.Context(), callerID(c), id)
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, user)
}

// @Summary Replace a user's roles
// @Description Admin only. The first role becomes the primary role.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param roles body models.RolesUpdate true "New roles"
// @Success 200 {object} models.UserInfo
// @Failure 400 {object} models.ErrorResponse "Invalid roles"
// @Failure 403 {object} models.ErrorResponse "Not an admin"
// @Failure 404 {object} models.ErrorResponse "User not found"
// @Router /users/{id}/roles [put]
func (h *UserHandler) setRoles(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req models.RolesUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, errors.NewValidationError("roles", err.Error()))
		return
	}
	for _, role := range req.Roles {
		if err := validation.ValidateUserRole(role); err != nil {
			middleware.Fail(c, errors.NewValidationError("roles", err.Error()))
			return
		}
	}

	user, err := h.service.SetRoles(c.Request.Context(), id, req.Roles)
	if err != nil {
		middleware.Fail(c, toAppError(err))
		return
	}
	c.JSON(http.StatusOK, user)
}
