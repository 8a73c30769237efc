package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lascaux-backend/internal/common/logger"
	authmodels "lascaux-backend/internal/features/auth/models"
	"lascaux-backend/internal/features/auth/token"
	"lascaux-backend/internal/features/user/mapper"
	"lascaux-backend/internal/features/user/models"
	"lascaux-backend/internal/features/user/repository"
)

var (
	ErrDuplicateWallet      = errors.New("wallet address already registered")
	ErrDuplicateDisplayName = errors.New("display name already taken")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrExpiredRefreshToken  = errors.New("refresh token expired")
	ErrStoredTokenNotFound  = errors.New("refresh token not found")
)

type SignupInput struct {
	WalletAddress   string
	DisplayName     string
	Bio             string
	ProfilePhotoURL string
}

type AuthService interface {
	Signup(ctx context.Context, in SignupInput) (*authmodels.Token, error)
	Signin(ctx context.Context, walletAddress string) (*authmodels.Token, error)
	// Verify never fails; any defect in the token or mismatch with the
	// stored profile yields false.
	Verify(ctx context.Context, accessToken string) bool
	Refresh(ctx context.Context, refreshToken string) (*authmodels.Token, error)
	// Signout reports whether the refresh token record existed.
	Signout(ctx context.Context, userID uuid.UUID, refreshToken string) (bool, error)
}

type Option func(*authService)

func WithClock(now func() time.Time) Option {
	return func(s *authService) { s.now = now }
}

type authService struct {
	users      repository.UserRepository
	tokens     repository.RefreshTokenRepository
	codec      *token.Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewAuthService(store repository.Store, codec *token.Codec, accessTTL, refreshTTL time.Duration, opts ...Option) AuthService {
	s := &authService{
		users:      store.Users(),
		tokens:     store.RefreshTokens(),
		codec:      codec,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *authService) Signup(ctx context.Context, in SignupInput) (*authmodels.Token, error) {
	in.DisplayName = strings.TrimSpace(in.DisplayName)

	if _, err := s.users.GetByWalletAddress(ctx, in.WalletAddress); err == nil {
		return nil, ErrDuplicateWallet
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check wallet address: %w", err)
	}
	if _, err := s.users.GetByDisplayName(ctx, in.DisplayName); err == nil {
		return nil, ErrDuplicateDisplayName
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check display name: %w", err)
	}

	user := &models.User{
		ID:              uuid.New(),
		WalletAddress:   in.WalletAddress,
		DisplayName:     in.DisplayName,
		Bio:             in.Bio,
		ProfilePhotoURL: in.ProfilePhotoURL,
		Roles:           []string{models.RoleGeneral},
		Followers:       []uuid.UUID{},
		CreatedAt:       s.now().UTC(),
	}

	// The pre-checks give distinct errors; the store's create-if-absent
	// closes the race between them and the insert.
	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrWalletTaken):
			return nil, ErrDuplicateWallet
		case errors.Is(err, repository.ErrDisplayNameTaken):
			return nil, ErrDuplicateDisplayName
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.Info().Str("user_id", user.ID.String()).Str("display_name", user.DisplayName).Msg("User signed up")
	return s.issue(ctx, user)
}

func (s *authService) Signin(ctx context.Context, walletAddress string) (*authmodels.Token, error) {
	user, err := s.users.GetByWalletAddress(ctx, walletAddress)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLogin = &now

	logger.Info().Str("user_id", user.ID.String()).Msg("User signed in")
	return s.issue(ctx, user)
}

func (s *authService) Verify(ctx context.Context, accessToken string) bool {
	claims, err := s.codec.Decode(accessToken)
	if err != nil || claims.WalletAddress == "" {
		return false
	}

	user, err := s.users.GetByWalletAddress(ctx, claims.WalletAddress)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Error().Err(err).Msg("Failed to load user during token verification")
		}
		return false
	}

	return claims.Username == user.DisplayName &&
		claims.Avatar == user.ProfilePhotoURL &&
		claims.WalletAddress == user.WalletAddress
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*authmodels.Token, error) {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrExpiredRefreshToken
		}
		return nil, ErrInvalidRefreshToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByWalletAddress(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	stored, err := s.tokens.Get(ctx, user.ID, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrStoredTokenNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if stored.Expired(s.now()) {
		return nil, ErrExpiredRefreshToken
	}

	// Delete before saving the replacement: a failure in between leaves the
	// user with no refresh token rather than two.
	deleted, err := s.tokens.Delete(ctx, user.ID, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to delete refresh token: %w", err)
	}
	if !deleted {
		return nil, ErrStoredTokenNotFound
	}

	logger.Info().Str("user_id", user.ID.String()).Msg("Refresh token rotated")
	return s.issue(ctx, user)
}

func (s *authService) Signout(ctx context.Context, userID uuid.UUID, refreshToken string) (bool, error) {
	deleted, err := s.tokens.Delete(ctx, userID, refreshToken)
	if err != nil {
		return false, fmt.Errorf("failed to delete refresh token: %w", err)
	}
	if deleted {
		logger.Info().Str("user_id", userID.String()).Msg("User signed out")
	}
	return deleted, nil
}

// issue signs a fresh pair for user and persists the refresh token.
func (s *authService) issue(ctx context.Context, user *models.User) (*authmodels.Token, error) {
	access, err := s.codec.IssueAccessToken(user.WalletAddress, snapshotOf(user), s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.IssueRefreshToken(user.WalletAddress, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	record := &models.RefreshToken{
		UserID:    user.ID,
		Token:     refresh,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.tokens.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return &authmodels.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    authmodels.TokenTypeBearer,
		UserInfo:     mapper.ToUserInfo(user),
	}, nil
}

func snapshotOf(user *models.User) token.Snapshot {
	return token.Snapshot{
		DisplayName:    user.DisplayName,
		Avatar:         user.ProfilePhotoURL,
		WalletAddress:  user.WalletAddress,
		Roles:          append([]string(nil), user.Roles...),
		Bio:            user.Bio,
		Rank:           user.Rank,
		FollowersCount: len(user.Followers),
	}
}
