// Package token signs and decodes the session JWTs.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleDescription is embedded in every access token.
const RoleDescription = "General role is the default role given to every user. " +
	"You'll be promoted based on your activity and contributions to the platform."

var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

// Snapshot is the profile copy carried in an access token. It is only
// reconciled against the stored user on explicit verification.
type Snapshot struct {
	DisplayName    string
	Avatar         string
	WalletAddress  string
	Roles          []string
	Bio            string
	Rank           string
	FollowersCount int
}

type Claims struct {
	Username        string   `json:"username,omitempty"`
	Avatar          string   `json:"avatar,omitempty"`
	WalletAddress   string   `json:"wallet_address,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	Role            string   `json:"role,omitempty"`
	RoleDescription string   `json:"role_description,omitempty"`
	Bio             string   `json:"bio,omitempty"`
	Rank            string   `json:"rank,omitempty"`
	FollowersCount  int      `json:"followers_count,omitempty"`
	jwt.RegisteredClaims
}

// Snapshot returns the profile fields embedded in c.
func (c *Claims) Snapshot() Snapshot {
	return Snapshot{
		DisplayName:    c.Username,
		Avatar:         c.Avatar,
		WalletAddress:  c.WalletAddress,
		Roles:          c.Roles,
		Bio:            c.Bio,
		Rank:           c.Rank,
		FollowersCount: c.FollowersCount,
	}
}

type Option func(*Codec)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// Codec issues and decodes HS256 tokens with a shared secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec panics on an empty secret; that is a startup configuration error.
func NewCodec(secret string, opts ...Option) *Codec {
	if secret == "" {
		panic("token: empty signing secret")
	}
	c := &Codec{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) IssueAccessToken(subject string, snapshot Snapshot, ttl time.Duration) (string, error) {
	role := "general"
	if len(snapshot.Roles) > 0 {
		role = snapshot.Roles[0]
	}

	now := c.now()
	claims := &Claims{
		Username:        snapshot.DisplayName,
		Avatar:          snapshot.Avatar,
		WalletAddress:   snapshot.WalletAddress,
		Roles:           snapshot.Roles,
		Role:            role,
		RoleDescription: RoleDescription,
		Bio:             snapshot.Bio,
		Rank:            snapshot.Rank,
		FollowersCount:  snapshot.FollowersCount,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return c.sign(claims)
}

// IssueRefreshToken carries only the subject, expiry and a random id.
func (c *Codec) IssueRefreshToken(subject string, ttl time.Duration) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(c.now().Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return c.sign(claims)
}

func (c *Codec) sign(claims *Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature before the expiry, so ErrExpired always
// means the token was genuinely issued with this secret.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}
