package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleGeneral = "general"
	RoleAdmin   = "admin"
)

// User is the stored account record. WalletAddress is the login key.
type User struct {
	ID              uuid.UUID   `json:"id"`
	WalletAddress   string      `json:"wallet_address"`
	DisplayName     string      `json:"display_name"`
	Bio             string      `json:"bio,omitempty"`
	ProfilePhotoURL string      `json:"profile_photo_url,omitempty"`
	Roles           []string    `json:"roles"`
	Followers       []uuid.UUID `json:"followers"`
	CreatedAt       time.Time   `json:"created_at"`
	LastLogin       *time.Time  `json:"last_login,omitempty"`
	InvitedBy       *uuid.UUID  `json:"invited_by,omitempty"`
	Rank            string      `json:"rank,omitempty"`
}

// PrimaryRole is the first role tag, or "general" when none are set.
func (u *User) PrimaryRole() string {
	if len(u.Roles) == 0 {
		return RoleGeneral
	}
	return u.Roles[0]
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *User) HasFollower(id uuid.UUID) bool {
	for _, f := range u.Followers {
		if f == id {
			return true
		}
	}
	return false
}

// Normalize converts all timestamps to UTC. Stores call it on every read so
// naive or zone-shifted values never reach comparisons.
func (u *User) Normalize() {
	u.CreatedAt = u.CreatedAt.UTC()
	if u.LastLogin != nil {
		t := u.LastLogin.UTC()
		u.LastLogin = &t
	}
	if u.Roles == nil {
		u.Roles = []string{}
	}
	if u.Followers == nil {
		u.Followers = []uuid.UUID{}
	}
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (u *User) Clone() *User {
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	c.Followers = append([]uuid.UUID(nil), u.Followers...)
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	if u.InvitedBy != nil {
		id := *u.InvitedBy
		c.InvitedBy = &id
	}
	return &c
}

// RefreshToken is identified by the (UserID, Token) pair.
type RefreshToken struct {
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired compares in UTC.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.UTC().After(now.UTC())
}

// UserInfo is the public projection of a User.
// @Description Public user profile
type UserInfo struct {
	ID              uuid.UUID  `json:"id" example:"3f1c2a9e-6f0b-4b8e-9d55-0c7c8f1a2b3c"`
	WalletAddress   string     `json:"wallet_address" example:"0x9fC3dA866e7DF3a1c57adE1a97c9f00a70f010c8"`
	DisplayName     string     `json:"display_name" example:"satoshi"`
	Bio             *string    `json:"bio"`
	ProfilePhotoURL *string    `json:"profile_photo_url"`
	CreatedAt       time.Time  `json:"created_at" example:"2024-03-15T14:30:00Z"`
	LastLogin       *time.Time `json:"last_login"`
	Roles           []string   `json:"roles" example:"general"`
	InvitedBy       *uuid.UUID `json:"invited_by"`
	Rank            *string    `json:"rank"`
	FollowersCount  int        `json:"followers_count" example:"0"`
}
