package models

import (
	usermodels "lascaux-backend/internal/features/user/models"
)

const TokenTypeBearer = "bearer"

// SignupRequest
// @Description Wallet signup payload
type SignupRequest struct {
	WalletAddress   string  `json:"wallet_address" binding:"required" example:"0x9fC3dA866e7DF3a1c57adE1a97c9f00a70f010c8"`
	DisplayName     string  `json:"display_name" binding:"required" example:"satoshi"`
	Bio             *string `json:"bio,omitempty" example:"gm"`
	ProfilePhotoURL *string `json:"profile_photo_url,omitempty" example:"https://cdn.example.com/satoshi.png"`
}

type SigninRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required" example:"0x9fC3dA866e7DF3a1c57adE1a97c9f00a70f010c8"`
}

type TokenVerifyRequest struct {
	Token string `json:"token"`
}

type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type SignoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Token is returned by signup, signin and refresh.
// @Description Access and refresh token pair
type Token struct {
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
	TokenType    string               `json:"token_type" example:"bearer"`
	UserInfo     *usermodels.UserInfo `json:"user_info"`
}

type VerifyResponse struct {
	Valid bool `json:"valid"`
}

type MessageResponse struct {
	Msg string `json:"msg" example:"Successfully logged out"`
}

type ErrorResponse = usermodels.ErrorResponse
