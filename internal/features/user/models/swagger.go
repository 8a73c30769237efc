package models

// ErrorResponse represents an error response
type ErrorResponse struct {
	Detail    string `json:"detail" example:"User not found"`
	Code      string `json:"code" example:"USER_NOT_FOUND"`
	RequestID string `json:"request_id,omitempty" example:"5b0f6d7e-1f7c-4d7b-9c4b-2f4f1d5c6a7e"`
}

// ProfileUpdate is the body of PATCH /users/me. Absent fields are left unchanged.
type ProfileUpdate struct {
	DisplayName     *string `json:"display_name,omitempty" example:"satoshi"`
	Bio             *string `json:"bio,omitempty" example:"gm"`
	ProfilePhotoURL *string `json:"profile_photo_url,omitempty" example:"https://cdn.example.com/a.png"`
}

// RolesUpdate replaces a user's roles. The first role is the primary one.
type RolesUpdate struct {
	Roles []string `json:"roles" binding:"required,min=1" example:"admin,general"`
}
