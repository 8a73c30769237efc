package mapper

import "lascaux-backend/internal/features/user/models"

// ToUserInfo maps a User to its public projection. Empty optional strings
// are rendered as null.
func ToUserInfo(user *models.User) *models.UserInfo {
	roles := user.Roles
	if len(roles) == 0 {
		roles = []string{models.RoleGeneral}
	}

	return &models.UserInfo{
		ID:              user.ID,
		WalletAddress:   user.WalletAddress,
		DisplayName:     user.DisplayName,
		Bio:             optional(user.Bio),
		ProfilePhotoURL: optional(user.ProfilePhotoURL),
		CreatedAt:       user.CreatedAt.UTC(),
		LastLogin:       user.LastLogin,
		Roles:           append([]string(nil), roles...),
		InvitedBy:       user.InvitedBy,
		Rank:            optional(user.Rank),
		FollowersCount:  len(user.Followers),
	}
}

func ToUserInfos(users []*models.User) []*models.UserInfo {
	out := make([]*models.UserInfo, 0, len(users))
	for _, u := range users {
		out = append(out, ToUserInfo(u))
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
