package users

import "github.com/kennethcanega/userdesk/internal/domain"

type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
	Active   *bool  `json:"active"`
}

// UpdateUserRequest carries a partial update; nil fields are left untouched.
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	Active   *bool   `json:"active"`
}

// UserSummary is the reduced shape returned by directory search.
type UserSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ProfileResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}

func toProfile(u *domain.User) ProfileResponse {
	return ProfileResponse{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Username: u.Username,
		Role:     string(u.Role),
		Active:   u.Active,
	}
}

func toSummaries(list []domain.User) []UserSummary {
	out := make([]UserSummary, 0, len(list))
	for _, u := range list {
		out = append(out, UserSummary{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	return out
}

func toProfiles(list []domain.User) []ProfileResponse {
	out := make([]ProfileResponse, 0, len(list))
	for i := range list {
		out = append(out, toProfile(&list[i]))
	}
	return out
}
