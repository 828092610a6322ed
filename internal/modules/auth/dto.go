package auth

import "github.com/kennethcanega/userdesk/internal/domain"

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserPayload is the profile shape returned next to the access token.
// Password material is never part of it.
type UserPayload struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}

func toUserPayload(u *domain.User) UserPayload {
	return UserPayload{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Username: u.Username,
		Role:     string(u.Role),
		Active:   u.Active,
	}
}
