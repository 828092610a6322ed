package domain

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ValidRole reports whether s is one of the two managed role names.
func ValidRole(s string) bool {
	return s == string(RoleAdmin) || s == string(RoleUser)
}

type User struct {
	ID       int64  `json:"id" gorm:"primaryKey"`
	Name     string `json:"name" gorm:"not null"`
	Email    string `json:"email" gorm:"uniqueIndex;not null"`
	Username string `json:"username" gorm:"uniqueIndex;not null"`

	// PasswordHash is set in local-auth deployments, KeycloakUserID in
	// delegated ones. The two are never both populated for the same row.
	PasswordHash   string `json:"-"`
	KeycloakUserID string `json:"-" gorm:"index"`

	Role   Role `json:"role" gorm:"not null;default:user"`
	Active bool `json:"active" gorm:"not null;default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
