package model

import "time"

// Role is the closed set of account roles.
type Role string

const (
	RoleStandard    Role = "standard"
	RoleContributor Role = "contributor"
	RoleAdmin       Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStandard, RoleContributor, RoleAdmin:
		return true
	}
	return false
}

// Preferences holds per-user UI and notification settings.
type Preferences struct {
	Language      string `json:"language" gorm:"size:10;default:en"`
	FontSize      string `json:"fontSize" gorm:"size:10;default:medium"`
	HighContrast  bool   `json:"highContrast"`
	Notifications bool   `json:"notifications" gorm:"default:true"`
}

// Profile holds the public-facing part of an account.
type Profile struct {
	Bio       string `json:"bio,omitempty" gorm:"size:1000"`
	BirthYear *int   `json:"birthYear,omitempty"`
	Avatar    string `json:"avatar,omitempty" gorm:"size:500"`
}

// UserStats tracks account usage counters.
type UserStats struct {
	Uploads     int64      `json:"uploads"`
	Plays       int64      `json:"plays"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// User represents an account in the system.
type User struct {
	ID           int64       `json:"id" gorm:"primaryKey"`
	Email        string      `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string      `json:"-" gorm:"size:255;not null"`
	Role         Role        `json:"role" gorm:"size:20;default:standard"`
	Active       bool        `json:"active" gorm:"default:true"`
	Preferences  Preferences `json:"preferences" gorm:"embedded;embeddedPrefix:pref_"`
	Profile      Profile     `json:"profile" gorm:"embedded;embeddedPrefix:profile_"`
	Stats        UserStats   `json:"stats" gorm:"embedded;embeddedPrefix:stat_"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasRole reports whether the user's role is one of the given roles.
func (u *User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
