package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wavecast/model"

	"gorm.io/gorm"
)

// ErrDuplicateEmail is returned when an email address is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository defines the interface for user data operations.
// Finders return (nil, nil) when no record matches.
type UserRepository interface {
	Create(user *model.User) error
	FindByID(id int64) (*model.User, error)
	FindByEmail(email string) (*model.User, error)
	Update(user *model.User) error
	UpdatePreferences(id int64, prefs model.Preferences) error
	UpdateRole(id int64, role model.Role) error
	SetActive(id int64, active bool) error
	RecordLogin(id int64) error
	IncrementUploads(id int64) error
	IncrementPlays(id int64) error
	Count() (int64, error)
}

// gormUserRepository implements UserRepository on the GORM connection.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new gormUserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// Create adds a new user. Email is stored lower-cased so uniqueness is
// case-insensitive.
func (r *gormUserRepository) Create(user *model.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := r.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(strings.ToLower(err.Error()), "duplicate entry") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByID retrieves a user by ID.
func (r *gormUserRepository) FindByID(id int64) (*model.User, error) {
	var user model.User
	err := r.db.First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to find user by ID %d: %w", id, err)
	}
	return &user, nil
}

// FindByEmail retrieves a user by email address, case-insensitively.
func (r *gormUserRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to find user by email %s: %w", email, err)
	}
	return &user, nil
}

// Update persists the full user record.
func (r *gormUserRepository) Update(user *model.User) error {
	if err := r.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user %d: %w", user.ID, err)
	}
	return nil
}

// UpdatePreferences replaces the user's preference set.
func (r *gormUserRepository) UpdatePreferences(id int64, prefs model.Preferences) error {
	err := r.db.Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"pref_language":       prefs.Language,
		"pref_font_size":      prefs.FontSize,
		"pref_high_contrast":  prefs.HighContrast,
		"pref_notifications":  prefs.Notifications,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update preferences for user %d: %w", id, err)
	}
	return nil
}

// UpdateRole changes the user's role.
func (r *gormUserRepository) UpdateRole(id int64, role model.Role) error {
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Update("role", role).Error; err != nil {
		return fmt.Errorf("failed to update role for user %d: %w", id, err)
	}
	return nil
}

// SetActive flips the account's active flag.
func (r *gormUserRepository) SetActive(id int64, active bool) error {
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Update("active", active).Error; err != nil {
		return fmt.Errorf("failed to set active=%v for user %d: %w", active, id, err)
	}
	return nil
}

// RecordLogin stamps the last-login time.
func (r *gormUserRepository) RecordLogin(id int64) error {
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Update("stat_last_login_at", time.Now()).Error; err != nil {
		return fmt.Errorf("failed to record login for user %d: %w", id, err)
	}
	return nil
}

// IncrementUploads bumps the uploads counter with a single atomic UPDATE.
func (r *gormUserRepository) IncrementUploads(id int64) error {
	err := r.db.Model(&model.User{}).Where("id = ?", id).
		Update("stat_uploads", gorm.Expr("stat_uploads + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment uploads for user %d: %w", id, err)
	}
	return nil
}

// IncrementPlays bumps the plays counter with a single atomic UPDATE.
func (r *gormUserRepository) IncrementPlays(id int64) error {
	err := r.db.Model(&model.User{}).Where("id = ?", id).
		Update("stat_plays", gorm.Expr("stat_plays + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment plays for user %d: %w", id, err)
	}
	return nil
}

// Count returns the total number of accounts.
func (r *gormUserRepository) Count() (int64, error) {
	var count int64
	if err := r.db.Model(&model.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
