package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"wavecast/core/auth"
	"wavecast/logger"
	"wavecast/model"
	"wavecast/repository"

	"errors"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// RegisterRequest is the registration request body.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio,omitempty"`
}

// LoginRequest is the login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenUserResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// RegisterHandler creates a new account and returns a token for it.
// Duplicate email responds 400, matching the documented contract.
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, errValidation("Invalid request body"))
		return
	}

	var details []string
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		details = append(details, "email is required")
	} else if !emailPattern.MatchString(req.Email) {
		details = append(details, "email format is invalid")
	}
	if len(req.Password) < 8 {
		details = append(details, "password must be at least 8 characters")
	}
	if len(details) > 0 {
		h.fail(w, errValidation("Registration failed validation", details...))
		return
	}

	existing, err := h.userRepo.FindByEmail(req.Email)
	if err != nil {
		h.fail(w, err)
		return
	}
	if existing != nil {
		h.fail(w, errValidation("Email already registered"))
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: hashed,
		Role:         model.RoleStandard,
		Active:       true,
		Preferences:  model.Preferences{Language: "en", FontSize: "medium", Notifications: true},
		Profile:      model.Profile{Bio: req.Bio},
	}

	if err := h.userRepo.Create(user); err != nil {
		// A concurrent registration can still hit the unique index.
		if errors.Is(err, repository.ErrDuplicateEmail) {
			h.fail(w, errValidation("Email already registered"))
			return
		}
		h.fail(w, err)
		return
	}

	token, err := h.tokens.GenerateToken(user.ID)
	if err != nil {
		h.fail(w, err)
		return
	}

	logger.Info("user registered", logger.Int64("userId", user.ID))
	writeJSON(w, http.StatusCreated, tokenUserResponse{Token: token, User: user})
}

// LoginHandler authenticates by email and password. Bad credentials and
// deactivated accounts both answer 401.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, errValidation("Invalid request body"))
		return
	}

	if req.Email == "" || req.Password == "" {
		h.fail(w, errValidation("Email and password are required"))
		return
	}

	user, err := h.userRepo.FindByEmail(req.Email)
	if err != nil {
		h.fail(w, err)
		return
	}
	if user == nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		logger.Warn("login failed", logger.String("email", req.Email))
		h.fail(w, errUnauthorized("Invalid email or password"))
		return
	}
	if !user.Active {
		h.fail(w, errUnauthorized("Account deactivated"))
		return
	}

	token, err := h.tokens.GenerateToken(user.ID)
	if err != nil {
		h.fail(w, err)
		return
	}

	if err := h.userRepo.RecordLogin(user.ID); err != nil {
		logger.Warn("failed to record login", logger.Int64("userId", user.ID), logger.ErrorField(err))
	}

	logger.Info("user logged in", logger.Int64("userId", user.ID))
	writeJSON(w, http.StatusOK, tokenUserResponse{Token: token, User: user})
}

// MeHandler returns the authenticated account.
func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r.Context())
	writeJSON(w, http.StatusOK, user)
}

// RefreshHandler re-issues a token for an already-authenticated caller.
// The old token stays valid until its own expiry.
func (h *APIHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r.Context())

	token, err := h.tokens.GenerateToken(user.ID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// LogoutHandler acknowledges logout. Tokens are stateless, so there is
// nothing to invalidate server-side; clients discard the token.
func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

var validFontSizes = map[string]bool{"small": true, "medium": true, "large": true}

// UpdatePreferencesHandler replaces the caller's preference set.
func (h *APIHandler) UpdatePreferencesHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r.Context())

	var prefs model.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		h.fail(w, errValidation("Invalid request body"))
		return
	}

	if prefs.Language == "" {
		prefs.Language = "en"
	}
	if prefs.FontSize == "" {
		prefs.FontSize = "medium"
	}
	if !validFontSizes[prefs.FontSize] {
		h.fail(w, errValidation("Invalid font size", "fontSize must be one of: small, medium, large"))
		return
	}

	if err := h.userRepo.UpdatePreferences(user.ID, prefs); err != nil {
		h.fail(w, err)
		return
	}

	user.Preferences = prefs
	writeJSON(w, http.StatusOK, user)
}
