package server

import (
	"encoding/json"
	"net/http"
	"time"

	"wavecast/logger"
	"wavecast/model"
)

// publicProfile is the view of an account anyone may see.
type publicProfile struct {
	ID        int64         `json:"id"`
	Role      model.Role    `json:"role"`
	Profile   model.Profile `json:"profile"`
	CreatedAt time.Time     `json:"createdAt"`
}

// GetUserHandler returns a user. The full record goes to the user themself
// and to admins; everyone else sees the public profile.
func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	user, err := h.userRepo.FindByID(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if user == nil || !user.Active {
		h.fail(w, errNotFound("User not found"))
		return
	}

	if caller, ok := CurrentUser(r.Context()); ok && (caller.IsAdmin() || caller.ID == user.ID) {
		writeJSON(w, http.StatusOK, user)
		return
	}

	writeJSON(w, http.StatusOK, publicProfile{
		ID:        user.ID,
		Role:      user.Role,
		Profile:   user.Profile,
		CreatedAt: user.CreatedAt,
	})
}

// UpdateUserHandler updates the profile fields of an account. Guarded by the
// owner-or-admin check on the route.
func (h *APIHandler) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	var req struct {
		Bio       *string `json:"bio"`
		BirthYear *int    `json:"birthYear"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, errValidation("Invalid request body"))
		return
	}

	user, err := h.userRepo.FindByID(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if user == nil {
		h.fail(w, errNotFound("User not found"))
		return
	}

	if req.Bio != nil {
		if len(*req.Bio) > 1000 {
			h.fail(w, errValidation("Bio exceeds 1000 characters"))
			return
		}
		user.Profile.Bio = *req.Bio
	}
	if req.BirthYear != nil {
		if *req.BirthYear < 1900 || *req.BirthYear > time.Now().Year() {
			h.fail(w, errValidation("Birth year out of range"))
			return
		}
		user.Profile.BirthYear = req.BirthYear
	}

	if err := h.userRepo.Update(user); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// AvatarHandler accepts an avatar image upload for the account.
func (h *APIHandler) AvatarHandler(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	scope, apiErr := h.uploader.Accept(r, AvatarField)
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	committed := false
	defer func() {
		if !committed {
			scope.Cleanup()
		}
	}()

	user, err := h.userRepo.FindByID(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if user == nil {
		h.fail(w, errNotFound("User not found"))
		return
	}

	avatar := scope.File("avatar")
	user.Profile.Avatar = avatar.URL
	if err := h.userRepo.Update(user); err != nil {
		h.fail(w, err)
		return
	}

	h.mirrorUploads(r.Context(), scope)

	committed = true
	writeJSON(w, http.StatusOK, user)
}

// UpdateRoleHandler changes an account's role. Admin only.
func (h *APIHandler) UpdateRoleHandler(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	var req struct {
		Role model.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, errValidation("Invalid request body"))
		return
	}
	if !req.Role.Valid() {
		h.fail(w, errValidation("Invalid role", "role must be one of: standard, contributor, admin"))
		return
	}

	user, err := h.userRepo.FindByID(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if user == nil {
		h.fail(w, errNotFound("User not found"))
		return
	}

	if err := h.userRepo.UpdateRole(id, req.Role); err != nil {
		h.fail(w, err)
		return
	}

	user.Role = req.Role
	logger.Info("user role updated", logger.Int64("userId", id), logger.String("role", string(req.Role)))
	writeJSON(w, http.StatusOK, user)
}

// UpdateStatusHandler activates or deactivates an account. Admin only.
// Deactivation cascades: the account's tracks are marked inactive too.
func (h *APIHandler) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, errValidation("Invalid request body"))
		return
	}

	user, err := h.userRepo.FindByID(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if user == nil {
		h.fail(w, errNotFound("User not found"))
		return
	}

	if err := h.userRepo.SetActive(id, req.Active); err != nil {
		h.fail(w, err)
		return
	}

	if !req.Active {
		deactivated, err := h.trackRepo.DeactivateByUploader(id)
		if err != nil {
			logger.Error("failed to deactivate tracks of deactivated user", logger.Int64("userId", id), logger.ErrorField(err))
		} else if deactivated > 0 {
			h.catalog.Invalidate(r.Context())
			logger.Info("tracks deactivated with account", logger.Int64("userId", id), logger.Int64("count", deactivated))
		}
	}

	user.Active = req.Active
	writeJSON(w, http.StatusOK, user)
}

// UserStatsHandler returns the account's usage counters plus its live
// active-track count.
func (h *APIHandler) UserStatsHandler(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	user, err := h.userRepo.FindByID(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if user == nil {
		h.fail(w, errNotFound("User not found"))
		return
	}

	trackCount, err := h.trackRepo.CountByUploader(id)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uploads":     user.Stats.Uploads,
		"plays":       user.Stats.Plays,
		"lastLoginAt": user.Stats.LastLoginAt,
		"trackCount":  trackCount,
	})
}
