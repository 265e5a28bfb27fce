package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wavecast/logger"
	"wavecast/model"
	"wavecast/repository"
)

const maxTitleLength = 200

type listingResponse struct {
	Tracks []*model.Track `json:"tracks"`
	Total  int64          `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

// CreateTrackHandler accepts a multipart track upload: an audio file plus
// optional cover art and metadata form fields. Contributor uploads start
// pending; admin uploads go live immediately.
func (h *APIHandler) CreateTrackHandler(w http.ResponseWriter, r *http.Request) {
	user, _ := CurrentUser(r.Context())

	scope, apiErr := h.uploader.Accept(r, AudioField, CoverImageField)
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	// Everything after acceptance must release the stored files on failure.
	committed := false
	defer func() {
		if !committed {
			scope.Cleanup()
		}
	}()

	title := strings.TrimSpace(r.FormValue("title"))
	artist := strings.TrimSpace(r.FormValue("artist"))
	var details []string
	if title == "" {
		details = append(details, "title is required")
	} else if len(title) > maxTitleLength {
		details = append(details, "title exceeds 200 characters")
	}
	if artist == "" {
		details = append(details, "artist is required")
	} else if len(artist) > maxTitleLength {
		details = append(details, "artist exceeds 200 characters")
	}
	if len(details) > 0 {
		h.fail(w, errValidation("Track failed validation", details...))
		return
	}

	year, _ := strconv.Atoi(r.FormValue("year"))
	duration, _ := strconv.ParseFloat(r.FormValue("duration"), 64)

	var tags []string
	if raw := strings.TrimSpace(r.FormValue("tags")); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	audio := scope.File("audio")
	if audio == nil {
		h.fail(w, errValidation(`Missing required file field "audio"`))
		return
	}

	status, moderation := model.InitialStatus(user)

	track := &model.Track{
		Title:    title,
		Artist:   artist,
		Album:    strings.TrimSpace(r.FormValue("album")),
		Genre:    strings.TrimSpace(r.FormValue("genre")),
		Year:     year,
		Duration: duration,
		Lyrics:   r.FormValue("lyrics"),
		Language: strings.TrimSpace(r.FormValue("language")),
		Tags:     tags,
		AudioFile: model.FileRef{
			Filename:     audio.Filename,
			OriginalName: audio.OriginalName,
			MimeType:     audio.MimeType,
			Size:         audio.Size,
			URL:          audio.URL,
		},
		UploadedBy: user.ID,
		Status:     status,
		Moderation: moderation,
		Active:     true,
	}

	if cover := scope.File("coverImage"); cover != nil {
		track.CoverImage = &model.FileRef{
			Filename:     cover.Filename,
			OriginalName: cover.OriginalName,
			MimeType:     cover.MimeType,
			Size:         cover.Size,
			URL:          cover.URL,
		}
	}

	id, err := h.trackRepo.Create(track)
	if err != nil {
		h.fail(w, err)
		return
	}
	track.ID = id
	now := time.Now()
	track.CreatedAt = now
	track.UpdatedAt = now

	if err := h.userRepo.IncrementUploads(user.ID); err != nil {
		logger.Warn("failed to increment upload counter", logger.Int64("userId", user.ID), logger.ErrorField(err))
	}

	h.mirrorUploads(r.Context(), scope)

	if track.Status == model.StatusApproved {
		h.catalog.Invalidate(r.Context())
	}

	committed = true
	logger.Info("track created",
		logger.Int64("trackId", id),
		logger.Int64("userId", user.ID),
		logger.String("status", string(track.Status)))
	writeJSON(w, http.StatusCreated, track)
}

// mirrorUploads copies accepted files to the object-storage mirror. Local
// disk is the source of truth; mirror failures are logged and skipped.
func (h *APIHandler) mirrorUploads(ctx context.Context, scope *UploadScope) {
	if !h.objects.Enabled() {
		return
	}
	for _, f := range scope.Files() {
		objectPath := strings.TrimPrefix(f.URL, "/uploads/")
		if err := h.objects.MirrorFile(ctx, objectPath, f.Path, f.MimeType); err != nil {
			logger.Warn("failed to mirror upload", logger.String("object", objectPath), logger.ErrorField(err))
		}
	}
}

// ListTracksHandler serves the public catalog with pagination and optional
// text/genre/language filters. Only approved, active tracks appear.
func (h *APIHandler) ListTracksHandler(w http.ResponseWriter, r *http.Request) {
	page, limit, sortBy, sortOrder := listingParams(r)
	q := r.URL.Query()

	tracks, total, err := h.trackRepo.Query(repository.TrackQuery{
		Text:      q.Get("search"),
		Genre:     q.Get("genre"),
		Language:  q.Get("language"),
		Status:    model.StatusApproved,
		Page:      page,
		Limit:     limit,
		SortBy:    sortBy,
		SortOrder: sortOrder,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	writeJSON(w, http.StatusOK, listingResponse{Tracks: tracks, Total: total, Page: page, Limit: limit})
}

// listScoped serves one of the fixed public listings, cache first.
func (h *APIHandler) listScoped(w http.ResponseWriter, r *http.Request, scope string, q repository.TrackQuery) {
	if cached, ok := h.catalog.GetTracks(r.Context(), scope); ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": cached})
		return
	}

	tracks, _, err := h.trackRepo.Query(q)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.catalog.SetTracks(r.Context(), scope, tracks)
	writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": tracks})
}

// FeaturedTracksHandler lists featured tracks.
func (h *APIHandler) FeaturedTracksHandler(w http.ResponseWriter, r *http.Request) {
	h.listScoped(w, r, "featured", repository.TrackQuery{
		Status:       model.StatusApproved,
		FeaturedOnly: true,
		Limit:        20,
	})
}

// PopularTracksHandler lists the most played tracks.
func (h *APIHandler) PopularTracksHandler(w http.ResponseWriter, r *http.Request) {
	h.listScoped(w, r, "popular", repository.TrackQuery{
		Status: model.StatusApproved,
		Limit:  20,
		SortBy: "playCount",
	})
}

// RecentTracksHandler lists the newest approved tracks.
func (h *APIHandler) RecentTracksHandler(w http.ResponseWriter, r *http.Request) {
	h.listScoped(w, r, "recent", repository.TrackQuery{
		Status: model.StatusApproved,
		Limit:  20,
		SortBy: "createdAt",
	})
}

// UserTracksHandler lists a user's approved tracks.
func (h *APIHandler) UserTracksHandler(w http.ResponseWriter, r *http.Request) {
	userID, apiErr := pathID(r, "userId")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	page, limit, sortBy, sortOrder := listingParams(r)
	tracks, total, err := h.trackRepo.Query(repository.TrackQuery{
		Status:     model.StatusApproved,
		UploadedBy: userID,
		Page:       page,
		Limit:      limit,
		SortBy:     sortBy,
		SortOrder:  sortOrder,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	writeJSON(w, http.StatusOK, listingResponse{Tracks: tracks, Total: total, Page: page, Limit: limit})
}

// GetTrackHandler returns one track. Tracks outside public visibility are
// only shown to their owner or an admin; everyone else gets 404.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	user, _ := CurrentUser(r.Context())
	includeInactive := user != nil && user.IsAdmin()

	track, err := h.trackRepo.FindByID(id, includeInactive)
	if err != nil {
		h.fail(w, err)
		return
	}
	if track == nil {
		h.fail(w, errNotFound("Track not found"))
		return
	}

	if !track.Visible() {
		allowed := user != nil && (user.IsAdmin() || user.ID == track.UploadedBy)
		if !allowed {
			h.fail(w, errNotFound("Track not found"))
			return
		}
	}

	writeJSON(w, http.StatusOK, track)
}

// PlayHandler counts a play. Anonymous plays count on the track; an
// authenticated caller's own play counter moves too.
func (h *APIHandler) PlayHandler(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	count, err := h.trackRepo.IncrementPlayCount(id)
	if err != nil {
		h.fail(w, err)
		return
	}

	if user, ok := CurrentUser(r.Context()); ok {
		if err := h.userRepo.IncrementPlays(user.ID); err != nil {
			logger.Warn("failed to increment play counter", logger.Int64("userId", user.ID), logger.ErrorField(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]int64{"playCount": count})
}

// RateHandler folds a 1-5 rating into the track's running average.
func (h *APIHandler) RateHandler(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	var req struct {
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, errValidation("Invalid request body"))
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		h.fail(w, errValidation("Rating must be between 1 and 5"))
		return
	}

	avg, count, err := h.trackRepo.AddRating(id, req.Rating)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"averageRating": avg,
		"ratingCount":   count,
	})
}

// FavoriteHandler bumps the favorite counter.
func (h *APIHandler) FavoriteHandler(w http.ResponseWriter, r *http.Request) {
	h.moveFavorite(w, r, 1)
}

// UnfavoriteHandler drops the favorite counter, clamped at zero.
func (h *APIHandler) UnfavoriteHandler(w http.ResponseWriter, r *http.Request) {
	h.moveFavorite(w, r, -1)
}

func (h *APIHandler) moveFavorite(w http.ResponseWriter, r *http.Request, delta int64) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	count, err := h.trackRepo.AddFavorite(id, delta)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"favoriteCount": count})
}

// DownloadHandler hands out the audio URL and counts the download.
func (h *APIHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	track, err := h.trackRepo.FindByID(id, false)
	if err != nil {
		h.fail(w, err)
		return
	}
	if track == nil || !track.Visible() {
		h.fail(w, errNotFound("Track not found"))
		return
	}

	if err := h.trackRepo.IncrementDownloads(id); err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": track.AudioFile.URL})
}

// DeleteTrackHandler soft-deletes a track. Route is guarded by the
// owner-or-admin check; the record stays for direct admin lookup.
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	if err := h.trackRepo.SoftDelete(id); err != nil {
		h.fail(w, err)
		return
	}

	h.catalog.Invalidate(r.Context())
	logger.Info("track soft-deleted", logger.Int64("trackId", id))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Track deleted"})
}

type moderationRequest struct {
	Notes string `json:"notes"`
}

// ApproveTrackHandler approves a pending (or any) track. Transitions are
// unconditional overwrites; re-approving refreshes moderator and timestamp.
func (h *APIHandler) ApproveTrackHandler(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, model.StatusApproved)
}

// RejectTrackHandler rejects a track.
func (h *APIHandler) RejectTrackHandler(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, model.StatusRejected)
}

func (h *APIHandler) moderate(w http.ResponseWriter, r *http.Request, status model.ModerationStatus) {
	user, _ := CurrentUser(r.Context())

	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	var req moderationRequest
	if r.Body != nil {
		// Notes are optional; an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	track, err := h.trackRepo.FindByID(id, true)
	if err != nil {
		h.fail(w, err)
		return
	}
	if track == nil {
		h.fail(w, errNotFound("Track not found"))
		return
	}

	switch status {
	case model.StatusApproved:
		track.Approve(user.ID, req.Notes)
	case model.StatusRejected:
		track.Reject(user.ID, req.Notes)
	default:
		track.Hide(user.ID, req.Notes)
	}

	if err := h.trackRepo.SetModeration(id, track.Status, user.ID, req.Notes); err != nil {
		h.fail(w, err)
		return
	}

	h.catalog.Invalidate(r.Context())
	logger.Info("track moderated",
		logger.Int64("trackId", id),
		logger.Int64("moderatorId", user.ID),
		logger.String("status", string(status)))
	writeJSON(w, http.StatusOK, track)
}

// FeatureTrackHandler flips the featured flag.
func (h *APIHandler) FeatureTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, apiErr := pathID(r, "id")
	if apiErr != nil {
		h.fail(w, apiErr)
		return
	}

	var req struct {
		Featured bool `json:"featured"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, errValidation("Invalid request body"))
		return
	}

	if err := h.trackRepo.SetFeatured(id, req.Featured); err != nil {
		h.fail(w, err)
		return
	}

	h.catalog.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "featured": req.Featured})
}
