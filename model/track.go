package model

import "time"

// ModerationStatus is the closed set of catalog moderation states.
type ModerationStatus string

const (
	StatusPending  ModerationStatus = "pending"
	StatusApproved ModerationStatus = "approved"
	StatusRejected ModerationStatus = "rejected"
	StatusHidden   ModerationStatus = "hidden"
)

// Valid reports whether s is a known moderation status.
func (s ModerationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusHidden:
		return true
	}
	return false
}

// FileRef describes a stored upload.
type FileRef struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
}

// Moderation records who moderated a track and when.
type Moderation struct {
	By    int64      `json:"by,omitempty"`
	At    *time.Time `json:"at,omitempty"`
	Notes string     `json:"notes,omitempty"`
}

// TrackStats tracks engagement counters. AvgRating is always maintained
// together with RatingCount as a running weighted mean.
type TrackStats struct {
	Plays        int64      `json:"plays"`
	Favorites    int64      `json:"favorites"`
	Downloads    int64      `json:"downloads"`
	LastPlayedAt *time.Time `json:"lastPlayedAt,omitempty"`
	AvgRating    float64    `json:"avgRating"`
	RatingCount  int64      `json:"ratingCount"`
}

// Track represents an audio track in the catalog.
type Track struct {
	ID         int64            `json:"id"`
	Title      string           `json:"title"`
	Artist     string           `json:"artist"`
	Album      string           `json:"album,omitempty"`
	Genre      string           `json:"genre,omitempty"`
	Year       int              `json:"year,omitempty"`
	Duration   float64          `json:"duration,omitempty"`
	Lyrics     string           `json:"lyrics,omitempty"`
	Language   string           `json:"language,omitempty"`
	Tags       []string         `json:"tags,omitempty"`
	AudioFile  FileRef          `json:"audioFile"`
	CoverImage *FileRef         `json:"coverImage,omitempty"`
	UploadedBy int64            `json:"uploadedBy"`
	Status     ModerationStatus `json:"status"`
	Moderation Moderation       `json:"moderation"`
	Stats      TrackStats       `json:"stats"`
	Active     bool             `json:"active"`
	Featured   bool             `json:"featured"`
	FeaturedAt *time.Time       `json:"featuredAt,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// InitialStatus returns the moderation status a fresh upload starts in.
// Admin uploads go live immediately with the uploader recorded as moderator.
func InitialStatus(uploader *User) (ModerationStatus, Moderation) {
	if uploader.IsAdmin() {
		now := time.Now()
		return StatusApproved, Moderation{By: uploader.ID, At: &now}
	}
	return StatusPending, Moderation{}
}

// Approve marks the track approved. Transitions are unconditional
// overwrites: re-approving replaces the previous moderator and timestamp.
func (t *Track) Approve(moderatorID int64, notes string) {
	t.setModeration(StatusApproved, moderatorID, notes)
}

// Reject marks the track rejected.
func (t *Track) Reject(moderatorID int64, notes string) {
	t.setModeration(StatusRejected, moderatorID, notes)
}

// Hide pulls the track from every public surface. Reachable from any state,
// admin-only, not exposed as a dedicated route.
func (t *Track) Hide(moderatorID int64, notes string) {
	t.setModeration(StatusHidden, moderatorID, notes)
}

func (t *Track) setModeration(status ModerationStatus, moderatorID int64, notes string) {
	now := time.Now()
	t.Status = status
	t.Moderation = Moderation{By: moderatorID, At: &now, Notes: notes}
	t.UpdatedAt = now
}

// Visible reports whether the track appears in public listings.
func (t *Track) Visible() bool {
	return t.Active && t.Status == StatusApproved
}
