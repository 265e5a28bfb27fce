package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"wavecast/model"
)

// ErrTrackNotFound is returned by updates that matched no row.
var ErrTrackNotFound = errors.New("track not found")

// TrackQuery describes a filtered, paginated catalog listing.
type TrackQuery struct {
	Text            string
	Genre           string
	Language        string
	Status          model.ModerationStatus // empty matches any status
	UploadedBy      int64
	FeaturedOnly    bool
	IncludeInactive bool
	Page            int
	Limit           int
	SortBy          string
	SortOrder       string
}

// TrackRepository defines the interface for track data operations.
// Finders return (nil, nil) when no record matches. Counter updates are
// single-statement atomic UPDATEs so concurrent requests never lose writes.
type TrackRepository interface {
	Create(track *model.Track) (int64, error)
	FindByID(id int64, includeInactive bool) (*model.Track, error)
	Query(q TrackQuery) ([]*model.Track, int64, error)
	IncrementPlayCount(id int64) (int64, error)
	AddRating(id int64, rating int) (avg float64, count int64, err error)
	AddFavorite(id int64, delta int64) (int64, error)
	IncrementDownloads(id int64) error
	SetModeration(id int64, status model.ModerationStatus, moderatorID int64, notes string) error
	SetFeatured(id int64, featured bool) error
	SoftDelete(id int64) error
	DeactivateByUploader(uploaderID int64) (int64, error)
	CountByUploader(uploaderID int64) (int64, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{DB: db}
}

const trackColumns = `id, title, artist, album, genre, year, duration, lyrics, language, tags,
	audio_filename, audio_original_name, audio_mime_type, audio_size, audio_url,
	cover_filename, cover_original_name, cover_mime_type, cover_size, cover_url,
	uploaded_by, status, moderated_by, moderated_at, moderation_notes,
	play_count, favorite_count, download_count, last_played_at, avg_rating, rating_count,
	active, featured, featured_at, created_at, updated_at`

// sortColumns whitelists user-supplied sort keys.
var sortColumns = map[string]string{
	"createdAt":     "created_at",
	"title":         "title",
	"artist":        "artist",
	"year":          "year",
	"playCount":     "play_count",
	"favoriteCount": "favorite_count",
	"avgRating":     "avg_rating",
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanTrack(row scannable) (*model.Track, error) {
	t := &model.Track{}
	var (
		album, genre, lyrics, language, tags          sql.NullString
		year                                          sql.NullInt64
		duration                                      sql.NullFloat64
		coverFilename, coverOriginal, coverMime       sql.NullString
		coverSize                                     sql.NullInt64
		coverURL                                      sql.NullString
		moderatedBy                                   sql.NullInt64
		moderatedAt, lastPlayedAt, featuredAt         sql.NullTime
		moderationNotes                               sql.NullString
	)

	err := row.Scan(
		&t.ID, &t.Title, &t.Artist, &album, &genre, &year, &duration, &lyrics, &language, &tags,
		&t.AudioFile.Filename, &t.AudioFile.OriginalName, &t.AudioFile.MimeType, &t.AudioFile.Size, &t.AudioFile.URL,
		&coverFilename, &coverOriginal, &coverMime, &coverSize, &coverURL,
		&t.UploadedBy, &t.Status, &moderatedBy, &moderatedAt, &moderationNotes,
		&t.Stats.Plays, &t.Stats.Favorites, &t.Stats.Downloads, &lastPlayedAt, &t.Stats.AvgRating, &t.Stats.RatingCount,
		&t.Active, &t.Featured, &featuredAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Album = album.String
	t.Genre = genre.String
	t.Lyrics = lyrics.String
	t.Language = language.String
	if year.Valid {
		t.Year = int(year.Int64)
	}
	t.Duration = duration.Float64
	if tags.Valid && tags.String != "" {
		t.Tags = strings.Split(tags.String, ",")
	}
	if coverFilename.Valid {
		t.CoverImage = &model.FileRef{
			Filename:     coverFilename.String,
			OriginalName: coverOriginal.String,
			MimeType:     coverMime.String,
			Size:         coverSize.Int64,
			URL:          coverURL.String,
		}
	}
	t.Moderation.By = moderatedBy.Int64
	if moderatedAt.Valid {
		at := moderatedAt.Time
		t.Moderation.At = &at
	}
	t.Moderation.Notes = moderationNotes.String
	if lastPlayedAt.Valid {
		at := lastPlayedAt.Time
		t.Stats.LastPlayedAt = &at
	}
	if featuredAt.Valid {
		at := featuredAt.Time
		t.FeaturedAt = &at
	}
	return t, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create adds a new track to the database.
func (r *mysqlTrackRepository) Create(track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (title, artist, album, genre, year, duration, lyrics, language, tags,
		audio_filename, audio_original_name, audio_mime_type, audio_size, audio_url,
		cover_filename, cover_original_name, cover_mime_type, cover_size, cover_url,
		uploaded_by, status, moderated_by, moderated_at, moderation_notes, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for Create: %w", err)
	}
	defer stmt.Close()

	var year sql.NullInt64
	if track.Year != 0 {
		year = sql.NullInt64{Int64: int64(track.Year), Valid: true}
	}
	var coverFilename, coverOriginal, coverMime, coverURL sql.NullString
	var coverSize sql.NullInt64
	if track.CoverImage != nil {
		coverFilename = nullStr(track.CoverImage.Filename)
		coverOriginal = nullStr(track.CoverImage.OriginalName)
		coverMime = nullStr(track.CoverImage.MimeType)
		coverSize = sql.NullInt64{Int64: track.CoverImage.Size, Valid: true}
		coverURL = nullStr(track.CoverImage.URL)
	}
	var moderatedBy sql.NullInt64
	var moderatedAt sql.NullTime
	if track.Moderation.By != 0 {
		moderatedBy = sql.NullInt64{Int64: track.Moderation.By, Valid: true}
	}
	if track.Moderation.At != nil {
		moderatedAt = sql.NullTime{Time: *track.Moderation.At, Valid: true}
	}

	now := time.Now()
	res, err := stmt.Exec(
		track.Title, track.Artist, nullStr(track.Album), nullStr(track.Genre), year,
		track.Duration, nullStr(track.Lyrics), nullStr(track.Language), nullStr(strings.Join(track.Tags, ",")),
		track.AudioFile.Filename, track.AudioFile.OriginalName, track.AudioFile.MimeType, track.AudioFile.Size, track.AudioFile.URL,
		coverFilename, coverOriginal, coverMime, coverSize, coverURL,
		track.UploadedBy, track.Status, moderatedBy, moderatedAt, nullStr(track.Moderation.Notes),
		true, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to execute Create: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for Create: %w", err)
	}
	return id, nil
}

// FindByID retrieves a track by its ID. Inactive (soft-deleted) tracks are
// only returned when includeInactive is set, which admin paths use.
func (r *mysqlTrackRepository) FindByID(id int64, includeInactive bool) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	if !includeInactive {
		query += ` AND active = 1`
	}
	row := r.DB.QueryRow(query, id)

	track, err := scanTrack(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// Query runs a filtered, paginated listing and returns the page plus the
// total match count.
func (r *mysqlTrackRepository) Query(q TrackQuery) ([]*model.Track, int64, error) {
	conds := []string{}
	args := []interface{}{}

	if !q.IncludeInactive {
		conds = append(conds, "active = 1")
	}
	if q.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, q.Status)
	}
	if q.Text != "" {
		conds = append(conds, "(title LIKE ? OR artist LIKE ? OR album LIKE ?)")
		like := "%" + q.Text + "%"
		args = append(args, like, like, like)
	}
	if q.Genre != "" {
		conds = append(conds, "genre = ?")
		args = append(args, q.Genre)
	}
	if q.Language != "" {
		conds = append(conds, "language = ?")
		args = append(args, q.Language)
	}
	if q.UploadedBy != 0 {
		conds = append(conds, "uploaded_by = ?")
		args = append(args, q.UploadedBy)
	}
	if q.FeaturedOnly {
		conds = append(conds, "featured = 1")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.DB.QueryRow("SELECT COUNT(*) FROM tracks"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tracks: %w", err)
	}

	sortCol, ok := sortColumns[q.SortBy]
	if !ok {
		sortCol = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		order = "ASC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf("SELECT %s FROM tracks%s ORDER BY %s %s LIMIT ? OFFSET ?", trackColumns, where, sortCol, order)
	rows, err := r.DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan track in Query: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error during rows iteration in Query: %w", err)
	}

	return tracks, total, nil
}

// IncrementPlayCount bumps the play counter in a single atomic UPDATE and
// returns the new count.
func (r *mysqlTrackRepository) IncrementPlayCount(id int64) (int64, error) {
	res, err := r.DB.Exec(`UPDATE tracks SET play_count = play_count + 1, last_played_at = ?, updated_at = ? WHERE id = ? AND active = 1`,
		time.Now(), time.Now(), id)
	if err != nil {
		return 0, fmt.Errorf("failed to execute IncrementPlayCount for track ID %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for IncrementPlayCount: %w", err)
	}
	if affected == 0 {
		return 0, ErrTrackNotFound
	}

	var count int64
	if err := r.DB.QueryRow(`SELECT play_count FROM tracks WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read play count for track ID %d: %w", id, err)
	}
	return count, nil
}

// AddRating folds a new rating into the running weighted mean:
// (avg*count + rating) / (count + 1), in one atomic UPDATE.
func (r *mysqlTrackRepository) AddRating(id int64, rating int) (float64, int64, error) {
	res, err := r.DB.Exec(`UPDATE tracks
		SET avg_rating = (avg_rating * rating_count + ?) / (rating_count + 1),
		    rating_count = rating_count + 1,
		    updated_at = ?
		WHERE id = ? AND active = 1`,
		rating, time.Now(), id)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to execute AddRating for track ID %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get rows affected for AddRating: %w", err)
	}
	if affected == 0 {
		return 0, 0, ErrTrackNotFound
	}

	var avg float64
	var count int64
	if err := r.DB.QueryRow(`SELECT avg_rating, rating_count FROM tracks WHERE id = ?`, id).Scan(&avg, &count); err != nil {
		return 0, 0, fmt.Errorf("failed to read rating aggregate for track ID %d: %w", id, err)
	}
	return avg, count, nil
}

// AddFavorite moves the favorite counter by delta (clamped at zero) and
// returns the new count.
func (r *mysqlTrackRepository) AddFavorite(id int64, delta int64) (int64, error) {
	res, err := r.DB.Exec(`UPDATE tracks SET favorite_count = GREATEST(CAST(favorite_count AS SIGNED) + ?, 0), updated_at = ? WHERE id = ? AND active = 1`,
		delta, time.Now(), id)
	if err != nil {
		return 0, fmt.Errorf("failed to execute AddFavorite for track ID %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for AddFavorite: %w", err)
	}
	if affected == 0 {
		return 0, ErrTrackNotFound
	}

	var count int64
	if err := r.DB.QueryRow(`SELECT favorite_count FROM tracks WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read favorite count for track ID %d: %w", id, err)
	}
	return count, nil
}

// IncrementDownloads bumps the download counter.
func (r *mysqlTrackRepository) IncrementDownloads(id int64) error {
	res, err := r.DB.Exec(`UPDATE tracks SET download_count = download_count + 1, updated_at = ? WHERE id = ? AND active = 1`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to execute IncrementDownloads for track ID %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for IncrementDownloads: %w", err)
	}
	if affected == 0 {
		return ErrTrackNotFound
	}
	return nil
}

// SetModeration overwrites the moderation state. Transitions are
// unconditional: re-approving an approved track replaces moderator and
// timestamp.
func (r *mysqlTrackRepository) SetModeration(id int64, status model.ModerationStatus, moderatorID int64, notes string) error {
	stmt, err := r.DB.Prepare(`UPDATE tracks SET status = ?, moderated_by = ?, moderated_at = ?, moderation_notes = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for SetModeration: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.Exec(status, moderatorID, now, nullStr(notes), now, id)
	if err != nil {
		return fmt.Errorf("failed to execute SetModeration for track ID %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for SetModeration: %w", err)
	}
	if affected == 0 {
		return ErrTrackNotFound
	}
	return nil
}

// SetFeatured flips the featured flag, stamping featured_at when set.
func (r *mysqlTrackRepository) SetFeatured(id int64, featured bool) error {
	var featuredAt sql.NullTime
	if featured {
		featuredAt = sql.NullTime{Time: time.Now(), Valid: true}
	}
	res, err := r.DB.Exec(`UPDATE tracks SET featured = ?, featured_at = ?, updated_at = ? WHERE id = ? AND active = 1`,
		featured, featuredAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to execute SetFeatured for track ID %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for SetFeatured: %w", err)
	}
	if affected == 0 {
		return ErrTrackNotFound
	}
	return nil
}

// SoftDelete marks the track inactive. The row stays retrievable by direct
// ID lookup with includeInactive set.
func (r *mysqlTrackRepository) SoftDelete(id int64) error {
	res, err := r.DB.Exec(`UPDATE tracks SET active = 0, updated_at = ? WHERE id = ? AND active = 1`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to execute SoftDelete for track ID %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for SoftDelete: %w", err)
	}
	if affected == 0 {
		return ErrTrackNotFound
	}
	return nil
}

// DeactivateByUploader marks every track of the given uploader inactive.
// Used when an account is deactivated; tracks are never hard-deleted.
func (r *mysqlTrackRepository) DeactivateByUploader(uploaderID int64) (int64, error) {
	res, err := r.DB.Exec(`UPDATE tracks SET active = 0, updated_at = ? WHERE uploaded_by = ? AND active = 1`, time.Now(), uploaderID)
	if err != nil {
		return 0, fmt.Errorf("failed to execute DeactivateByUploader for user %d: %w", uploaderID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for DeactivateByUploader: %w", err)
	}
	return affected, nil
}

// CountByUploader returns how many active tracks the uploader has.
func (r *mysqlTrackRepository) CountByUploader(uploaderID int64) (int64, error) {
	var count int64
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM tracks WHERE uploaded_by = ? AND active = 1`, uploaderID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tracks for uploader %d: %w", uploaderID, err)
	}
	return count, nil
}
