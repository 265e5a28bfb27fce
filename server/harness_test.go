package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"wavecast/config"
	"wavecast/core/auth"
	"wavecast/model"
	"wavecast/repository"

	"github.com/stretchr/testify/require"
)

// fakeUserRepo is an in-memory UserRepository for handler tests.
type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*model.User)}
}

func (r *fakeUserRepo) Create(user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range r.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	r.nextID++
	user.ID = r.nextID
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) FindByID(id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) FindByEmail(email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) Update(user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	cp.UpdatedAt = time.Now()
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) UpdatePreferences(id int64, prefs model.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Preferences = prefs
	}
	return nil
}

func (r *fakeUserRepo) UpdateRole(id int64, role model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Role = role
	}
	return nil
}

func (r *fakeUserRepo) SetActive(id int64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Active = active
	}
	return nil
}

func (r *fakeUserRepo) RecordLogin(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		now := time.Now()
		u.Stats.LastLoginAt = &now
	}
	return nil
}

func (r *fakeUserRepo) IncrementUploads(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Stats.Uploads++
	}
	return nil
}

func (r *fakeUserRepo) IncrementPlays(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Stats.Plays++
	}
	return nil
}

func (r *fakeUserRepo) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

// fakeTrackRepo is an in-memory TrackRepository. Counter operations mirror
// the SQL semantics, including the running-mean rating update and the
// favorite clamp at zero.
type fakeTrackRepo struct {
	mu     sync.Mutex
	nextID int64
	tracks map[int64]*model.Track
}

func newFakeTrackRepo() *fakeTrackRepo {
	return &fakeTrackRepo{tracks: make(map[int64]*model.Track)}
}

func (r *fakeTrackRepo) Create(track *model.Track) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cp := *track
	cp.ID = r.nextID
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.tracks[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakeTrackRepo) FindByID(id int64, includeInactive bool) (*model.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok || (!includeInactive && !t.Active) {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTrackRepo) Query(q repository.TrackQuery) ([]*model.Track, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matches := make([]*model.Track, 0)
	for id := int64(1); id <= r.nextID; id++ {
		t, ok := r.tracks[id]
		if !ok {
			continue
		}
		if !q.IncludeInactive && !t.Active {
			continue
		}
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		if q.UploadedBy != 0 && t.UploadedBy != q.UploadedBy {
			continue
		}
		if q.FeaturedOnly && !t.Featured {
			continue
		}
		if q.Genre != "" && t.Genre != q.Genre {
			continue
		}
		if q.Language != "" && t.Language != q.Language {
			continue
		}
		if q.Text != "" {
			needle := strings.ToLower(q.Text)
			if !strings.Contains(strings.ToLower(t.Title), needle) &&
				!strings.Contains(strings.ToLower(t.Artist), needle) &&
				!strings.Contains(strings.ToLower(t.Album), needle) {
				continue
			}
		}
		cp := *t
		matches = append(matches, &cp)
	}
	return matches, int64(len(matches)), nil
}

func (r *fakeTrackRepo) IncrementPlayCount(id int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok || !t.Active {
		return 0, repository.ErrTrackNotFound
	}
	t.Stats.Plays++
	now := time.Now()
	t.Stats.LastPlayedAt = &now
	return t.Stats.Plays, nil
}

func (r *fakeTrackRepo) AddRating(id int64, rating int) (float64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok || !t.Active {
		return 0, 0, repository.ErrTrackNotFound
	}
	t.Stats.AvgRating = (t.Stats.AvgRating*float64(t.Stats.RatingCount) + float64(rating)) / float64(t.Stats.RatingCount+1)
	t.Stats.RatingCount++
	return t.Stats.AvgRating, t.Stats.RatingCount, nil
}

func (r *fakeTrackRepo) AddFavorite(id int64, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok || !t.Active {
		return 0, repository.ErrTrackNotFound
	}
	t.Stats.Favorites += delta
	if t.Stats.Favorites < 0 {
		t.Stats.Favorites = 0
	}
	return t.Stats.Favorites, nil
}

func (r *fakeTrackRepo) IncrementDownloads(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok || !t.Active {
		return repository.ErrTrackNotFound
	}
	t.Stats.Downloads++
	return nil
}

func (r *fakeTrackRepo) SetModeration(id int64, status model.ModerationStatus, moderatorID int64, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok {
		return repository.ErrTrackNotFound
	}
	now := time.Now()
	t.Status = status
	t.Moderation = model.Moderation{By: moderatorID, At: &now, Notes: notes}
	t.UpdatedAt = now
	return nil
}

func (r *fakeTrackRepo) SetFeatured(id int64, featured bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok || !t.Active {
		return repository.ErrTrackNotFound
	}
	t.Featured = featured
	if featured {
		now := time.Now()
		t.FeaturedAt = &now
	} else {
		t.FeaturedAt = nil
	}
	return nil
}

func (r *fakeTrackRepo) SoftDelete(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tracks[id]
	if !ok || !t.Active {
		return repository.ErrTrackNotFound
	}
	t.Active = false
	return nil
}

func (r *fakeTrackRepo) DeactivateByUploader(uploaderID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var affected int64
	for _, t := range r.tracks {
		if t.UploadedBy == uploaderID && t.Active {
			t.Active = false
			affected++
		}
	}
	return affected, nil
}

func (r *fakeTrackRepo) CountByUploader(uploaderID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, t := range r.tracks {
		if t.UploadedBy == uploaderID && t.Active {
			count++
		}
	}
	return count, nil
}

// testEnv wires the full router against the in-memory fakes, with upload
// directories under t.TempDir.
type testEnv struct {
	cfg    *config.Config
	users  *fakeUserRepo
	tracks *fakeTrackRepo
	tokens *auth.TokenService
	h      *APIHandler
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	base := t.TempDir()
	cfg := &config.Config{
		ServerPort:     "0",
		Env:            "development",
		JWTSecret:      "test-secret",
		JWTLifetime:    time.Hour,
		UploadDir:      base,
		AudioUploadDir: filepath.Join(base, "audio"),
		ImageUploadDir: filepath.Join(base, "images"),
		TempUploadDir:  filepath.Join(base, "tmp"),
	}

	uploader := NewUploader(cfg)
	require.NoError(t, uploader.EnsureDirs())

	users := newFakeUserRepo()
	tracks := newFakeTrackRepo()
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTLifetime)

	h := NewAPIHandler(cfg, users, tracks, tokens, uploader, nil, nil)
	return &testEnv{
		cfg:    cfg,
		users:  users,
		tracks: tracks,
		tokens: tokens,
		h:      h,
		router: NewRouter(h, cfg, nil),
	}
}

// addUser seeds an account and returns it with a valid token.
func (e *testEnv) addUser(t *testing.T, email string, role model.Role) (*model.User, string) {
	t.Helper()

	user := &model.User{
		Email:        email,
		PasswordHash: "unused",
		Role:         role,
		Active:       true,
	}
	require.NoError(t, e.users.Create(user))

	token, err := e.tokens.GenerateToken(user.ID)
	require.NoError(t, err)
	return user, token
}

// addTrack seeds a track directly into the fake repository.
func (e *testEnv) addTrack(t *testing.T, uploadedBy int64, status model.ModerationStatus) *model.Track {
	t.Helper()

	track := &model.Track{
		Title:      "Seeded Track",
		Artist:     "Seeded Artist",
		AudioFile:  model.FileRef{Filename: "seed.mp3", URL: "/uploads/audio/seed.mp3", MimeType: "audio/mpeg"},
		UploadedBy: uploadedBy,
		Status:     status,
		Active:     true,
	}
	id, err := e.tracks.Create(track)
	require.NoError(t, err)
	track.ID = id
	return track
}

func trackPath(id int64, action string) string {
	p := "/songs/" + strconv.FormatInt(id, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}

func userPath(id int64, action string) string {
	p := "/users/" + strconv.FormatInt(id, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}

// do runs a request through the full router.
func (e *testEnv) do(method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}
