package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wavecast/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserHandler(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.addUser(t, "alice@example.com", model.RoleContributor)
	_, bobToken := env.addUser(t, "bob@example.com", model.RoleStandard)
	_, adminToken := env.addUser(t, "admin@example.com", model.RoleAdmin)

	t.Run("strangers see the public profile only", func(t *testing.T) {
		rec := env.do(http.MethodGet, userPath(alice.ID, ""), bobToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "alice@example.com")
		assert.Contains(t, rec.Body.String(), `"role":"contributor"`)
	})

	t.Run("anonymous callers see the public profile only", func(t *testing.T) {
		rec := env.do(http.MethodGet, userPath(alice.ID, ""), "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "alice@example.com")
	})

	t.Run("the account owner sees the full record", func(t *testing.T) {
		rec := env.do(http.MethodGet, userPath(alice.ID, ""), aliceToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "alice@example.com")
	})

	t.Run("admins see the full record", func(t *testing.T) {
		rec := env.do(http.MethodGet, userPath(alice.ID, ""), adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "alice@example.com")
	})

	t.Run("deactivated accounts read as not found", func(t *testing.T) {
		ghost, _ := env.addUser(t, "ghost@example.com", model.RoleStandard)
		require.NoError(t, env.users.SetActive(ghost.ID, false))

		rec := env.do(http.MethodGet, userPath(ghost.ID, ""), bobToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUpdateUserHandler(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.addUser(t, "alice@example.com", model.RoleStandard)

	t.Run("bio and birth year update", func(t *testing.T) {
		body := strings.NewReader(`{"bio":"hello there","birthYear":1990}`)
		rec := env.do(http.MethodPut, userPath(alice.ID, ""), aliceToken, body)
		require.Equal(t, http.StatusOK, rec.Code)

		stored, err := env.users.FindByID(alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "hello there", stored.Profile.Bio)
		require.NotNil(t, stored.Profile.BirthYear)
		assert.Equal(t, 1990, *stored.Profile.BirthYear)
	})

	t.Run("oversized bio rejected", func(t *testing.T) {
		body := strings.NewReader(`{"bio":"` + strings.Repeat("a", 1001) + `"}`)
		rec := env.do(http.MethodPut, userPath(alice.ID, ""), aliceToken, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("birth year out of range rejected", func(t *testing.T) {
		body := strings.NewReader(`{"birthYear":1850}`)
		rec := env.do(http.MethodPut, userPath(alice.ID, ""), aliceToken, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("omitted fields stay untouched", func(t *testing.T) {
		body := strings.NewReader(`{}`)
		rec := env.do(http.MethodPut, userPath(alice.ID, ""), aliceToken, body)
		require.Equal(t, http.StatusOK, rec.Code)

		stored, err := env.users.FindByID(alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "hello there", stored.Profile.Bio)
	})
}

func TestAvatarHandler(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.addUser(t, "alice@example.com", model.RoleStandard)

	buf, contentType := multipartBody(t, nil,
		filePart{field: "avatar", filename: "me.png", contentType: "image/png", content: []byte("png bytes")})
	req := httptest.NewRequest(http.MethodPost, userPath(alice.ID, "avatar"), buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := env.users.FindByID(alice.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.Profile.Avatar, "/uploads/images/"))
	assert.Equal(t, 1, countFiles(t, env.cfg.ImageUploadDir))
}

func TestUpdateRoleHandler(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.addUser(t, "alice@example.com", model.RoleStandard)
	_, adminToken := env.addUser(t, "admin@example.com", model.RoleAdmin)

	t.Run("admin promotes to contributor", func(t *testing.T) {
		body := strings.NewReader(`{"role":"contributor"}`)
		rec := env.do(http.MethodPut, userPath(alice.ID, "role"), adminToken, body)
		require.Equal(t, http.StatusOK, rec.Code)

		stored, err := env.users.FindByID(alice.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RoleContributor, stored.Role)
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		body := strings.NewReader(`{"role":"superuser"}`)
		rec := env.do(http.MethodPut, userPath(alice.ID, "role"), adminToken, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-admin forbidden", func(t *testing.T) {
		body := strings.NewReader(`{"role":"admin"}`)
		rec := env.do(http.MethodPut, userPath(alice.ID, "role"), aliceToken, body)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestUpdateStatusHandler(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.addUser(t, "alice@example.com", model.RoleContributor)
	_, adminToken := env.addUser(t, "admin@example.com", model.RoleAdmin)
	track := env.addTrack(t, alice.ID, model.StatusApproved)

	t.Run("deactivation cascades to the account's tracks", func(t *testing.T) {
		body := strings.NewReader(`{"active":false}`)
		rec := env.do(http.MethodPut, userPath(alice.ID, "status"), adminToken, body)
		require.Equal(t, http.StatusOK, rec.Code)

		gone, err := env.tracks.FindByID(track.ID, false)
		require.NoError(t, err)
		assert.Nil(t, gone)

		// The deactivated account's token stops working.
		me := env.do(http.MethodGet, "/auth/me", aliceToken, nil)
		assert.Equal(t, http.StatusUnauthorized, me.Code)
	})

	t.Run("reactivation restores access but not tracks", func(t *testing.T) {
		body := strings.NewReader(`{"active":true}`)
		rec := env.do(http.MethodPut, userPath(alice.ID, "status"), adminToken, body)
		require.Equal(t, http.StatusOK, rec.Code)

		me := env.do(http.MethodGet, "/auth/me", aliceToken, nil)
		assert.Equal(t, http.StatusOK, me.Code)

		stillGone, err := env.tracks.FindByID(track.ID, false)
		require.NoError(t, err)
		assert.Nil(t, stillGone)
	})
}

func TestUserStatsHandler(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceToken := env.addUser(t, "alice@example.com", model.RoleContributor)
	_, bobToken := env.addUser(t, "bob@example.com", model.RoleStandard)

	env.addTrack(t, alice.ID, model.StatusApproved)
	env.addTrack(t, alice.ID, model.StatusPending)
	require.NoError(t, env.users.IncrementUploads(alice.ID))
	require.NoError(t, env.users.IncrementUploads(alice.ID))

	t.Run("owner reads their stats", func(t *testing.T) {
		rec := env.do(http.MethodGet, userPath(alice.ID, "stats"), aliceToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var stats struct {
			Uploads    int64 `json:"uploads"`
			TrackCount int64 `json:"trackCount"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, int64(2), stats.Uploads)
		assert.Equal(t, int64(2), stats.TrackCount)
	})

	t.Run("other users may not read stats", func(t *testing.T) {
		rec := env.do(http.MethodGet, userPath(alice.ID, "stats"), bobToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
