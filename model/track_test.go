package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialStatus(t *testing.T) {
	t.Run("contributor uploads start pending", func(t *testing.T) {
		status, mod := InitialStatus(&User{ID: 10, Role: RoleContributor})
		assert.Equal(t, StatusPending, status)
		assert.Zero(t, mod.By)
		assert.Nil(t, mod.At)
	})

	t.Run("admin uploads start approved with self as moderator", func(t *testing.T) {
		status, mod := InitialStatus(&User{ID: 3, Role: RoleAdmin})
		assert.Equal(t, StatusApproved, status)
		assert.Equal(t, int64(3), mod.By)
		require.NotNil(t, mod.At)
	})
}

func TestModerationTransitions(t *testing.T) {
	track := &Track{Status: StatusPending, Active: true}

	track.Approve(1, "looks good")
	assert.Equal(t, StatusApproved, track.Status)
	assert.Equal(t, int64(1), track.Moderation.By)
	assert.Equal(t, "looks good", track.Moderation.Notes)
	require.NotNil(t, track.Moderation.At)
	firstAt := *track.Moderation.At

	// Re-moderating overwrites the previous record.
	track.Reject(2, "copyright claim")
	assert.Equal(t, StatusRejected, track.Status)
	assert.Equal(t, int64(2), track.Moderation.By)
	assert.Equal(t, "copyright claim", track.Moderation.Notes)
	assert.False(t, track.Moderation.At.Before(firstAt))

	// Hide is reachable from any state.
	track.Hide(2, "")
	assert.Equal(t, StatusHidden, track.Status)
}

func TestTrackVisible(t *testing.T) {
	cases := []struct {
		name    string
		track   Track
		visible bool
	}{
		{"approved and active", Track{Status: StatusApproved, Active: true}, true},
		{"approved but inactive", Track{Status: StatusApproved, Active: false}, false},
		{"pending", Track{Status: StatusPending, Active: true}, false},
		{"rejected", Track{Status: StatusRejected, Active: true}, false},
		{"hidden", Track{Status: StatusHidden, Active: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.visible, tc.track.Visible())
		})
	}
}

func TestModerationStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusHidden.Valid())
	assert.False(t, ModerationStatus("deleted").Valid())
	assert.False(t, ModerationStatus("").Valid())
}
