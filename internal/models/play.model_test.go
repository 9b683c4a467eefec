package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParticipantIdentity_ExactlyOne(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name        string
		participant PlayParticipant
		wantKind    IdentityKind
		wantErr     bool
	}{
		{
			name:        "linked user",
			participant: PlayParticipant{UserID: &userID},
			wantKind:    IdentityKindUser,
		},
		{
			name:        "bgg username",
			participant: PlayParticipant{BGGUsername: strPtr("tester")},
			wantKind:    IdentityKindBGG,
		},
		{
			name:        "guest",
			participant: PlayParticipant{GuestName: strPtr("Sam")},
			wantKind:    IdentityKindGuest,
		},
		{
			name:        "nothing set",
			participant: PlayParticipant{},
			wantErr:     true,
		},
		{
			name: "two identities",
			participant: PlayParticipant{
				BGGUsername: strPtr("tester"),
				GuestName:   strPtr("Sam"),
			},
			wantErr: true,
		},
		{
			name:        "empty strings do not count",
			participant: PlayParticipant{BGGUsername: strPtr(""), GuestName: strPtr("Sam")},
			wantKind:    IdentityKindGuest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := tt.participant.Identity()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAmbiguousIdentity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, identity.Kind)
		})
	}
}

func TestParticipantIdentityKey(t *testing.T) {
	identity := ParticipantIdentity{Kind: IdentityKindGuest, Value: "Sam"}
	assert.Equal(t, "guest:Sam", identity.Key())
}

func TestPlayIdentitySet_CountsDuplicates(t *testing.T) {
	play := Play{
		Participants: []PlayParticipant{
			{GuestName: strPtr("Sam")},
			{GuestName: strPtr("Sam")},
			{BGGUsername: strPtr("tester")},
		},
	}

	set := play.IdentitySet()
	assert.Equal(t, 2, set["guest:Sam"])
	assert.Equal(t, 1, set["bgg:tester"])
}

func TestIdentitySetEquals(t *testing.T) {
	a := map[string]int{"guest:Sam": 2, "bgg:tester": 1}
	b := map[string]int{"bgg:tester": 1, "guest:Sam": 2}
	assert.True(t, IdentitySetEquals(a, b))

	// Multiplicity matters
	c := map[string]int{"guest:Sam": 1, "bgg:tester": 1}
	assert.False(t, IdentitySetEquals(a, c))

	d := map[string]int{"guest:Sam": 2}
	assert.False(t, IdentitySetEquals(a, d))
}

func TestNormalizePlayDate(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)
	in := time.Date(2026, 3, 14, 23, 45, 12, 999, loc)

	normalized := NormalizePlayDate(in)
	assert.Equal(t, "2026-03-14", normalized.Format("2006-01-02"))
	assert.Equal(t, 0, normalized.Hour())
	assert.Equal(t, time.UTC, normalized.Location())
}

func TestPlayStateTransitions(t *testing.T) {
	play := Play{}
	leading := uuid.New()

	play.MarkAsExcluded(leading)
	assert.True(t, play.IsExcluded)
	require.NotNil(t, play.LeadingPlayID)
	assert.Equal(t, leading, *play.LeadingPlayID)

	play.MarkAsLeading()
	assert.False(t, play.IsExcluded)
	assert.Nil(t, play.LeadingPlayID)

	play.MarkAsSyncFailed("network down")
	assert.Equal(t, SyncStatusFailed, play.SyncStatus)
	require.NotNil(t, play.SyncError)

	play.MarkAsSynced()
	assert.Equal(t, SyncStatusSynced, play.SyncStatus)
	assert.Nil(t, play.SyncError)

	play.MarkAsSubmitted(9912345)
	assert.Equal(t, SyncStatusSynced, play.SubmitStatus)
	require.NotNil(t, play.BGGPlayID)
	assert.Equal(t, int64(9912345), *play.BGGPlayID)
}

func TestPlayBeforeUpdate_SkipsZeroValueModel(t *testing.T) {
	// gorm runs update hooks against a zero-value model on map-based
	// batch updates; those must not be rejected.
	assert.NoError(t, (&Play{}).BeforeUpdate(nil))

	invalid := Play{BaseUUIDModel: BaseUUIDModel{ID: uuid.New()}}
	assert.Error(t, invalid.BeforeUpdate(nil))
}
