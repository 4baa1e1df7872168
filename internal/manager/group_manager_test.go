package manager

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "collab-drive/pkg/errors"

	"collab-drive/internal/auth"
	"collab-drive/internal/models"
)

func newTestGroupManager(t *testing.T) (*GroupManagerImpl, *MockRemoteClient) {
	t.Helper()
	db := newTestDatabase(t)
	rc := &MockRemoteClient{}
	return NewGroupManager(db, rc, &auth.StaticIdentity{UserID: "user-1"}), rc
}

func TestNewInviteCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := NewInviteCode()
		require.Len(t, code, 8)
		for _, c := range code {
			isUpper := c >= 'A' && c <= 'Z'
			isDigit := c >= '0' && c <= '9'
			assert.True(t, isUpper || isDigit, "Invite code %q carries invalid character %q", code, c)
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 90, "Invite codes should rarely collide")
}

func TestInviteCodeFrom_RejectsBiasedBytes(t *testing.T) {
	// 256 is not a multiple of 36, so bytes in the top partial range
	// (252-255) must be discarded instead of wrapping onto A-D.
	source := bytes.NewReader([]byte{252, 253, 254, 255, 0, 1, 2, 3, 4, 5, 6, 7})

	code, err := inviteCodeFrom(source)
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGH", code, "Rejected bytes must not map onto code characters")
}

func TestInviteCodeFrom_CoversFullAlphabet(t *testing.T) {
	// Bytes 0-35 map one-to-one onto the alphabet.
	low := make([]byte, 36)
	for i := range low {
		low[i] = byte(i)
	}

	first, err := inviteCodeFrom(bytes.NewReader(low[:8]))
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGH", first)

	last, err := inviteCodeFrom(bytes.NewReader(low[28:36]))
	require.NoError(t, err)
	assert.Equal(t, "23456789", last)
}

func TestInviteCodeFrom_SourceExhausted(t *testing.T) {
	_, err := inviteCodeFrom(bytes.NewReader([]byte{0, 1, 2}))
	assert.Error(t, err, "A short entropy source must surface an error, not a short code")
}

func TestGroupManager_CreateGroup(t *testing.T) {
	gm, rc := newTestGroupManager(t)

	var created *models.Group
	rc.On("CreateGroup", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*models.Group)
	}).Return(nil)

	group, err := gm.CreateGroup(context.Background(), "Design Team", "shared assets")
	require.NoError(t, err)
	assert.NotEmpty(t, group.ID)
	assert.Len(t, group.InviteCode, 8)
	assert.Equal(t, "user-1", group.CreatorID)
	assert.Equal(t, []string{"user-1"}, group.MemberIDs, "Creator joins automatically")
	assert.Same(t, group, created, "The remote store receives the full group document")

	// The local mirror is written too.
	mirrored, err := gm.db.GetGroup(group.ID)
	require.NoError(t, err)
	assert.Equal(t, group.InviteCode, mirrored.InviteCode)
}

func TestGroupManager_CreateGroup_RemoteFailure(t *testing.T) {
	gm, rc := newTestGroupManager(t)

	rc.On("CreateGroup", mock.Anything, mock.Anything).
		Return(apperrors.New(apperrors.ErrRemoteFault, "unavailable"))

	_, err := gm.CreateGroup(context.Background(), "Design Team", "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrRemoteFault, apperrors.Code(err))
}

func TestGroupManager_CreateGroup_NotAuthenticated(t *testing.T) {
	db := newTestDatabase(t)
	rc := &MockRemoteClient{}
	gm := NewGroupManager(db, rc, auth.Anonymous())

	_, err := gm.CreateGroup(context.Background(), "Design Team", "")
	assert.True(t, apperrors.IsNotAuthenticated(err))
	rc.AssertNotCalled(t, "CreateGroup", mock.Anything, mock.Anything)
}

func TestGroupManager_JoinGroup(t *testing.T) {
	gm, rc := newTestGroupManager(t)

	rc.On("FindGroupByInviteCode", mock.Anything, "AB12CD34").Return(&models.Group{
		ID: "group-1", Name: "Design Team", InviteCode: "AB12CD34", MemberIDs: []string{"user-2"},
	}, nil)
	rc.On("UpdateGroupMembers", mock.Anything, "group-1", []string{"user-2", "user-1"}).Return(nil)

	group, err := gm.JoinGroup(context.Background(), "AB12CD34")
	require.NoError(t, err)
	assert.True(t, group.HasMember("user-1"))
	rc.AssertExpectations(t)
}

func TestGroupManager_JoinGroup_InvalidCode(t *testing.T) {
	gm, rc := newTestGroupManager(t)

	rc.On("FindGroupByInviteCode", mock.Anything, "NOPE0000").
		Return(nil, apperrors.New(apperrors.ErrNotFound, "Invalid invite code"))

	_, err := gm.JoinGroup(context.Background(), "NOPE0000")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, "Invalid invite code", appErr.Message)
}

func TestGroupManager_JoinGroup_AlreadyMember(t *testing.T) {
	gm, rc := newTestGroupManager(t)

	rc.On("FindGroupByInviteCode", mock.Anything, "AB12CD34").Return(&models.Group{
		ID: "group-1", InviteCode: "AB12CD34", MemberIDs: []string{"user-1"},
	}, nil)

	_, err := gm.JoinGroup(context.Background(), "AB12CD34")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidInput, apperrors.Code(err))

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, "You are already a member of this group", appErr.Message)

	// Membership is never rewritten for an existing member.
	rc.AssertNotCalled(t, "UpdateGroupMembers", mock.Anything, mock.Anything, mock.Anything)
}

func TestGroupManager_ListGroups_FallsBackToMirror(t *testing.T) {
	gm, rc := newTestGroupManager(t)

	require.NoError(t, gm.db.SaveGroup(&models.Group{
		ID: "group-1", Name: "Design Team", MemberIDs: []string{"user-1"},
	}))
	rc.On("ListGroupsForMember", mock.Anything, "user-1").
		Return(nil, apperrors.New(apperrors.ErrRemoteFault, "unavailable"))

	groups, err := gm.ListGroups(context.Background())
	require.NoError(t, err, "Cloud failure falls back to the local mirror")
	require.Len(t, groups, 1)
	assert.Equal(t, "group-1", groups[0].ID)
}

func TestGroupManager_ListGroups_MirrorsCloudResults(t *testing.T) {
	gm, rc := newTestGroupManager(t)

	rc.On("ListGroupsForMember", mock.Anything, "user-1").Return([]*models.Group{
		{ID: "group-1", Name: "Design Team", MemberIDs: []string{"user-1"}},
	}, nil)

	groups, err := gm.ListGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)

	mirrored, err := gm.db.GetGroup("group-1")
	require.NoError(t, err)
	assert.Equal(t, "Design Team", mirrored.Name)
}

func TestGroupManager_GetGroup_NotFoundPassesThrough(t *testing.T) {
	gm, rc := newTestGroupManager(t)

	rc.On("GetGroup", mock.Anything, "nope").
		Return(nil, apperrors.New(apperrors.ErrNotFound, "Group not found"))

	_, err := gm.GetGroup(context.Background(), "nope")
	assert.True(t, apperrors.IsNotFound(err))
}
