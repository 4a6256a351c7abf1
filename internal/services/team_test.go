package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdeck-dev/crewdeck/internal/apperrors"
	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

func TestCreateTeamGrantsOwnerLabel(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	team, err := env.Teams.Create(alice, "platform", nil)
	require.NoError(t, err)

	assert.Equal(t, alice.ID, team.OwnerID)
	assert.True(t, env.hasRole(t, alice.ID, types.RoleTeamOwner))

	// The owner is always a member of their own team.
	var membership models.TeamMembership
	err = env.DB.Where("team_id = ? AND user_id = ?", team.ID, alice.ID).First(&membership).Error
	require.NoError(t, err)
}

func TestTransferOwnership(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	team, err := env.Teams.Create(alice, "platform", []uint{bob.ID})
	require.NoError(t, err)

	got, err := env.Teams.TransferOwnership(alice, team.ID, bob.ID)
	require.NoError(t, err)

	assert.Equal(t, bob.ID, got.OwnerID)
	assert.True(t, env.hasRole(t, bob.ID, types.RoleTeamOwner))
	assert.False(t, env.hasRole(t, alice.ID, types.RoleTeamOwner),
		"previous owner owns no other team, label must be revoked")
}

func TestTransferOwnershipKeepsLabelWhenOwningAnotherTeam(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	team, err := env.Teams.Create(alice, "platform", []uint{bob.ID})
	require.NoError(t, err)
	_, err = env.Teams.Create(alice, "infra", nil)
	require.NoError(t, err)

	_, err = env.Teams.TransferOwnership(alice, team.ID, bob.ID)
	require.NoError(t, err)

	assert.True(t, env.hasRole(t, alice.ID, types.RoleTeamOwner),
		"previous owner still owns another team, label must survive")
	assert.True(t, env.hasRole(t, bob.ID, types.RoleTeamOwner))
}

func TestTransferOwnershipToNonMember(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	carol := env.createUser(t, "carol")

	team, err := env.Teams.Create(alice, "platform", nil)
	require.NoError(t, err)

	_, err = env.Teams.TransferOwnership(alice, team.ID, carol.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotEligible))

	// Nothing moved.
	var reloaded models.Team
	require.NoError(t, env.DB.First(&reloaded, team.ID).Error)
	assert.Equal(t, alice.ID, reloaded.OwnerID)
	assert.True(t, env.hasRole(t, alice.ID, types.RoleTeamOwner))
}

func TestTransferOwnershipToCurrentOwner(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	team, err := env.Teams.Create(alice, "platform", nil)
	require.NoError(t, err)

	_, err = env.Teams.TransferOwnership(alice, team.ID, alice.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNoOpTransfer))
}

func TestTransferOwnershipByOutsiderForbidden(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	mallory := env.createUser(t, "mallory")

	team, err := env.Teams.Create(alice, "platform", []uint{bob.ID})
	require.NoError(t, err)

	_, err = env.Teams.TransferOwnership(mallory, team.ID, bob.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
}

func TestTransferOwnershipByAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createAdmin(t, "root")
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	team, err := env.Teams.Create(alice, "platform", []uint{bob.ID})
	require.NoError(t, err)

	got, err := env.Teams.TransferOwnership(admin, team.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.OwnerID)
}

func TestTransferOwnershipInvalidatesPreviousOwnerListing(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createAdmin(t, "root")
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	team, err := env.Teams.Create(alice, "platform", []uint{bob.ID})
	require.NoError(t, err)
	_, err = env.Teams.Create(alice, "infra", nil)
	require.NoError(t, err)

	// Prime alice's cached listing before an admin moves the team away.
	before, err := env.Teams.List(alice)
	require.NoError(t, err)
	require.Len(t, before, 2)

	_, err = env.Teams.TransferOwnership(admin, team.ID, bob.ID)
	require.NoError(t, err)

	after, err := env.Teams.List(alice)
	require.NoError(t, err)
	require.Len(t, after, 1,
		"previous owner's cached listing must not still contain the transferred team")
	assert.Equal(t, "infra", after[0].Name)
}

func TestRemoveMembersRejectsOwner(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	team, err := env.Teams.Create(alice, "platform", []uint{bob.ID})
	require.NoError(t, err)

	_, err = env.Teams.RemoveMembers(alice, team.ID, []uint{bob.ID, alice.ID})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindInvariantViolation))

	// The batch aborted as a whole: bob is still a member.
	var count int64
	require.NoError(t, env.DB.Model(&models.TeamMembership{}).
		Where("team_id = ? AND user_id = ?", team.ID, bob.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRemoveMembers(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	team, err := env.Teams.Create(alice, "platform", []uint{bob.ID})
	require.NoError(t, err)

	_, err = env.Teams.RemoveMembers(alice, team.ID, []uint{bob.ID})
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.DB.Model(&models.TeamMembership{}).
		Where("team_id = ? AND user_id = ?", team.ID, bob.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestAddMembersUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	team, err := env.Teams.Create(alice, "platform", nil)
	require.NoError(t, err)

	_, err = env.Teams.AddMembers(alice, team.ID, []uint{9999})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestAddMembersIdempotent(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	team, err := env.Teams.Create(alice, "platform", []uint{bob.ID})
	require.NoError(t, err)

	_, err = env.Teams.AddMembers(alice, team.ID, []uint{bob.ID})
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.DB.Model(&models.TeamMembership{}).
		Where("team_id = ? AND user_id = ?", team.ID, bob.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDeleteTeamReconcilesOwnerLabel(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createAdmin(t, "root")
	alice := env.createUser(t, "alice")

	team, err := env.Teams.Create(alice, "platform", nil)
	require.NoError(t, err)

	require.NoError(t, env.Teams.Delete(admin, team.ID))
	assert.False(t, env.hasRole(t, alice.ID, types.RoleTeamOwner))
}
