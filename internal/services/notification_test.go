package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewdeck-dev/crewdeck/internal/apperrors"
	"github.com/crewdeck-dev/crewdeck/internal/authz"
	"github.com/crewdeck-dev/crewdeck/internal/models"
)

func newNotificationService(env *testEnv) *NotificationService {
	return NewNotificationService(env.DB, env.Roles, authz.NewEvaluator(env.Roles))
}

func TestMarkReadIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	svc := newNotificationService(env)
	alice := env.createUser(t, "alice")

	notification := models.Notification{UserID: alice.ID, Type: "comment_created"}
	require.NoError(t, env.DB.Create(&notification).Error)

	first, err := svc.MarkRead(alice, notification.ID)
	require.NoError(t, err)
	require.NotNil(t, first.ReadAt)
	stamp := *first.ReadAt

	time.Sleep(20 * time.Millisecond)
	second, err := svc.MarkRead(alice, notification.ID)
	require.NoError(t, err)
	require.NotNil(t, second.ReadAt)
	assert.WithinDuration(t, stamp, *second.ReadAt, 10*time.Millisecond,
		"re-marking must not move the timestamp")
}

func TestMarkReadForeignNotificationForbidden(t *testing.T) {
	env := newTestEnv(t)
	svc := newNotificationService(env)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	notification := models.Notification{UserID: alice.ID, Type: "comment_created"}
	require.NoError(t, env.DB.Create(&notification).Error)

	_, err := svc.MarkRead(bob, notification.ID)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
}

func TestListNotificationsScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	svc := newNotificationService(env)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	admin := env.createAdmin(t, "root")

	for _, n := range []models.Notification{
		{UserID: alice.ID, Type: "comment_created"},
		{UserID: bob.ID, Type: "task_assigned"},
	} {
		require.NoError(t, env.DB.Create(&n).Error)
	}

	mine, err := svc.List(alice)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, alice.ID, mine[0].UserID)

	all, err := svc.List(admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
