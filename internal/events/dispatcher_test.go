package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crewdeck-dev/crewdeck/db"
	"github.com/crewdeck-dev/crewdeck/internal/mailer"
	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

type sentMail struct {
	Address string
	Kind    mailer.TemplateKind
	Payload map[string]interface{}
}

// fakeMailer records scheduled messages and can fail the first N
// attempts. onSchedule, when set, runs before each attempt is recorded.
type fakeMailer struct {
	sent       []sentMail
	failNext   int
	onSchedule func()
}

func (f *fakeMailer) Schedule(address string, kind mailer.TemplateKind, payload map[string]interface{}) error {
	if f.onSchedule != nil {
		f.onSchedule()
	}
	if f.failNext > 0 {
		f.failNext--
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, sentMail{Address: address, Kind: kind, Payload: payload})
	return nil
}

type fixture struct {
	DB       *gorm.DB
	Mailer   *fakeMailer
	Dispatch *Dispatcher

	Owner   models.User
	Manager models.User
	Worker  models.User
	Team    models.Team
	Project models.Project
	Task    models.Task
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(conn))

	fx := &fixture{DB: conn, Mailer: &fakeMailer{}}
	fx.Dispatch = NewDispatcher(conn, fx.Mailer)

	fx.Owner = models.User{Name: "owner", Email: "owner@crewdeck.test", PasswordHash: "x"}
	fx.Manager = models.User{Name: "manager", Email: "manager@crewdeck.test", PasswordHash: "x"}
	fx.Worker = models.User{Name: "worker", Email: "worker@crewdeck.test", PasswordHash: "x"}
	for _, u := range []*models.User{&fx.Owner, &fx.Manager, &fx.Worker} {
		require.NoError(t, conn.Create(u).Error)
	}

	fx.Team = models.Team{Name: "platform", OwnerID: fx.Owner.ID}
	require.NoError(t, conn.Create(&fx.Team).Error)

	fx.Project = models.Project{Name: "rollout", TeamID: fx.Team.ID, CreatorID: fx.Manager.ID}
	require.NoError(t, conn.Create(&fx.Project).Error)

	for _, edge := range []models.ProjectWorker{
		{ProjectID: fx.Project.ID, UserID: fx.Manager.ID, Role: types.EdgeManager},
		{ProjectID: fx.Project.ID, UserID: fx.Worker.ID, Role: types.EdgeMember},
	} {
		require.NoError(t, conn.Create(&edge).Error)
	}

	fx.Task = models.Task{Name: "ship it", ProjectID: fx.Project.ID, AssigneeID: fx.Worker.ID}
	require.NoError(t, conn.Create(&fx.Task).Error)

	return fx
}

func (fx *fixture) notifications(t *testing.T) []models.Notification {
	t.Helper()
	var rows []models.Notification
	require.NoError(t, fx.DB.Order("id").Find(&rows).Error)
	return rows
}

func TestTaskAssignedNotifiesAssigneeOnly(t *testing.T) {
	fx := newFixture(t)

	var notified []uint
	fx.Dispatch.OnNotify = func(userID uint) { notified = append(notified, userID) }

	fx.Dispatch.handle(TaskAssigned{TaskID: fx.Task.ID})

	rows := fx.notifications(t)
	require.Len(t, rows, 1)
	assert.Equal(t, fx.Worker.ID, rows[0].UserID)
	assert.Equal(t, "task_assigned", rows[0].Type)
	assert.NotNil(t, rows[0].ReadAt, "assignment confirmations are born read")

	require.Len(t, fx.Mailer.sent, 1)
	assert.Equal(t, fx.Worker.Email, fx.Mailer.sent[0].Address)
	assert.Equal(t, rows[0].ID, fx.Mailer.sent[0].Payload["notification_id"])

	assert.Equal(t, []uint{fx.Worker.ID}, notified)
}

func TestReassignmentCreatesSecondNotification(t *testing.T) {
	fx := newFixture(t)

	fx.Dispatch.handle(TaskAssigned{TaskID: fx.Task.ID})
	fx.Dispatch.handle(TaskAssigned{TaskID: fx.Task.ID})

	rows := fx.notifications(t)
	assert.Len(t, rows, 2, "every assignment event gets its own notification")
}

func TestCommentOnTaskFansOutOnce(t *testing.T) {
	fx := newFixture(t)

	fx.Dispatch.handle(CommentCreated{ParentKind: types.ParentTask, ParentID: fx.Task.ID})

	rows := fx.notifications(t)
	recipients := make(map[uint]int)
	for _, row := range rows {
		assert.Equal(t, "comment_created", row.Type)
		assert.Nil(t, row.ReadAt, "comment notifications start unread")
		recipients[row.UserID]++
	}

	// Assignee, team owner, and both workers, each exactly once even
	// though the assignee is also a worker.
	assert.Equal(t, map[uint]int{
		fx.Worker.ID:  1,
		fx.Owner.ID:   1,
		fx.Manager.ID: 1,
	}, recipients)
	assert.Len(t, fx.Mailer.sent, 3)
}

func TestCommentOnProjectFansOutToCreatorOwnerWorkers(t *testing.T) {
	fx := newFixture(t)

	fx.Dispatch.handle(CommentCreated{ParentKind: types.ParentProject, ParentID: fx.Project.ID})

	rows := fx.notifications(t)
	recipients := make(map[uint]int)
	for _, row := range rows {
		recipients[row.UserID]++
	}

	assert.Equal(t, map[uint]int{
		fx.Manager.ID: 1,
		fx.Owner.ID:   1,
		fx.Worker.ID:  1,
	}, recipients)
}

func TestNotificationRowExistsBeforeDelivery(t *testing.T) {
	fx := newFixture(t)

	var rowsAtDelivery []int64
	fx.Mailer.onSchedule = func() {
		var count int64
		require.NoError(t, fx.DB.Model(&models.Notification{}).Count(&count).Error)
		rowsAtDelivery = append(rowsAtDelivery, count)
	}

	fx.Dispatch.handle(TaskAssigned{TaskID: fx.Task.ID})

	require.Len(t, rowsAtDelivery, 1)
	assert.EqualValues(t, 1, rowsAtDelivery[0], "the notification must be written before the message goes out")
}

func TestDeliveryRetriesOnce(t *testing.T) {
	fx := newFixture(t)
	fx.Mailer.failNext = 1

	fx.Dispatch.handle(TaskAssigned{TaskID: fx.Task.ID})

	assert.Len(t, fx.Mailer.sent, 1, "first failure is retried")
	assert.Len(t, fx.notifications(t), 1)
}

func TestDeliveryGivesUpAfterSecondFailure(t *testing.T) {
	fx := newFixture(t)
	fx.Mailer.failNext = 2

	fx.Dispatch.handle(TaskAssigned{TaskID: fx.Task.ID})

	assert.Empty(t, fx.Mailer.sent)
	assert.Len(t, fx.notifications(t), 1, "the notification row survives a failed delivery")
}
