package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crewdeck-dev/crewdeck/db"
	"github.com/crewdeck-dev/crewdeck/internal/authz"
	"github.com/crewdeck-dev/crewdeck/internal/cache"
	"github.com/crewdeck-dev/crewdeck/internal/events"
	"github.com/crewdeck-dev/crewdeck/internal/mailer"
	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/roles"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

type testEnv struct {
	DB       *gorm.DB
	Roles    *roles.Directory
	Teams    *TeamService
	Projects *ProjectService
	Tasks    *TaskService
	Comments *CommentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(conn))

	dir := roles.NewDirectory(conn)
	eval := authz.NewEvaluator(dir)
	store := cache.NewMemory()
	dispatcher := events.NewDispatcher(conn, mailer.NewNoop())

	return &testEnv{
		DB:       conn,
		Roles:    dir,
		Teams:    NewTeamService(conn, dir, eval, store),
		Projects: NewProjectService(conn, dir, eval, store),
		Tasks:    NewTaskService(conn, dir, eval, store, dispatcher),
		Comments: NewCommentService(conn, dir, eval, store, dispatcher),
	}
}

func (e *testEnv) createUser(t *testing.T, name string) *models.User {
	t.Helper()
	user := models.User{
		Name:         name,
		Email:        fmt.Sprintf("%s@crewdeck.test", name),
		PasswordHash: "x",
	}
	require.NoError(t, e.DB.Create(&user).Error)
	return &user
}

func (e *testEnv) createAdmin(t *testing.T, name string) *models.User {
	t.Helper()
	user := e.createUser(t, name)
	require.NoError(t, e.Roles.Grant(e.DB, user.ID, types.RoleAdmin))
	return user
}

func (e *testEnv) hasRole(t *testing.T, userID uint, role types.Role) bool {
	t.Helper()
	held, err := e.Roles.Has(e.DB, userID, role)
	require.NoError(t, err)
	return held
}
