package router

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crewdeck-dev/crewdeck/db"
	"github.com/crewdeck-dev/crewdeck/internal/auth"
	"github.com/crewdeck-dev/crewdeck/internal/authz"
	"github.com/crewdeck-dev/crewdeck/internal/cache"
	"github.com/crewdeck-dev/crewdeck/internal/events"
	"github.com/crewdeck-dev/crewdeck/internal/handlers"
	"github.com/crewdeck-dev/crewdeck/internal/mailer"
	"github.com/crewdeck-dev/crewdeck/internal/models"
	"github.com/crewdeck-dev/crewdeck/internal/roles"
	"github.com/crewdeck-dev/crewdeck/internal/services"
	"github.com/crewdeck-dev/crewdeck/internal/storage"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

// newTestRouter wires the full stack — auth middleware, role gates,
// handlers, services — against an in-memory database.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	t.Setenv("JWT_SECRET", "router-test-secret")
	require.NoError(t, auth.InitJWTSecret())

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(conn))
	db.DB = conn

	dir := roles.NewDirectory(conn)
	eval := authz.NewEvaluator(dir)
	store := cache.NewMemory()
	dispatcher := events.NewDispatcher(conn, mailer.NewNoop())
	blobs, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)

	handlers.Init(handlers.Deps{
		Teams:         services.NewTeamService(conn, dir, eval, store),
		Projects:      services.NewProjectService(conn, dir, eval, store),
		Tasks:         services.NewTaskService(conn, dir, eval, store, dispatcher),
		Comments:      services.NewCommentService(conn, dir, eval, store, dispatcher),
		Attachments:   services.NewAttachmentService(conn, eval, blobs),
		Notifications: services.NewNotificationService(conn, dir, eval),
	})

	return NewRouter()
}

func createRouterUser(t *testing.T, name string) (*models.User, string) {
	t.Helper()
	user := models.User{Name: name, Email: name + "@crewdeck.test", PasswordHash: "x"}
	require.NoError(t, db.DB.Create(&user).Error)

	token, err := auth.GenerateJWT(user.ID, user.Email)
	require.NoError(t, err)
	return &user, token
}

func doJSON(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTeamRoutesOpenToTeamOwners(t *testing.T) {
	r := newTestRouter(t)
	dir := roles.NewDirectory(db.DB)

	owner, ownerToken := createRouterUser(t, "owner")
	require.NoError(t, dir.Grant(db.DB, owner.ID, types.RoleTeamOwner))

	team := models.Team{Name: "platform", OwnerID: owner.ID}
	require.NoError(t, db.DB.Create(&team).Error)
	require.NoError(t, db.DB.Create(&models.TeamMembership{TeamID: team.ID, UserID: owner.ID}).Error)

	// A team owner may create further teams.
	w := doJSON(r, http.MethodPost, "/api/teams", ownerToken, `{"name":"infra"}`)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// And delete a team they own.
	w = doJSON(r, http.MethodDelete, fmt.Sprintf("/api/teams/%d", team.ID), ownerToken, "")
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
}

func TestTeamDeleteStillScopedToOwnTeams(t *testing.T) {
	r := newTestRouter(t)
	dir := roles.NewDirectory(db.DB)

	owner, _ := createRouterUser(t, "owner")
	require.NoError(t, dir.Grant(db.DB, owner.ID, types.RoleTeamOwner))
	team := models.Team{Name: "platform", OwnerID: owner.ID}
	require.NoError(t, db.DB.Create(&team).Error)

	// Another team owner passes the role gate but fails the
	// per-team check in the service.
	rival, rivalToken := createRouterUser(t, "rival")
	require.NoError(t, dir.Grant(db.DB, rival.ID, types.RoleTeamOwner))

	w := doJSON(r, http.MethodDelete, fmt.Sprintf("/api/teams/%d", team.ID), rivalToken, "")
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
}

func TestTeamCreateRejectsPlainMembers(t *testing.T) {
	r := newTestRouter(t)

	_, token := createRouterUser(t, "nobody")

	w := doJSON(r, http.MethodPost, "/api/teams", token, `{"name":"rogue"}`)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
}

func TestTeamRoutesRequireAuth(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/teams", "", `{"name":"anon"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code, w.Body.String())
}
