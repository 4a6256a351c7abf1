package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewdeck-dev/crewdeck/internal/apperrors"
	"github.com/crewdeck-dev/crewdeck/internal/services"
)

// Package-level services, wired once at startup by Init.
var (
	Teams         *services.TeamService
	Projects      *services.ProjectService
	Tasks         *services.TaskService
	Comments      *services.CommentService
	Attachments   *services.AttachmentService
	Notifications *services.NotificationService
)

type Deps struct {
	Teams         *services.TeamService
	Projects      *services.ProjectService
	Tasks         *services.TaskService
	Comments      *services.CommentService
	Attachments   *services.AttachmentService
	Notifications *services.NotificationService
}

func Init(deps Deps) {
	Teams = deps.Teams
	Projects = deps.Projects
	Tasks = deps.Tasks
	Comments = deps.Comments
	Attachments = deps.Attachments
	Notifications = deps.Notifications
}

// respondError maps the error taxonomy onto HTTP statuses. Business
// rule violations carry their reason; everything else surfaces as a
// generic 500.
func respondError(ctx *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindInternal {
		log.Printf("%s %s failed: %v", ctx.Request.Method, ctx.FullPath(), err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	ctx.JSON(kind.HTTPStatus(), gin.H{"error": apperrors.MessageOf(err)})
}
