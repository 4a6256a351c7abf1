package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewdeck-dev/crewdeck/internal/types"
	"github.com/crewdeck-dev/crewdeck/internal/utils"
)

type CommentRequest struct {
	Body string `json:"body" binding:"required"`
}

func ListComments(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	comments, err := Comments.List(user)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"comments": comments})
}

func GetComment(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	commentID, err := utils.ParamID(ctx, "comment_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	comment, err := Comments.Get(user, commentID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"comment": comment})
}

// CreateProjectComment and CreateTaskComment share createComment; the
// parent kind comes from the route, never the body.
func CreateProjectComment(ctx *gin.Context) {
	createComment(ctx, types.ParentProject, "project_id")
}

func CreateTaskComment(ctx *gin.Context) {
	createComment(ctx, types.ParentTask, "task_id")
}

func createComment(ctx *gin.Context, kind types.ParentKind, param string) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	parentID, err := utils.ParamID(ctx, param)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body CommentRequest
	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	comment, err := Comments.Create(user, kind, parentID, body.Body)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"comment": comment})
}

func UpdateComment(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	commentID, err := utils.ParamID(ctx, "comment_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body CommentRequest
	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	comment, err := Comments.Update(user, commentID, body.Body)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"comment": comment})
}

func DeleteComment(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	commentID, err := utils.ParamID(ctx, "comment_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := Comments.Delete(user, commentID); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
