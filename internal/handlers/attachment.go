package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crewdeck-dev/crewdeck/internal/services"
	"github.com/crewdeck-dev/crewdeck/internal/types"
	"github.com/crewdeck-dev/crewdeck/internal/utils"
)

// 20 MiB, matching the upload limit on the client.
const maxAttachmentSize = 20 << 20

type RenameAttachmentRequest struct {
	FileName string `json:"file_name" binding:"required"`
}

func UploadProjectAttachment(ctx *gin.Context) {
	uploadAttachment(ctx, types.ParentProject, "project_id")
}

func UploadTaskAttachment(ctx *gin.Context) {
	uploadAttachment(ctx, types.ParentTask, "task_id")
}

func UploadCommentAttachment(ctx *gin.Context) {
	uploadAttachment(ctx, types.ParentComment, "comment_id")
}

func uploadAttachment(ctx *gin.Context, kind types.ParentKind, param string) {
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

	header, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}
	if header.Size > maxAttachmentSize {
		ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	file, err := header.Open()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable file"})
		return
	}

	attachment, err := Attachments.Upload(user, services.UploadInput{
		ParentKind: kind,
		ParentID:   parentID,
		FileName:   header.Filename,
		MimeType:   header.Header.Get("Content-Type"),
		Data:       data,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"attachment": attachment})
}

func ListAttachments(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	attachments, err := Attachments.List(user)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"attachments": attachments})
}

func GetAttachment(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	attachmentID, err := utils.ParamID(ctx, "attachment_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	attachment, err := Attachments.Get(user, attachmentID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"attachment": attachment})
}

func RenameAttachment(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	attachmentID, err := utils.ParamID(ctx, "attachment_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body RenameAttachmentRequest
	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	attachment, err := Attachments.Rename(user, attachmentID, body.FileName)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"attachment": attachment})
}

func DeleteAttachment(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	attachmentID, err := utils.ParamID(ctx, "attachment_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := Attachments.Delete(user, attachmentID); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
