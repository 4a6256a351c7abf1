package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crewdeck-dev/crewdeck/internal/services"
	"github.com/crewdeck-dev/crewdeck/internal/utils"
)

type CreateTaskRequest struct {
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	ProjectID   uint       `json:"project_id" binding:"required"`
	AssigneeID  uint       `json:"assignee_id" binding:"required"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

type UpdateTaskRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

func ListTasks(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	tasks, err := Tasks.List(user)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func CreateTask(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var body CreateTaskRequest
	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	task, err := Tasks.Create(user, services.TaskInput{
		Name:        body.Name,
		Description: body.Description,
		ProjectID:   body.ProjectID,
		AssigneeID:  body.AssigneeID,
		Status:      body.Status,
		Priority:    body.Priority,
		DueDate:     body.DueDate,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"task": task})
}

func GetTask(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	taskID, err := utils.ParamID(ctx, "task_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := Tasks.Get(user, taskID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"task": task})
}

func UpdateTask(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	taskID, err := utils.ParamID(ctx, "task_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body UpdateTaskRequest
	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	task, err := Tasks.Update(user, taskID, services.UpdateTaskInput{
		Name:        body.Name,
		Description: body.Description,
		Status:      body.Status,
		Priority:    body.Priority,
		DueDate:     body.DueDate,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"task": task})
}

func DeleteTask(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	taskID, err := utils.ParamID(ctx, "task_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := Tasks.Delete(user, taskID); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func AssignTask(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	taskID, err := utils.ParamID(ctx, "task_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assigneeID, err := utils.ParamID(ctx, "user_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := Tasks.Assign(user, taskID, assigneeID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"task": task})
}
