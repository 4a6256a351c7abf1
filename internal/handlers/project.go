package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crewdeck-dev/crewdeck/internal/services"
	"github.com/crewdeck-dev/crewdeck/internal/utils"
)

type CreateProjectRequest struct {
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	TeamID      uint       `json:"team_id" binding:"required"`
	DueDate     *time.Time `json:"due_date"`
	WorkerIDs   []uint     `json:"worker_ids"`
}

type UpdateProjectRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date"`
	WorkerIDs   []uint     `json:"worker_ids"`
}

type WorkerIDsRequest struct {
	WorkerIDs []uint `json:"worker_ids" binding:"required,min=1"`
}

func ListProjects(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projects, err := Projects.List(user)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"projects": projects})
}

func CreateProject(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var body CreateProjectRequest
	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	project, err := Projects.Create(user, services.CreateProjectInput{
		Name:        body.Name,
		Description: body.Description,
		TeamID:      body.TeamID,
		DueDate:     body.DueDate,
		WorkerIDs:   body.WorkerIDs,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"project": project})
}

func GetProject(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.ParamID(ctx, "project_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := Projects.Get(user, projectID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"project": project})
}

func UpdateProject(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.ParamID(ctx, "project_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body UpdateProjectRequest
	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	project, err := Projects.Update(user, projectID, services.UpdateProjectInput{
		Name:        body.Name,
		Description: body.Description,
		Status:      body.Status,
		DueDate:     body.DueDate,
		WorkerIDs:   body.WorkerIDs,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"project": project})
}

func DeleteProject(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.ParamID(ctx, "project_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := Projects.Delete(user, projectID); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func AddProjectWorkers(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.ParamID(ctx, "project_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body WorkerIDsRequest
	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	project, err := Projects.AddWorkers(user, projectID, body.WorkerIDs)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"project": project})
}

func RemoveProjectWorkers(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.ParamID(ctx, "project_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body WorkerIDsRequest
	if err := ctx.BindJSON(&body); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	project, err := Projects.RemoveWorkers(user, projectID, body.WorkerIDs)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"project": project})
}

func ChangeProjectManager(ctx *gin.Context) {
	user, err := utils.GetCurrentUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	projectID, err := utils.ParamID(ctx, "project_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newManagerID, err := utils.ParamID(ctx, "user_id")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := Projects.ChangeManager(user, projectID, newManagerID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"project": project})
}

func ListCompletedProjects(ctx *gin.Context) {
	projects, err := Projects.Completed()
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"projects": projects})
}

func CompletedTaskCounts(ctx *gin.Context) {
	counts, err := Projects.CompletedTaskCounts()
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"counts": counts})
}
