package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/crewdeck-dev/crewdeck/internal/handlers"
	"github.com/crewdeck-dev/crewdeck/internal/middleware"
	"github.com/crewdeck-dev/crewdeck/internal/types"
)

func NewRouter() *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     types.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)
		api.GET("/ws/notifications", middleware.AuthMiddleware(), handlers.NotificationStream)

		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.CreateUser)
			auth.POST("/login", handlers.LoginUser)
			auth.POST("/logout", middleware.AuthMiddleware(), handlers.LogoutUser)
			auth.GET("/me", middleware.AuthMiddleware(), handlers.Me)
		}

		teams := api.Group("/teams", middleware.AuthMiddleware())
		{
			teams.GET("", handlers.ListTeams)
			teams.POST("", middleware.RequireRole(types.RoleAdmin, types.RoleTeamOwner), handlers.CreateTeam)
			teams.GET("/:team_id", handlers.GetTeam)
			teams.PATCH("/:team_id", handlers.UpdateTeam)
			teams.DELETE("/:team_id", middleware.RequireRole(types.RoleAdmin, types.RoleTeamOwner), handlers.DeleteTeam)

			teams.POST("/:team_id/members", handlers.AddTeamMembers)
			teams.DELETE("/:team_id/members", handlers.RemoveTeamMembers)
			teams.POST("/:team_id/transfer-ownership/:user_id", handlers.TransferTeamOwnership)
		}

		projects := api.Group("/projects", middleware.AuthMiddleware())
		{
			projects.GET("", handlers.ListProjects)
			projects.POST("", middleware.RequireRole(types.RoleAdmin, types.RoleTeamOwner), handlers.CreateProject)
			projects.GET("/completed", middleware.RequireRole(types.RoleAdmin, types.RoleTeamOwner), handlers.ListCompletedProjects)
			projects.GET("/completed-task-counts", middleware.RequireRole(types.RoleAdmin, types.RoleTeamOwner), handlers.CompletedTaskCounts)
			projects.GET("/:project_id", handlers.GetProject)
			projects.PATCH("/:project_id", handlers.UpdateProject)
			projects.DELETE("/:project_id", handlers.DeleteProject)

			projects.POST("/:project_id/workers", handlers.AddProjectWorkers)
			projects.DELETE("/:project_id/workers", handlers.RemoveProjectWorkers)
			projects.POST("/:project_id/change-manager/:user_id", handlers.ChangeProjectManager)

			projects.POST("/:project_id/comments", handlers.CreateProjectComment)
			projects.POST("/:project_id/attachments", handlers.UploadProjectAttachment)
		}

		tasks := api.Group("/tasks", middleware.AuthMiddleware())
		{
			tasks.GET("", handlers.ListTasks)
			tasks.POST("", handlers.CreateTask)
			tasks.GET("/:task_id", handlers.GetTask)
			tasks.PATCH("/:task_id", handlers.UpdateTask)
			tasks.DELETE("/:task_id", handlers.DeleteTask)

			tasks.POST("/:task_id/assign/:user_id", handlers.AssignTask)
			tasks.POST("/:task_id/comments", handlers.CreateTaskComment)
			tasks.POST("/:task_id/attachments", handlers.UploadTaskAttachment)
		}

		comments := api.Group("/comments", middleware.AuthMiddleware())
		{
			comments.GET("", handlers.ListComments)
			comments.GET("/:comment_id", handlers.GetComment)
			comments.PATCH("/:comment_id", handlers.UpdateComment)
			comments.DELETE("/:comment_id", handlers.DeleteComment)

			comments.POST("/:comment_id/attachments", handlers.UploadCommentAttachment)
		}

		attachments := api.Group("/attachments", middleware.AuthMiddleware())
		{
			attachments.GET("", handlers.ListAttachments)
			attachments.GET("/:attachment_id", handlers.GetAttachment)
			attachments.PATCH("/:attachment_id", handlers.RenameAttachment)
			attachments.DELETE("/:attachment_id", handlers.DeleteAttachment)
		}

		notifications := api.Group("/notifications", middleware.AuthMiddleware())
		{
			notifications.GET("", handlers.ListNotifications)
			notifications.GET("/:notification_id", handlers.GetNotification)
			notifications.POST("/:notification_id/read", handlers.MarkNotificationRead)
			notifications.DELETE("/:notification_id", handlers.DeleteNotification)
		}
	}

	return r
}
