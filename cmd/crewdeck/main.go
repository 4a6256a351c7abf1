package main

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/crewdeck-dev/crewdeck/db"
	"github.com/crewdeck-dev/crewdeck/internal/auth"
	"github.com/crewdeck-dev/crewdeck/internal/authz"
	"github.com/crewdeck-dev/crewdeck/internal/cache"
	"github.com/crewdeck-dev/crewdeck/internal/events"
	"github.com/crewdeck-dev/crewdeck/internal/handlers"
	"github.com/crewdeck-dev/crewdeck/internal/jobs"
	"github.com/crewdeck-dev/crewdeck/internal/mailer"
	"github.com/crewdeck-dev/crewdeck/internal/roles"
	"github.com/crewdeck-dev/crewdeck/internal/router"
	"github.com/crewdeck-dev/crewdeck/internal/services"
	"github.com/crewdeck-dev/crewdeck/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	if err := auth.InitJWTSecret(); err != nil {
		log.Fatalf("Failed to initialize JWT secret: %v", err)
	}

	if err := db.ConnectDatabase(os.Getenv("DATABASE_URL")); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.MigrateDatabase(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	blobs, err := storage.NewDisk(envOr("STORAGE_DIR", "storage"))
	if err != nil {
		log.Fatalf("Failed to initialize blob storage: %v", err)
	}

	outbound := buildMailer()

	dir := roles.NewDirectory(db.DB)
	eval := authz.NewEvaluator(dir)
	store := cache.NewMemory()

	dispatcher := events.NewDispatcher(db.DB, outbound)
	dispatcher.OnNotify = handlers.NotifyUser
	dispatcher.Start()
	defer dispatcher.Stop()

	handlers.Init(handlers.Deps{
		Teams:         services.NewTeamService(db.DB, dir, eval, store),
		Projects:      services.NewProjectService(db.DB, dir, eval, store),
		Tasks:         services.NewTaskService(db.DB, dir, eval, store, dispatcher),
		Comments:      services.NewCommentService(db.DB, dir, eval, store, dispatcher),
		Attachments:   services.NewAttachmentService(db.DB, eval, blobs),
		Notifications: services.NewNotificationService(db.DB, dir, eval),
	})

	sweeper := jobs.NewOverdueSweeper(db.DB, time.Hour)
	sweeper.Start()
	defer sweeper.Stop()

	r := router.NewRouter()

	port := envOr("PORT", "3000")
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func buildMailer() mailer.Outbound {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		log.Println("SMTP_HOST not set, mail delivery disabled")
		return mailer.NewNoop()
	}

	outbound, err := mailer.NewSMTP(mailer.Config{
		Host:     host,
		Port:     envOr("SMTP_PORT", "587"),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     envOr("SMTP_FROM", "no-reply@crewdeck.dev"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize mailer: %v", err)
	}

	return outbound
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
