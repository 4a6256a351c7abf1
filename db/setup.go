package db

import (
	"github.com/crewdeck-dev/crewdeck/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func ConnectDatabase(dsn string) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})

	if err != nil {
		return err
	}

	return nil
}

func MigrateDatabase() error {
	return Migrate(DB)
}

// Migrate runs AutoMigrate for every model on the given connection.
// Tests call it against an in-memory database.
func Migrate(conn *gorm.DB) error {
	models := []interface{}{
		&models.User{},
		&models.UserRole{},
		&models.Team{},
		&models.TeamMembership{},
		&models.Project{},
		&models.ProjectWorker{},
		&models.Task{},
		&models.Comment{},
		&models.Attachment{},
		&models.Notification{},
	}

	migrator := conn.Migrator()

	for _, model := range models {
		if !migrator.HasTable(model) {
			if err := conn.AutoMigrate(model); err != nil {
				return err
			}
		}
	}

	return nil
}
