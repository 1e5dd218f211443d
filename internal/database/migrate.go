package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"Bootcamp/internal/models"
)

func Migrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	err := db.AutoMigrate(
		&models.UserProfile{},
		&models.Cohort{},
		&models.Application{},
		&models.UserApplicationStatus{},
		&models.PaymentTransaction{},
		&models.Enrollment{},
		&models.UserActivity{},
		&models.StatusAuditEntry{},
		&models.Notification{},
	)
	if err != nil {
		log.Printf("Error migrating database: %v", err)
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := db.Exec(models.OverviewViewSQL).Error; err != nil {
		return fmt.Errorf("failed to create overview view: %w", err)
	}

	log.Println("Database migration completed successfully")
	return nil
}
