package database

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/resonatefm/resonate/internal/models"
	"github.com/resonatefm/resonate/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Song{},
		&models.SongVersion{},
		&models.Rating{},
		&models.Favorite{},
		&models.SongView{},
		&models.QueuedEmail{},
		&models.VerificationToken{},
	)
}

// SeedData ensures a root administrator exists so the moderation and queue
// admin surfaces are reachable on a fresh install. The password must be
// rotated through the profile endpoint; it is only generated once.
func SeedData(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	var count int64
	if err := db.Model(&models.User{}).Where("is_admin = ?", true).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password, err := crypto.GenerateToken(24)
	if err != nil {
		return err
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}

	admin := models.User{
		Username:      "admin",
		Email:         "admin@localhost",
		Password:      hash,
		IsAdmin:       true,
		IsActive:      true,
		EmailVerified: true,
	}

	if err := db.Where(models.User{Username: admin.Username}).Attrs(admin).FirstOrCreate(&models.User{}).Error; err != nil {
		// Unique email collisions mean an operator already created the account.
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil
		}
		return err
	}

	return nil
}
