package initialize

import (
	"server/config"
	"server/internal/logger"
	. "server/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func InitializeTables(db *gorm.DB, config config.Config, log logger.Logger) error {
	log = log.Function("InitializeTables")
	log.Info("Initializing essential production data")

	if err := db.AutoMigrate(
		&Account{},
		&Connection{},
		&ConnectionRequest{},
		&ClientInvite{},
		&Application{},
	); err != nil {
		return log.Err("failed to migrate tables", err)
	}

	if err := ensureAdmin(db, log); err != nil {
		return err
	}

	log.Info("Table initialization complete")
	return nil
}

func ensureAdmin(db *gorm.DB, log logger.Logger) error {
	var existing Account
	if err := db.First(&existing, "role = ?", RoleAdmin).Error; err == nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return log.Err("failed to hash bootstrap admin password", err)
	}

	admin := Account{
		Email:        "admin@example.com",
		PasswordHash: string(hash),
		DisplayName:  "Bootstrap Admin",
		Role:         RoleAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		return log.Err("failed to create bootstrap admin", err)
	}

	log.Info("Created bootstrap admin", "email", admin.Email)
	return nil
}
