package seed

import (
	"server/config"
	"server/internal/logger"
	. "server/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func stringPtr(s string) *string {
	return &s
}

func Seed(db *gorm.DB, config config.Config, log logger.Logger) error {
	log = log.Function("seed")
	log.Info("Seeding development data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return log.Err("failed to hash seed password", err)
	}

	accounts := []Account{
		{
			Email:        "admin@example.com",
			PasswordHash: string(hash),
			DisplayName:  "Seed Admin",
			Role:         RoleAdmin,
		}, {
			Email:              "thandi.n@example.com",
			PasswordHash:       string(hash),
			DisplayName:        "Thandi Nkosi",
			Role:               RolePractitioner,
			PractitionerStatus: PractitionerApproved,
			PractitionerCode:   stringPtr("TAXPRO7K"),
			Specializations:    []string{"small_business", "vat"},
		}, {
			Email:              "pieter.v@example.com",
			PasswordHash:       string(hash),
			DisplayName:        "Pieter van Wyk",
			Role:               RolePractitioner,
			PractitionerStatus: PractitionerApproved,
			PractitionerCode:   stringPtr("TAXPRO9Q"),
			Specializations:    []string{"individual", "capital_gains"},
		}, {
			Email:              "lindiwe.m@example.com",
			PasswordHash:       string(hash),
			DisplayName:        "Lindiwe Mahlangu",
			Role:               RolePractitioner,
			PractitionerStatus: PractitionerPending,
		}, {
			Email:        "sipho.d@example.com",
			PasswordHash: string(hash),
			DisplayName:  "Sipho Dlamini",
			Role:         RoleClient,
		}, {
			Email:        "annelie.b@example.com",
			PasswordHash: string(hash),
			DisplayName:  "Annelie Botha",
			Role:         RoleClient,
		},
	}

	for _, account := range accounts {
		var existing Account
		if err := db.First(&existing, "email = ?", account.Email).Error; err == nil {
			log.Info("Account already exists", "email", account.Email)
			continue
		}
		log.Info("Seeding account", "email", account.Email, "role", account.Role)
		if err := db.Create(&account).Error; err != nil {
			log.Er("failed to create account", err, "email", account.Email)
		}
	}

	return nil
}
