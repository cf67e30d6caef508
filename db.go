package main

import (
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/models"
)

var db *gorm.DB

func initDB(cfg *Config, logger *zap.Logger) {
	var err error
	db, err = gorm.Open(postgres.Open(cfg.DBDSN), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect postgres database", zap.Error(err))
	}

	if cfg.DBAutoMigrate {
		// Roles first so the users FK can be applied safely; migrate models
		// individually so a failure on one doesn't block the others.
		if err := db.AutoMigrate(&models.Role{}); err != nil {
			logger.Warn("migration warning (roles)", zap.Error(err))
		}
		seedRoles(logger)
		if err := db.AutoMigrate(&models.User{}); err != nil {
			logger.Warn("migration warning (users)", zap.Error(err))
		}
		if err := db.AutoMigrate(&models.RefreshToken{}); err != nil {
			logger.Warn("migration warning (refresh_tokens)", zap.Error(err))
		}
		if err := db.AutoMigrate(&models.Evidence{}); err != nil {
			logger.Warn("migration warning (evidences)", zap.Error(err))
		}
	}

	seedDB(cfg, logger)
}

// seedRoles ensures the master roles exist (idempotent).
func seedRoles(logger *zap.Logger) {
	roles := []models.Role{
		{Name: "officer", Description: "collects and seals evidence"},
		{Name: "judge", Description: "verifies evidence integrity"},
		{Name: "lawyer", Description: "reads evidence and verification history"},
		{Name: "administrator", Description: "full access"},
	}
	for _, r := range roles {
		var cnt int64
		db.Model(&models.Role{}).Where("name = ?", r.Name).Count(&cnt)
		if cnt == 0 {
			if err := db.Create(&r).Error; err != nil {
				logger.Warn("failed to seed role", zap.String("role", r.Name), zap.Error(err))
			}
		}
	}
}

func seedDB(cfg *Config, logger *zap.Logger) {
	seedRoles(logger)

	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		var role models.Role
		if err := db.Where("name = ?", "administrator").First(&role).Error; err != nil {
			logger.Error("failed to find administrator role", zap.Error(err))
			return
		}
		rid := role.ID
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
		admin := models.User{
			Username:       "admin",
			Name:           "Administrator",
			Email:          "admin@example.com",
			HashedPassword: hashedPassword,
			RoleID:         &rid,
		}
		if err := db.Create(&admin).Error; err != nil {
			logger.Error("failed to seed admin user", zap.Error(err))
			return
		}
		logger.Info("seeded admin user; change ADMIN_PASSWORD before exposing this deployment",
			zap.String("username", "admin"))
	}
}
