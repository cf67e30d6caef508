package main

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/models"
)

// Roles a user may self-register with. Administrator accounts are seeded
// only.
var registrableRoles = map[string]bool{
	"officer": true,
	"judge":   true,
	"lawyer":  true,
}

// RegisterUser creates an account with one of the registrable roles.
func RegisterUser(username, password, name, email, roleName, walletAddress string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username required")
	}
	if len(password) < 6 { // basic password policy
		return fmt.Errorf("password too short (min 6)")
	}
	roleName = strings.ToLower(strings.TrimSpace(roleName))
	if !registrableRoles[roleName] {
		return fmt.Errorf("role must be one of officer, judge, lawyer")
	}
	// pre-check existing (optimistic)
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		return fmt.Errorf("user already exists")
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	var role models.Role
	if err := db.Where("name = ?", roleName).First(&role).Error; err != nil {
		return fmt.Errorf("role %s is not seeded: %v", roleName, err)
	}
	rid := role.ID
	user := models.User{
		Username:       username,
		HashedPassword: hashedPassword,
		Name:           strings.TrimSpace(name),
		Email:          strings.TrimSpace(email),
		WalletAddress:  strings.TrimSpace(walletAddress),
		RoleID:         &rid,
	}
	if err := db.Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) { // race condition after initial check
			return fmt.Errorf("user already exists")
		}
		return err
	}
	return nil
}

func Authenticate(username, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	var user models.User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return models.User{}, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return models.User{}, fmt.Errorf("invalid credentials")
	}
	return user, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") ||
		strings.Contains(s, "UNIQUE constraint") || strings.Contains(s, "already exists")
}
