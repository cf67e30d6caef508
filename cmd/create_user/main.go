package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	roleName := flag.String("role", "officer", "role for the new account (officer, judge, lawyer, administrator)")
	wallet := flag.String("wallet", "", "ledger wallet address used as the collector identity")
	name := flag.String("name", "", "display name (defaults to the username)")
	email := flag.String("email", "", "contact email")
	flag.Parse()

	if flag.NArg() < 2 {
		fmt.Println("usage: go run ./cmd/create_user [flags] <username> <password>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	username := flag.Arg(0)
	password := flag.Arg(1)

	dsn := os.Getenv("DB_DSN")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("DB_DSN not set in environment")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}

	var role models.Role
	if err := db.Where("name = ?", *roleName).First(&role).Error; err != nil {
		log.Fatalf("role %q does not exist; run the server migration first", *roleName)
	}

	// check existing
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		fmt.Printf("user %s already exists (id=%d)\n", username, existing.ID)
		os.Exit(0)
	}

	hpw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("bcrypt failed: %v", err)
	}
	displayName := *name
	if displayName == "" {
		displayName = username
	}
	rid := role.ID
	user := models.User{
		Username:       username,
		HashedPassword: hpw,
		Name:           displayName,
		Email:          *email,
		WalletAddress:  *wallet,
		RoleID:         &rid,
	}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created %s user %s id=%d\n", role.Name, username, user.ID)
}
