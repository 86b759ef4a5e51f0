// Command reset-password sets a user's password directly in the database and
// is meant for recovering a locked-out admin. Running sessions of the user are
// not affected until the API restarts, since sessions live in memory.
package main

import (
	"flag"
	"log"

	"go-stock-ledger/internal/config"
	"go-stock-ledger/internal/repository"
	"go-stock-ledger/pkg/database"
	"go-stock-ledger/pkg/password"
)

func main() {
	username := flag.String("username", "admin", "user whose password is reset")
	newPassword := flag.String("password", "", "new password (at least 8 characters)")
	flag.Parse()

	if len(*newPassword) < 8 {
		log.Fatal("❌ -password must be at least 8 characters")
	}

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// 2. Setup Database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	userRepo := repository.NewUserRepo(db)

	// 3. Find user
	user, err := userRepo.FindByUsername(*username)
	if err != nil {
		log.Fatalf("❌ User %s not found in database: %v", *username, err)
	}

	// 4. Hash new password
	hashed, err := password.Hash(*newPassword, password.DefaultParams())
	if err != nil {
		log.Fatalf("❌ Failed to hash password: %v", err)
	}

	// 5. Update
	if err := userRepo.UpdatePassword(user.ID, hashed); err != nil {
		log.Fatalf("❌ Failed to update password in DB: %v", err)
	}

	log.Printf("✅ Success! Password for %s (%s) has been reset", user.Username, user.Role)
}
