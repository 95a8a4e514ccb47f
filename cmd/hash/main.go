// Package main prints a bcrypt hash for a password so accounts can be seeded
// or repaired directly in the users table without running the server. It uses
// the same cost as the server configuration.
//
//	go run ./cmd/hash 'Password123'
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/identity-service/identity-service/internal/auth"
	"github.com/identity-service/identity-service/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <password>", os.Args[0])
	}

	cost := auth.DefaultBcryptCost
	if cfg, err := config.Load(os.Getenv("CONFIG_PATH")); err == nil {
		cost = cfg.Auth.Password.BcryptCost
	}

	hasher, err := auth.NewPasswordHasher(cost)
	if err != nil {
		log.Fatalf("Failed to create hasher: %v", err)
	}

	hash, err := hasher.Hash(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	fmt.Println(hash)
}
