// Package main is a diagnostic tool for database connectivity. It connects
// with the server's configuration, prints the schema version, the number of
// accounts and the audit event totals per action. It exits non-zero on any
// failure so it can gate deployments in CI/CD.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/identity-service/identity-service/internal/config"
	"github.com/identity-service/identity-service/internal/db"
	"github.com/identity-service/identity-service/internal/db/repositories"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Connect(ctx, cfg.Database.GetDSN(), db.PoolConfig{MaxConnections: 2, MaxIdleConnections: 1})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	fmt.Printf("Connected to %s@%s:%d/%s\n", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)

	fmt.Println("\n=== USERS ===")
	users, err := repositories.NewUserRepository(database).CountUsers(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("Registered accounts: %d\n", users)

	fmt.Println("\n=== AUDIT LOGS ===")
	counts, err := repositories.NewAuditQueryRepository(sqlx.NewDb(database, "postgres")).CountByAction(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	if len(counts) == 0 {
		fmt.Println("No audit events found!")
	}
	for _, c := range counts {
		fmt.Printf("%-16s %d\n", c.Action, c.Count)
	}

	if dirty {
		os.Exit(2)
	}
}
