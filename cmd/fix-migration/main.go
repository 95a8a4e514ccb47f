// Package main repairs a dirty migration state. golang-migrate marks a version
// dirty when a migration starts and is interrupted before it completes; the
// server then refuses to start with "Dirty database version". This tool clears
// the flag at the recorded version (or at the version given as the first
// argument) so the next startup retries cleanly. Inspect the schema by hand
// first: forcing a version runs no SQL.
package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/identity-service/identity-service/internal/config"
	"github.com/identity-service/identity-service/internal/db"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(context.Background(), cfg.Database.GetDSN(), db.PoolConfig{MaxConnections: 1, MaxIdleConnections: 1})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Connected to database successfully")

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check migration state: %v", err)
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)

	target := int(version)
	if len(os.Args) > 1 {
		target, err = strconv.Atoi(os.Args[1])
		if err != nil {
			log.Fatalf("Invalid version %q: %v", os.Args[1], err)
		}
	}

	if !dirty && target == int(version) {
		log.Println("Migration state is already clean")
		return
	}

	log.Printf("Forcing migration version %d...", target)
	if err := db.ForceMigrationVersion(database, target); err != nil {
		log.Fatalf("Failed to fix dirty state: %v", err)
	}

	version, dirty, err = db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check final migration state: %v", err)
	}
	log.Printf("Final migration state: version=%d, dirty=%v", version, dirty)
}
