// Package main is a diagnostic tool for testing database connectivity and inspecting live
// community data. It prints the schema version, membership counts per status and the number
// of active pledges already due. Any failure exits non-zero so the binary can gate deployments.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/temple4/community-core/internal/config"
	"github.com/temple4/community-core/internal/db"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 0)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	version, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n", version, dirty)

	var tenants int
	if err := database.GetContext(ctx, &tenants, `SELECT COUNT(*) FROM tenants`); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("Tenants: %d\n", tenants)

	fmt.Println("\n=== MEMBERSHIPS ===")
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := database.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM memberships GROUP BY status ORDER BY status`); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	if len(rows) == 0 {
		fmt.Println("No memberships found!")
	}
	for _, r := range rows {
		fmt.Printf("%-10s %d\n", r.Status, r.Count)
	}

	fmt.Println("\n=== PLEDGES ===")
	var active, due int
	if err := database.GetContext(ctx, &active, `SELECT COUNT(*) FROM pledges WHERE status = 'ACTIVE'`); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	if err := database.GetContext(ctx, &due, `SELECT COUNT(*) FROM pledges WHERE status = 'ACTIVE' AND next_charge_at <= NOW()`); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("Active: %d, due now: %d\n", active, due)
}
