// Package main issues and revokes integration keys. Only the bcrypt hash of a key is stored,
// so the plaintext is printed once on creation and cannot be recovered afterwards.
//
//	keygen create -name "Billing gateway" -scopes pledges:charge,pledges:read [-tenant ID] [-ttl 8760h]
//	keygen revoke -id KEY_ID
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/temple4/community-core/internal/audit"
	"github.com/temple4/community-core/internal/auth"
	"github.com/temple4/community-core/internal/config"
	"github.com/temple4/community-core/internal/db"
	"github.com/temple4/community-core/internal/db/models"
	"github.com/temple4/community-core/internal/db/repositories"
	"github.com/temple4/community-core/internal/telemetry"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: keygen <create|revoke> [flags]")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 0)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	keys := repositories.NewAPIKeyRepository(database)
	recorder := audit.NewRecorder(repositories.NewAuditRepository(database), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "create":
		return create(ctx, cfg, keys, recorder, args[1:])
	case "revoke":
		return revoke(ctx, keys, recorder, args[1:])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: create, revoke", args[0])
	}
}

func create(ctx context.Context, cfg *config.Config, keys *repositories.APIKeyRepository, recorder *audit.Recorder, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "friendly name, e.g. \"Billing gateway\"")
	scopeList := fs.String("scopes", string(auth.ScopePledgesCharge), "comma-separated scopes")
	tenantID := fs.String("tenant", "", "restrict the key to one tenant")
	ttl := fs.Duration("ttl", 0, "lifetime of the key; zero never expires")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("-name is required")
	}

	var scopes []string
	for _, s := range strings.Split(*scopeList, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	if len(scopes) == 0 {
		return fmt.Errorf("at least one scope is required")
	}
	if err := auth.ValidateScopes(scopes); err != nil {
		return err
	}

	plaintext, hash, prefix, err := auth.GenerateAPIKey(cfg.Auth.APIKeys.Prefix)
	if err != nil {
		return err
	}

	key := &models.APIKey{
		Name:      *name,
		KeyHash:   hash,
		KeyPrefix: prefix,
		Scopes:    scopes,
	}
	if *tenantID != "" {
		key.TenantID = tenantID
	}
	if *ttl > 0 {
		expires := time.Now().Add(*ttl)
		key.ExpiresAt = &expires
	}
	if err := keys.CreateAPIKey(ctx, key); err != nil {
		return err
	}

	recorder.Record(ctx, &audit.LogEntry{
		Action:       audit.ActionIntegrationKeyCreated,
		TenantID:     *tenantID,
		ResourceType: "api_key",
		ResourceID:   key.ID,
		AuthMethod:   "cli",
		Metadata:     map[string]interface{}{"name": key.Name, "scopes": scopes},
	})

	fmt.Printf("Key ID:  %s\n", key.ID)
	fmt.Printf("Prefix:  %s\n", key.KeyPrefix)
	fmt.Printf("Scopes:  %s\n", strings.Join(scopes, ", "))
	if key.ExpiresAt != nil {
		fmt.Printf("Expires: %s\n", key.ExpiresAt.UTC().Format(time.RFC3339))
	}
	fmt.Printf("\n%s\n\nStore this key now; it will not be shown again.\n", plaintext)
	return nil
}

func revoke(ctx context.Context, keys *repositories.APIKeyRepository, recorder *audit.Recorder, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	id := fs.String("id", "", "key ID to revoke")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("-id is required")
	}

	if err := keys.RevokeAPIKey(ctx, *id); err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}
	recorder.Record(ctx, &audit.LogEntry{
		Action:       audit.ActionIntegrationKeyRevoked,
		ResourceType: "api_key",
		ResourceID:   *id,
		AuthMethod:   "cli",
	})

	fmt.Printf("Revoked %s\n", *id)
	return nil
}
