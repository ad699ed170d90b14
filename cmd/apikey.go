package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-account/app/entity"
	"github.com/vibast-solutions/ms-go-account/app/repository"
	"github.com/vibast-solutions/ms-go-account/app/service"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage the keys other services use to resolve sessions",
}

var apiKeyIssueCmd = &cobra.Command{
	Use:   "issue <service_name>",
	Short: "Issue a key granting session resolution for a limited time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, err := cmd.Flags().GetDuration("ttl")
		if err != nil {
			return err
		}

		keys, db, err := newServiceKeyServiceForCommands(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		serviceName := args[0]
		key, err := keys.Issue(cmd.Context(), serviceName, entity.ScopeSessionsResolve, ttl)
		if err != nil {
			if errors.Is(err, service.ErrInvalidGrantTTL) {
				return fmt.Errorf("--ttl must be positive, got %s", ttl)
			}
			return err
		}

		fmt.Printf("service_name: %s\n", serviceName)
		fmt.Printf("scope: %s\n", entity.ScopeSessionsResolve)
		fmt.Printf("expires_at: %s\n", time.Now().Add(ttl).UTC().Format(time.RFC3339))
		fmt.Printf("api_key: %s\n", key)
		return nil
	},
}

var apiKeyListCmd = &cobra.Command{
	Use:   "list <service_name>",
	Short: "List a service's keys with their grants and last use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, db, err := newServiceKeyServiceForCommands(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		list, err := keys.List(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Printf("service %s has no keys\n", args[0])
			return nil
		}

		for _, key := range list {
			fmt.Println(describeServiceKey(key))
		}
		return nil
	},
}

var apiKeyRevokeCmd = &cobra.Command{
	Use:   "revoke <service_name>",
	Short: "Revoke every key of a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, db, err := newServiceKeyServiceForCommands(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		serviceName := args[0]
		count, err := keys.Revoke(cmd.Context(), serviceName)
		if err != nil {
			if errors.Is(err, service.ErrNoActiveServiceKeys) {
				return fmt.Errorf("service %q has no active keys", serviceName)
			}
			return err
		}

		fmt.Printf("revoked %d key(s) for service %s\n", count, serviceName)
		return nil
	},
}

func init() {
	apiKeyIssueCmd.Flags().Duration("ttl", 90*24*time.Hour, "how long the session resolution grant lasts")

	apiKeyCmd.AddCommand(apiKeyIssueCmd)
	apiKeyCmd.AddCommand(apiKeyListCmd)
	apiKeyCmd.AddCommand(apiKeyRevokeCmd)
	rootCmd.AddCommand(apiKeyCmd)
}

func describeServiceKey(key *entity.ServiceKey) string {
	state := "active"
	if key.IsRevoked() {
		state = "revoked " + key.RevokedAt.Time.UTC().Format(time.RFC3339)
	}
	lastUsed := "never"
	if key.LastUsedAt.Valid {
		lastUsed = key.LastUsedAt.Time.UTC().Format(time.RFC3339)
	}

	grants := make([]string, 0, len(key.Grants))
	for scope, expiresAt := range key.Grants {
		grants = append(grants, scope+" until "+expiresAt.UTC().Format(time.RFC3339))
	}

	return fmt.Sprintf("%d %s... %s grants=[%s] last_used=%s",
		key.ID, key.KeyPrefix, state, strings.Join(grants, ", "), lastUsed)
}

// openDatabaseFromEnv only needs MYSQL_DSN, so maintenance commands run
// without the session and redis settings serve requires.
func openDatabaseFromEnv(ctx context.Context) (*sql.DB, error) {
	_ = godotenv.Load()

	dsn := strings.TrimSpace(os.Getenv("MYSQL_DSN"))
	if dsn == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}
	return openDatabase(ctx, dsn)
}

func newServiceKeyServiceForCommands(ctx context.Context) (*service.ServiceKeyService, *sql.DB, error) {
	db, err := openDatabaseFromEnv(ctx)
	if err != nil {
		return nil, nil, err
	}
	return service.NewServiceKeyService(repository.NewServiceKeyRepository(db)), db, nil
}
