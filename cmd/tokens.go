package cmd

import (
	"fmt"

	"github.com/vibast-solutions/ms-go-account/app/service"

	"github.com/spf13/cobra"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Maintain verification and password reset tokens",
}

var tokensPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every expired token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDatabaseFromEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		purged, err := service.NewTokenStore(db, service.DefaultTokenTTL).PurgeExpired(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("purged %d expired token(s)\n", purged)
		return nil
	},
}

func init() {
	tokensCmd.AddCommand(tokensPurgeCmd)
	rootCmd.AddCommand(tokensCmd)
}
