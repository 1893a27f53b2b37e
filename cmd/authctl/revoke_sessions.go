package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/club-manager/internal/auth"
	"github.com/iliyamo/club-manager/internal/config"
	"github.com/iliyamo/club-manager/internal/database"
	"github.com/iliyamo/club-manager/internal/repository"
	"github.com/iliyamo/club-manager/internal/security"
)

var revokeUserID uint64

// openDB connects with the DB_* environment.
var openDB = func(ctx context.Context) (*sql.DB, error) {
	cfg := config.Load()
	return database.Open(ctx, database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName))
}

var revokeSessionsCmd = &cobra.Command{
	Use:   "revoke-sessions",
	Short: "Revoke every refresh token of a user",
	Long:  "Connect to the database from the DB_* environment and revoke all active refresh tokens of --user.",
	Args:  cobra.NoArgs,
	RunE:  runRevokeSessions,
}

func init() {
	revokeSessionsCmd.Flags().Uint64Var(&revokeUserID, "user", 0, "user id")
	_ = revokeSessionsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(revokeSessionsCmd)
}

func runRevokeSessions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Revoking never signs, so the token service needs no secret.
	tokens := security.NewTokenService("", nil, 0, 0)
	svc := auth.NewService(auth.Deps{
		Refresh: auth.NewRefreshStore(repository.NewTokenRepo(db), tokens, nil, nil),
		Log:     zap.NewNop(),
	})
	n, err := svc.LogoutAll(ctx, revokeUserID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %d session(s) of user %d\n", n, revokeUserID)
	return nil
}
