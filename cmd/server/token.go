package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-notes/internal/api/middleware"
	"github.com/phrazzld/scry-notes/internal/config"
	"github.com/spf13/cobra"
)

// newTokenCmd issues bearer tokens signed with the configured secret. The
// server has no account management; owners are whatever subject a trusted
// issuer puts in the token.
func newTokenCmd() *cobra.Command {
	var (
		owner string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an owner id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			ownerID := uuid.New()
			if owner != "" {
				if ownerID, err = uuid.Parse(owner); err != nil {
					return fmt.Errorf("invalid owner id: %w", err)
				}
			}
			if ttl <= 0 {
				return errors.New("ttl must be positive")
			}

			token, err := middleware.IssueToken(cfg.Auth.JWTSecret, ownerID, time.Now(), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "owner: %s\ntoken: %s\n", ownerID, token)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner id (default: a new random id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
