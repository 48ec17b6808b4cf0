package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "pims/internal/jwt_token"
	"pims/internal/platform/config"
	"pims/pkg/domain"
)

func newTokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		Long: `Signs an access token with JWT_SIGNING_KEY for the given user and role.
Production tokens come from the identity provider; use this only against
development deployments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseUserID(userID)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			r, err := domain.ParseRole(role)
			if err != nil {
				return fmt.Errorf("--role: %w", err)
			}
			cfg := config.FromEnv()
			svc := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
			token, err := svc.GenerateAccessToken(domain.Actor{ID: id, Role: r}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID (UUID) to embed as the subject")
	cmd.Flags().StringVar(&role, "role", "staff", "Role: staff, hod, registry or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
