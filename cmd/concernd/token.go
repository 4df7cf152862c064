package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dalscooter/concern-service/internal/auth"
	"github.com/dalscooter/concern-service/internal/config"
	"github.com/dalscooter/concern-service/internal/domain"
)

func tokenCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a bearer token for a service or operator",
		Long: `Mint a bearer token signed with AUTH_JWT_SECRET.

Examples:
  concernd token auth-service --role service
  concernd token op1 --role operator`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			var subject domain.SubjectType
			switch domain.Role(role) {
			case domain.RoleService:
				subject = domain.SubjectTypeService
			case domain.RoleOperator:
				subject = domain.SubjectTypeOperator
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			tm := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			token, expires, err := tm.GenerateToken(args[0], subject, domain.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleService), "token role: service or operator")
	return cmd
}
