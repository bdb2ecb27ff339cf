package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/booking-engine/internal/config"
	"github.com/jwalitptl/booking-engine/internal/model"
	"github.com/jwalitptl/booking-engine/pkg/auth"
)

// newTokenCmd mints a bearer token for an actor. Identity is owned by an
// upstream system; this is for operators and local testing.
func newTokenCmd() *cobra.Command {
	var (
		role string
		id   int64
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := model.ParseRole(role)
			if err != nil {
				return err
			}
			if id <= 0 {
				return fmt.Errorf("--id must be positive")
			}
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			token, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL).
				GenerateAccessToken(model.Actor{Role: r, ID: id})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "ADMIN, PRACTITIONER or REQUESTER")
	cmd.Flags().Int64Var(&id, "id", 0, "actor id")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
