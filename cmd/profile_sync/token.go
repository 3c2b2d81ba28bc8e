package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/profile-sync/internal/config"
	"github.com/jonathan/profile-sync/internal/credentials"
	"github.com/jonathan/profile-sync/internal/server"
)

var tokenUser string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development bearer token",
	Long:  "Issue a JWT for --user signed with JWT_SECRET. The user ID doubles as the browser session key.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID := uuid.New()
		if tokenUser != "" {
			parsed, err := uuid.Parse(tokenUser)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			userID = parsed
		}

		jwtConfig, err := config.NewJWTConfig()
		if err != nil {
			return err
		}
		token, err := server.NewJWTService(jwtConfig).GenerateToken(userID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "user: %s\n", userID)
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ENCRYPTION_KEY for stored credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := credentials.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User ID (default: a new random UUID)")
	rootCmd.AddCommand(tokenCmd, keygenCmd)
}
