package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tradeindia-proxy/internal/config"
	"tradeindia-proxy/internal/handlers"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a client (requires CLIENT_TOKEN_SECRET)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return report(cmd, err)
			}
			v := viper.New()
			config.SetDefaults(v)
			secret := v.GetString("client_token_secret")
			if secret == "" {
				return report(cmd, errors.New("CLIENT_TOKEN_SECRET is not set"))
			}

			token, err := handlers.SignClientToken(secret, subject, ttl, time.Now())
			if err != nil {
				return report(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "client name recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
