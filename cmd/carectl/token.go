package main

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"carelink/internal/claims"
	"carelink/pkg/domain"
)

func tokenCmd() *cobra.Command {
	var (
		secret   string
		issuer   string
		audience string
		subject  string
		role     string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user id and role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			r, ok := domain.ParseRole(role)
			if !ok {
				return errors.New("role must be PATIENT, NURSE or ADMIN")
			}
			signer, err := claims.NewSigner(claims.Options{
				Secret:   secret,
				Issuer:   issuer,
				Audience: audience,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}
			issued, err := signer.Issue(subject, r)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(issued)
		},
	}
	f := cmd.Flags()
	f.StringVar(&secret, "secret", "", "signing secret (defaults to JWT_SECRET)")
	f.StringVar(&issuer, "issuer", claims.DefaultIssuer, "token issuer")
	f.StringVar(&audience, "audience", claims.DefaultAudience, "token audience")
	f.StringVar(&subject, "sub", "", "user id the token is issued to")
	f.StringVar(&role, "role", string(domain.RolePatient), "PATIENT, NURSE or ADMIN")
	f.DurationVar(&ttl, "ttl", claims.DefaultTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
