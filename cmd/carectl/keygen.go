package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"carelink/internal/servicetoken"
)

func keygenCmd() *cobra.Command {
	var (
		dir  string
		name string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RSA key pair for service-to-service tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			privatePath, publicPath, err := servicetoken.WriteKeyPair(dir, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "INTERNAL_JWT_PRIVATE_KEY_PATH=%s\nINTERNAL_JWT_PUBLIC_KEY_PATH=%s\n", privatePath, publicPath)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&dir, "dir", "secrets/internal-jwt", "output directory")
	f.StringVar(&name, "name", "internal", "file name prefix")
	return cmd
}
