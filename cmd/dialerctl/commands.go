package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"power-dialer/internal/auth"
	"power-dialer/internal/config"
	"power-dialer/internal/ingest"
	"power-dialer/internal/rbac"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dialerctl",
		Short:         "Operator tooling for the power dialer",
		SilenceUsage: true,
	}
	root.AddCommand(newNumbersCmd(), newTokenCmd())
	return root
}

func newNumbersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "numbers <file>",
		Short: "Print the normalized numbers a bulk upload of file would dial",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			numbers, err := ingest.Extract(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			for _, n := range numbers {
				fmt.Fprintln(out, n)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d numbers\n", len(numbers))
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		email string
		role  string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token with the server's JWT settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if !rbac.IsKnownRole(role) {
				return fmt.Errorf("--role must be %s or %s, got %q", rbac.RoleAdmin, rbac.RoleAgent, role)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			m, err := auth.NewManager(cfg.Auth)
			if err != nil {
				return err
			}
			tok, err := m.IssueAccess(time.Now(), email, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "operator login carried as the token subject")
	cmd.Flags().StringVar(&role, "role", rbac.RoleAgent, "admin or agent")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to JWT_ACCESS_TTL")
	return cmd
}
