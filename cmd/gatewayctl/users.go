package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"abroadguide.org/internal/auth"
)

type storeRunner func(fn func(cmd *cobra.Command, store auth.IdentityStore) error) func(*cobra.Command, []string) error

func newUsersCmd(withStore storeRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage gateway identities",
	}
	cmd.AddCommand(
		newCreateCmd(withStore),
		newSetRoleCmd(withStore),
		newSetEnabledCmd(withStore, "enable", true),
		newSetEnabledCmd(withStore, "disable", false),
		newListCmd(withStore),
	)
	return cmd
}

func newCreateCmd(withStore storeRunner) *cobra.Command {
	var (
		email, password, role    string
		affiliation, first, last string
		stdin                    bool
		cost                     int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an identity with any role, ADMIN included",
		RunE: withStore(func(cmd *cobra.Command, store auth.IdentityStore) error {
			if email == "" {
				return errors.New("--email flag is required")
			}
			addr, err := mail.ParseAddress(auth.NormalizeEmail(email))
			if err != nil {
				return fmt.Errorf("invalid email format: %w", err)
			}
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			if stdin {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
				if scanner.Scan() {
					password = scanner.Text()
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
			}
			if strings.TrimSpace(password) == "" {
				return errors.New("password is required (use --password or --stdin)")
			}
			hash, err := auth.HashPasswordCost(password, cost)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			saved, err := store.Save(cmd.Context(), &auth.Identity{
				Email:        addr.Address,
				PasswordHash: hash,
				Role:         r,
				Affiliation:  strings.TrimSpace(affiliation),
				FirstName:    strings.TrimSpace(first),
				LastName:     strings.TrimSpace(last),
				Enabled:      true,
			})
			if errors.Is(err, auth.ErrAlreadyExists) {
				return fmt.Errorf("identity with email %q already exists", addr.Address)
			}
			if err != nil {
				return fmt.Errorf("failed to create identity: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Identity created successfully!")
			fmt.Fprintf(out, "ID: %s\n", saved.ID)
			fmt.Fprintf(out, "Email: %s\n", saved.Email)
			fmt.Fprintf(out, "Role: %s\n", saved.Role)
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVar(&email, "email", "", "Email address (login subject)")
	f.StringVar(&password, "password", "", "Password (use --stdin to avoid shell history)")
	f.BoolVar(&stdin, "stdin", false, "Read password from stdin instead of --password")
	f.StringVar(&role, "role", string(auth.RoleUser), "Role: ADMIN, UNIVERSITY, SPONSOR, STUDENT or USER")
	f.StringVar(&affiliation, "affiliation", "", "Institution identifier for UNIVERSITY and SPONSOR identities")
	f.StringVar(&first, "first-name", "", "First name")
	f.StringVar(&last, "last-name", "", "Last name")
	f.IntVar(&cost, "bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost for the password hash")
	return cmd
}

func newSetRoleCmd(withStore storeRunner) *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change the role of an identity",
		RunE: withStore(func(cmd *cobra.Command, store auth.IdentityStore) error {
			r, err := auth.ParseRole(role)
			if err != nil {
				return err
			}
			return update(cmd.Context(), store, email, func(id *auth.Identity) { id.Role = r }, func(id *auth.Identity) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", id.Email, id.Role)
			})
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address of the identity")
	cmd.Flags().StringVar(&role, "role", "", "New role")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newSetEnabledCmd(withStore storeRunner, use string, enabled bool) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("%s an identity", strings.ToUpper(use[:1])+use[1:]),
		RunE: withStore(func(cmd *cobra.Command, store auth.IdentityStore) error {
			return update(cmd.Context(), store, email, func(id *auth.Identity) { id.Enabled = enabled }, func(id *auth.Identity) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %sd\n", id.Email, use)
			})
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address of the identity")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newListCmd(withStore storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List identities",
		RunE: withStore(func(cmd *cobra.Command, store auth.IdentityStore) error {
			all, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list identities: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EMAIL\tROLE\tAFFILIATION\tENABLED")
			for _, id := range all {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", id.Email, id.Role, id.Affiliation, id.Enabled)
			}
			return tw.Flush()
		}),
	}
}

func update(ctx context.Context, store auth.IdentityStore, email string, mutate, report func(*auth.Identity)) error {
	id, err := store.FindBySubject(ctx, auth.NormalizeEmail(email))
	if errors.Is(err, auth.ErrNotFound) {
		return fmt.Errorf("identity %q not found", email)
	}
	if err != nil {
		return err
	}
	mutate(id)
	saved, err := store.Save(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	report(saved)
	return nil
}
