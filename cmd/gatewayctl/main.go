package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"abroadguide.org/internal/auth"
	"abroadguide.org/internal/config"
	"abroadguide.org/internal/store/pg"
)

// storeOpener returns the identity store to operate on and a function that
// releases it.
type storeOpener func(dsn string) (auth.IdentityStore, func() error, error)

func openPostgres(dsn string) (auth.IdentityStore, func() error, error) {
	if dsn == "" {
		return nil, nil, fmt.Errorf("database DSN is required (use --dsn or GATEWAY_PG_DSN)")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return store, store.Close, nil
}

func newRootCmd(open storeOpener) *cobra.Command {
	var dsn string
	root := &cobra.Command{
		Use:           "gatewayctl",
		Short:         "Administer auth gateway identities",
		Long:          `gatewayctl manages identities directly in the gateway database, bypassing the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("GATEWAY_PG_DSN"), "PostgreSQL DSN (env: GATEWAY_PG_DSN)")

	withStore := func(fn func(cmd *cobra.Command, store auth.IdentityStore) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			store, release, err := open(dsn)
			if err != nil {
				return err
			}
			defer release()
			return fn(cmd, store)
		}
	}

	root.AddCommand(newUsersCmd(withStore))
	return root
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd(openPostgres).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
