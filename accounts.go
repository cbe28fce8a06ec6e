package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List linked accounts",
		Args:  cobra.NoArgs,
		RunE:  runAccounts,
	}
}

func runAccounts(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := a.service.ListAccounts(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(accounts)
	}

	if len(accounts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No linked accounts.")

		return nil
	}

	providers := make([]string, 0, len(accounts))
	for p := range accounts {
		providers = append(providers, p)
	}

	sort.Strings(providers)

	for _, p := range providers {
		for _, accountID := range accounts[p] {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p, accountID)
		}
	}

	return nil
}

func newUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <provider> <account>",
		Short: "Unlink an account and drop its cached root folder and quota",
		Args:  cobra.ExactArgs(2),
		RunE:  runUnlink,
	}
}

func runUnlink(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.Unlink(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Unlinked %s account %s\n", args[0], args[1])

	return nil
}
