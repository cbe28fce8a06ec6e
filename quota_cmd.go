package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newQuotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show storage quota for linked accounts",
		Long: `Show cached storage quota snapshots. With --refresh, live figures are
fetched from every provider first; otherwise no provider calls are made.`,
		Args: cobra.NoArgs,
		RunE: runQuota,
	}

	cmd.Flags().Bool("refresh", false, "fetch live quota figures before showing")

	return cmd
}

func runQuota(cmd *cobra.Command, _ []string) error {
	refresh, _ := cmd.Flags().GetBool("refresh")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if refresh {
		if err := a.service.RefreshAllQuotas(cmd.Context()); err != nil {
			// Partial results are still worth showing; the error surfaces
			// after the table.
			defer func() { fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err) }()
		}
	}

	quotas, err := a.service.CachedQuotas(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(quotas)
	}

	if len(quotas) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No quota snapshots. Run with --refresh.")

		return nil
	}

	keys := make([]string, 0, len(quotas))
	for k := range quotas {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tUSED\tTRASH\tLIMIT\tREFRESHED")

	for _, k := range keys {
		snap := quotas[k]

		limit := "unlimited"
		if snap.Limit > 0 {
			limit = formatSize(snap.Limit)
		}

		fmt.Fprintf(w, "%s/%s\t%s\t%s\t%s\t%s\n",
			snap.Provider, snap.AccountID,
			formatSize(snap.Usage), formatSize(snap.UsageTrash), limit,
			snap.RefreshedAt.Format("2006-01-02 15:04"),
		)
	}

	return w.Flush()
}
