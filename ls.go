package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cloudhive/hivecore/internal/hive"
	"github.com/cloudhive/hivecore/internal/store"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "Query the metadata index",
		Long: `Query the aggregated metadata index. Without --parent the listing
spans the application root folders of every linked account. All answers
come from the local index; no provider calls are made.`,
		Args: cobra.NoArgs,
		RunE: runLs,
	}

	cmd.Flags().String("parent", "", "list children of this folder id")
	cmd.Flags().Bool("starred", false, "only starred objects")
	cmd.Flags().Bool("trashed", false, "only trashed objects")
	cmd.Flags().String("category", "", "list by category (Images, Videos, Audio, Documents, Text, Archives)")

	return cmd
}

func runLs(cmd *cobra.Command, _ []string) error {
	parent, _ := cmd.Flags().GetString("parent")
	starred, _ := cmd.Flags().GetBool("starred")
	trashed, _ := cmd.Flags().GetBool("trashed")
	category, _ := cmd.Flags().GetString("category")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.service.Query(cmd.Context(), hive.Filter{
		ParentID: parent,
		Starred:  starred,
		Trashed:  trashed,
		Category: store.Category(category),
	})
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(records)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].IsFolder() != records[j].IsFolder() {
			return records[i].IsFolder()
		}

		return records[i].Name < records[j].Name
	})

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	for _, rec := range records {
		kind := "file"
		if rec.IsFolder() {
			kind = "dir"
		}

		size := "-"
		if rec.Size != nil {
			size = formatSize(*rec.Size)
		}

		modified := "-"
		if !rec.ModifiedTime.IsZero() {
			modified = rec.ModifiedTime.Format("2006-01-02 15:04")
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s/%s\t%s\n",
			kind, size, modified, rec.Name, rec.Provider, rec.AccountID, rec.ExternalID)
	}

	return w.Flush()
}
