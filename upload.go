package main

import (
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cloudhive/hivecore/internal/hive"
	"github.com/cloudhive/hivecore/internal/ingest"
)

// fallbackMimeType is used when the extension gives no answer.
const fallbackMimeType = "application/octet-stream"

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload files or folder trees into a linked account",
		Long: `Upload local files or directories. Directories are walked and their
relative structure is recreated remotely, reusing folders that already
exist. The target account is given with --provider/--account, or resolved
from --parent when only the destination folder id is known. Without
--parent, uploads land in the account's application root folder.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runUpload,
	}

	cmd.Flags().String("provider", "", "target provider name")
	cmd.Flags().String("account", "", "target account id")
	cmd.Flags().String("parent", "", "target folder id")

	return cmd
}

func runUpload(cmd *cobra.Command, args []string) error {
	providerName, _ := cmd.Flags().GetString("provider")
	accountID, _ := cmd.Flags().GetString("account")
	parentID, _ := cmd.Flags().GetString("parent")

	entries, err := collectEntries(args)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return fmt.Errorf("nothing to upload under %v", args)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.service.Ingest(cmd.Context(), hive.IngestRequest{
		Provider:  providerName,
		AccountID: accountID,
		ParentID:  parentID,
		Entries:   entries,
	})
	if err != nil {
		return err
	}

	for _, entry := range result.Entries {
		if entry.Err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "FAILED  %s: %v\n", entry.Path, entry.Err)

			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "ok      %s -> %s\n", entry.Path, entry.Record.ExternalID)
	}

	if failed := result.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d entries failed (batch %s)", failed, len(result.Entries), result.BatchID)
	}

	return nil
}

// collectEntries expands the given paths into upload entries. Files map
// to their base name; directories are walked and contribute their
// relative paths.
func collectEntries(paths []string) ([]ingest.Entry, error) {
	var entries []ingest.Entry

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		if !info.IsDir() {
			entry, err := readEntry(path, filepath.Base(path))
			if err != nil {
				return nil, err
			}

			entries = append(entries, entry)

			continue
		}

		base := filepath.Base(filepath.Clean(path))

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}

			if d.IsDir() {
				return nil
			}

			rel, relErr := filepath.Rel(path, p)
			if relErr != nil {
				return relErr
			}

			entry, readErr := readEntry(p, filepath.ToSlash(filepath.Join(base, rel)))
			if readErr != nil {
				return readErr
			}

			entries = append(entries, entry)

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", path, err)
		}
	}

	return entries, nil
}

// readEntry loads one file's bytes and guesses its MIME type from the
// extension.
func readEntry(localPath, remotePath string) (ingest.Entry, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return ingest.Entry{}, fmt.Errorf("reading %s: %w", localPath, err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(localPath))
	if mimeType == "" {
		mimeType = fallbackMimeType
	}

	return ingest.Entry{Path: remotePath, MimeType: mimeType, Data: data}, nil
}
