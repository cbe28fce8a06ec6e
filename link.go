package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudhive/hivecore/internal/store"
)

// credentialFile is the JSON shape produced by an external authorization
// flow (for Google, the installed-app consent flow). The link command
// imports it; the authorization-code exchange itself happens outside.
type credentialFile struct {
	Provider      string    `json:"provider"`
	AccountID     string    `json:"account_id"`
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	TokenEndpoint string    `json:"token_endpoint"`
	Expiry        time.Time `json:"expiry"`
	Scopes        []string  `json:"scopes"`
}

func newLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <credential-file>",
		Short: "Link a cloud account from an authorized credential file",
		Args:  cobra.ExactArgs(1),
		RunE:  runLink,
	}
}

func runLink(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading credential file: %w", err)
	}

	var cred credentialFile
	if err := json.Unmarshal(data, &cred); err != nil {
		return fmt.Errorf("parsing credential file %s: %w", args[0], err)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rec := &store.CredentialRecord{
		Provider:      cred.Provider,
		AccountID:     cred.AccountID,
		AccessToken:   cred.AccessToken,
		RefreshToken:  cred.RefreshToken,
		TokenEndpoint: cred.TokenEndpoint,
		Expiry:        cred.Expiry,
		Scopes:        cred.Scopes,
	}

	if err := a.service.Link(cmd.Context(), rec); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Linked %s account %s\n", rec.Provider, rec.AccountID)

	return nil
}
