package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/cloudhive/hivecore/internal/provider"
	"github.com/cloudhive/hivecore/internal/store"
	"golang.org/x/text/unicode/norm"
)

// ProviderName is the registry key for this adapter.
const ProviderName = "google"

// Default Drive v3 endpoints.
const (
	defaultBaseURL   = "https://www.googleapis.com/drive/v3"
	defaultUploadURL = "https://www.googleapis.com/upload/drive/v3"
)

// fileFields is the field projection requested on every file-returning
// call, matching the columns the index mirrors.
const fileFields = "id,name,mimeType,parents,thumbnailLink,iconLink," +
	"webViewLink,webContentLink,size,starred,trashed,createdTime,modifiedTime"

// listPageSize is the pageSize value for list requests (Drive maximum).
const listPageSize = 1000

// Adapter implements provider.Adapter for Google Drive.
type Adapter struct {
	client       *client
	clientID     string
	clientSecret string
	logger       *slog.Logger
}

// Options configures an Adapter. Zero-value URL fields fall back to the
// public Drive endpoints; tests point them at an httptest server.
type Options struct {
	BaseURL      string
	UploadURL    string
	HTTPClient   *http.Client
	UserAgent    string
	ClientID     string
	ClientSecret string
}

// New builds a Drive adapter.
func New(opts Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}

	if opts.UploadURL == "" {
		opts.UploadURL = defaultUploadURL
	}

	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	return &Adapter{
		client:       newClient(opts.BaseURL, opts.UploadURL, opts.UserAgent, opts.HTTPClient, logger),
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		logger:       logger,
	}
}

// Name returns the registry key for this adapter.
func (a *Adapter) Name() string {
	return ProviderName
}

// escapeQueryValue escapes a string for interpolation into a Drive search
// query literal. Drive query strings use backslash escaping for ' and \.
func escapeQueryValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)

	return strings.ReplaceAll(v, `'`, `\'`)
}

// listFiles runs a files.list search and paginates through all results.
func (a *Adapter) listFiles(ctx context.Context, accessToken, accountID, query string) ([]*store.ObjectRecord, error) {
	var records []*store.ObjectRecord

	pageToken := ""
	page := 1

	for {
		params := url.Values{}
		params.Set("q", query)
		params.Set("fields", fmt.Sprintf("nextPageToken,files(%s)", fileFields))
		params.Set("pageSize", fmt.Sprintf("%d", listPageSize))

		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		resp, err := a.client.do(ctx, http.MethodGet,
			a.client.baseURL+"/files?"+params.Encode(), accessToken, "", nil)
		if err != nil {
			return nil, err
		}

		var flr fileListResponse

		decErr := json.NewDecoder(resp.Body).Decode(&flr)
		resp.Body.Close()

		if decErr != nil {
			return nil, fmt.Errorf("gdrive: decoding file list response: %w", decErr)
		}

		for i := range flr.Files {
			records = append(records, flr.Files[i].toRecord(accountID, a.logger))
		}

		a.logger.Debug("fetched file list page",
			slog.Int("page", page),
			slog.Int("count", len(flr.Files)),
		)

		if flr.NextPageToken == "" {
			return records, nil
		}

		pageToken = flr.NextPageToken
		page++
	}
}

// ListObjects returns metadata for all non-trashed children of folderID.
func (a *Adapter) ListObjects(ctx context.Context, accessToken, accountID, folderID string) ([]*store.ObjectRecord, error) {
	a.logger.Info("listing objects",
		slog.String("account_id", accountID),
		slog.String("folder_id", folderID),
	)

	query := fmt.Sprintf("'%s' in parents and trashed=false", escapeQueryValue(folderID))

	return a.listFiles(ctx, accessToken, accountID, query)
}

// FindFolder searches for a non-trashed folder named name directly under
// parentID. Returns (nil, nil) when no such folder exists.
func (a *Adapter) FindFolder(ctx context.Context, accessToken, accountID, name, parentID string) (*store.ObjectRecord, error) {
	// Match against the NFC form; records are stored NFC-normalized.
	name = norm.NFC.String(name)

	a.logger.Info("searching for folder",
		slog.String("account_id", accountID),
		slog.String("name", name),
		slog.String("parent_id", parentID),
	)

	query := fmt.Sprintf(
		"name='%s' and mimeType='%s' and trashed=false and '%s' in parents",
		escapeQueryValue(name), store.FolderMimeType, escapeQueryValue(parentID),
	)

	records, err := a.listFiles(ctx, accessToken, accountID, query)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, nil //nolint:nilnil // nil record means "no such folder"
	}

	return records[0], nil
}

// createFolderRequest is the metadata body for folder creation.
type createFolderRequest struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType"`
	Parents  []string `json:"parents,omitempty"`
}

// CreateFolder creates a folder under parentID and returns its record.
func (a *Adapter) CreateFolder(ctx context.Context, accessToken, accountID, name, parentID string) (*store.ObjectRecord, error) {
	name = norm.NFC.String(name)

	a.logger.Info("creating folder",
		slog.String("account_id", accountID),
		slog.String("name", name),
		slog.String("parent_id", parentID),
	)

	reqBody := createFolderRequest{
		Name:     name,
		MimeType: store.FolderMimeType,
	}
	if parentID != "" {
		reqBody.Parents = []string{parentID}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("gdrive: marshaling create folder request: %w", err)
	}

	resp, err := a.client.do(ctx, http.MethodPost,
		a.client.baseURL+"/files?fields="+url.QueryEscape(fileFields),
		accessToken, "application/json", bodyBytes)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dfr driveFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&dfr); err != nil {
		return nil, fmt.Errorf("gdrive: decoding create folder response: %w", err)
	}

	return dfr.toRecord(accountID, a.logger), nil
}

// uploadMetadata is the metadata part of a multipart upload.
type uploadMetadata struct {
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

// UploadObject uploads file bytes under parentID using a multipart/related
// request (metadata + media in one round trip) and returns the resulting
// record.
func (a *Adapter) UploadObject(
	ctx context.Context, accessToken, accountID, name, mimeType, parentID string, data []byte,
) (*store.ObjectRecord, error) {
	name = norm.NFC.String(name)

	a.logger.Info("uploading object",
		slog.String("account_id", accountID),
		slog.String("name", name),
		slog.String("parent_id", parentID),
		slog.Int("size", len(data)),
	)

	meta := uploadMetadata{Name: name, MimeType: mimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	body, contentType, err := buildMultipartBody(meta, mimeType, data)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.do(ctx, http.MethodPost,
		a.client.uploadURL+"/files?uploadType=multipart&fields="+url.QueryEscape(fileFields),
		accessToken, contentType, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dfr driveFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&dfr); err != nil {
		return nil, fmt.Errorf("gdrive: decoding upload response: %w", err)
	}

	return dfr.toRecord(accountID, a.logger), nil
}

// buildMultipartBody assembles the multipart/related payload Drive expects
// for uploadType=multipart: a JSON metadata part followed by the media part.
func buildMultipartBody(meta uploadMetadata, mimeType string, data []byte) ([]byte, string, error) {
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, "", fmt.Errorf("gdrive: marshaling upload metadata: %w", err)
	}

	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")

	metaPart, err := w.CreatePart(metaHeader)
	if err != nil {
		return nil, "", fmt.Errorf("gdrive: creating metadata part: %w", err)
	}

	if _, err := metaPart.Write(metaBytes); err != nil {
		return nil, "", fmt.Errorf("gdrive: writing metadata part: %w", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	mediaHeader.Set("Content-Type", mimeType)

	mediaPart, err := w.CreatePart(mediaHeader)
	if err != nil {
		return nil, "", fmt.Errorf("gdrive: creating media part: %w", err)
	}

	if _, err := mediaPart.Write(data); err != nil {
		return nil, "", fmt.Errorf("gdrive: writing media part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("gdrive: closing multipart body: %w", err)
	}

	contentType := "multipart/related; boundary=" + w.Boundary()

	return buf.Bytes(), contentType, nil
}

// existsResponse is the minimal projection used by ObjectExists.
type existsResponse struct {
	ID      string `json:"id"`
	Trashed bool   `json:"trashed"`
}

// ObjectExists performs one lightweight existence check for an id.
// A trashed object counts as gone.
func (a *Adapter) ObjectExists(ctx context.Context, accessToken, objectID string) (bool, error) {
	a.logger.Debug("checking object existence", slog.String("object_id", objectID))

	resp, err := a.client.do(ctx, http.MethodGet,
		a.client.baseURL+"/files/"+url.PathEscape(objectID)+"?fields=id,trashed",
		accessToken, "", nil)
	if err != nil {
		// Absence is an answer here, not a failure.
		if errors.Is(err, provider.ErrNotFound) {
			return false, nil
		}

		return false, err
	}
	defer resp.Body.Close()

	var er existsResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return false, fmt.Errorf("gdrive: decoding existence response: %w", err)
	}

	return !er.Trashed, nil
}

// permissionRequest grants public read access.
type permissionRequest struct {
	Type string `json:"type"`
	Role string `json:"role"`
}

// SetPublicReader grants "anyone with the link" read access on an object
// so generated preview/content links are externally viewable.
func (a *Adapter) SetPublicReader(ctx context.Context, accessToken, objectID string) error {
	a.logger.Info("setting public reader permission", slog.String("object_id", objectID))

	bodyBytes, err := json.Marshal(permissionRequest{Type: "anyone", Role: "reader"})
	if err != nil {
		return fmt.Errorf("gdrive: marshaling permission request: %w", err)
	}

	resp, err := a.client.do(ctx, http.MethodPost,
		a.client.baseURL+"/files/"+url.PathEscape(objectID)+"/permissions",
		accessToken, "application/json", bodyBytes)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return nil
}

// aboutResponse mirrors the storageQuota block of GET /about.
// Drive serializes the byte counts as JSON strings.
type aboutResponse struct {
	StorageQuota struct {
		Limit             string `json:"limit"`
		Usage             string `json:"usage"`
		UsageInDriveTrash string `json:"usageInDriveTrash"`
	} `json:"storageQuota"`
}

// GetQuota fetches the account's current storage quota.
func (a *Adapter) GetQuota(ctx context.Context, accessToken, accountID string) (*store.QuotaSnapshot, error) {
	a.logger.Info("fetching storage quota", slog.String("account_id", accountID))

	resp, err := a.client.do(ctx, http.MethodGet,
		a.client.baseURL+"/about?fields=storageQuota", accessToken, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ar aboutResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("gdrive: decoding quota response: %w", err)
	}

	snap := &store.QuotaSnapshot{
		Provider:   ProviderName,
		AccountID:  accountID,
		Limit:      parseQuotaBytes(ar.StorageQuota.Limit, "limit", a.logger),
		Usage:      parseQuotaBytes(ar.StorageQuota.Usage, "usage", a.logger),
		UsageTrash: parseQuotaBytes(ar.StorageQuota.UsageInDriveTrash, "usageInDriveTrash", a.logger),
	}

	return snap, nil
}

// Compile-time interface check.
var _ provider.Adapter = (*Adapter)(nil)
