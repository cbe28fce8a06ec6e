package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// Embed migration SQL files for schema versioning.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// walJournalSizeLimit caps the WAL journal at 64 MiB.
const walJournalSizeLimit = 67108864

// SQLiteStore persists credentials, mirrored object metadata, root folder
// references, and quota snapshots in a single embedded SQLite database
// with WAL mode. All writes are atomic per natural key.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// Prepared statements for repeated queries, grouped by domain.
	credStmts   credStatements
	objectStmts objectStatements
	rootStmts   rootStatements
	quotaStmts  quotaStatements
}

// Statement groups keep the struct readable instead of a flat list.
type credStatements struct {
	get, upsert, delete, listAccounts *sql.Stmt
}

type objectStatements struct {
	get, exists, upsert, byParent, starred, trashed *sql.Stmt
}

type rootStatements struct {
	get, set, delete, listIDs *sql.Stmt
}

type quotaStatements struct {
	put, list, delete *sql.Stmt
}

// Open creates a SQLiteStore at dbPath, applying migrations and preparing
// all repeated statements. Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	logger.Info("opening hivecore database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.prepareAllStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	logger.Info("hivecore database ready", "path", dbPath)

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

// runMigrations applies all pending schema migrations to the database.
// Uses the goose v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	// Strip the "migrations/" prefix so goose sees files at the root of the FS.
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("store: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// --- SQL query constants ---

// Credential queries.
const (
	sqlCredColumns = `provider, account_id, access_token, refresh_token,
		token_endpoint, expiry, scopes`

	sqlGetCred = `SELECT ` + sqlCredColumns +
		` FROM credentials WHERE provider = ? AND account_id = ?`

	sqlUpsertCred = `INSERT INTO credentials (` + sqlCredColumns + `, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, account_id) DO UPDATE SET
			access_token   = excluded.access_token,
			refresh_token  = excluded.refresh_token,
			token_endpoint = excluded.token_endpoint,
			expiry         = excluded.expiry,
			scopes         = excluded.scopes,
			updated_at     = excluded.updated_at`

	sqlDeleteCred = `DELETE FROM credentials WHERE provider = ? AND account_id = ?`

	sqlListAccounts = `SELECT provider, account_id FROM credentials
		ORDER BY provider, account_id`
)

// Object queries.
const (
	sqlObjectColumns = `external_id, provider, account_id, name, mime_type,
		parent_ids, primary_parent, starred, trashed, size,
		thumbnail_link, icon_link, web_view_link, web_content_link,
		created_time, modified_time`

	sqlGetObject = `SELECT ` + sqlObjectColumns +
		` FROM objects WHERE external_id = ? AND provider = ? AND account_id = ?`

	sqlObjectExists = `SELECT 1 FROM objects
		WHERE external_id = ? AND provider = ? AND account_id = ?`

	sqlUpsertObject = `INSERT INTO objects (` + sqlObjectColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id, provider, account_id) DO UPDATE SET
			name             = excluded.name,
			mime_type        = excluded.mime_type,
			parent_ids       = excluded.parent_ids,
			primary_parent   = excluded.primary_parent,
			starred          = excluded.starred,
			trashed          = excluded.trashed,
			size             = excluded.size,
			thumbnail_link   = excluded.thumbnail_link,
			icon_link        = excluded.icon_link,
			web_view_link    = excluded.web_view_link,
			web_content_link = excluded.web_content_link,
			created_time     = excluded.created_time,
			modified_time    = excluded.modified_time,
			updated_at       = excluded.updated_at`

	sqlObjectsByParent = `SELECT ` + sqlObjectColumns +
		` FROM objects WHERE primary_parent = ?`

	sqlFindByExternalID = `SELECT ` + sqlObjectColumns +
		` FROM objects WHERE external_id = ? LIMIT 1`

	sqlObjectsStarred = `SELECT ` + sqlObjectColumns +
		` FROM objects WHERE starred = 1 AND primary_parent = ? AND trashed = 0`

	sqlObjectsTrashed = `SELECT ` + sqlObjectColumns +
		` FROM objects WHERE trashed = 1 AND primary_parent = ?`
)

// Root folder queries.
const (
	sqlGetRoot = `SELECT folder_id FROM root_folders
		WHERE provider = ? AND account_id = ?`

	sqlSetRoot = `INSERT INTO root_folders (provider, account_id, folder_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider, account_id) DO UPDATE
		SET folder_id = excluded.folder_id, updated_at = excluded.updated_at`

	sqlDeleteRoot = `DELETE FROM root_folders WHERE provider = ? AND account_id = ?`

	sqlListRootIDs = `SELECT folder_id FROM root_folders ORDER BY provider, account_id`
)

// Quota snapshot queries.
const (
	sqlPutQuota = `INSERT INTO quota_snapshots
		(provider, account_id, limit_bytes, usage_bytes, usage_trash_bytes, refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, account_id) DO UPDATE SET
			limit_bytes       = excluded.limit_bytes,
			usage_bytes       = excluded.usage_bytes,
			usage_trash_bytes = excluded.usage_trash_bytes,
			refreshed_at      = excluded.refreshed_at`

	sqlListQuotas = `SELECT provider, account_id, limit_bytes, usage_bytes,
		usage_trash_bytes, refreshed_at
		FROM quota_snapshots ORDER BY provider, account_id`

	sqlDeleteQuota = `DELETE FROM quota_snapshots WHERE provider = ? AND account_id = ?`
)

// stmtDef maps a SQL string to the prepared statement pointer it should populate.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

// prepareAll prepares a batch of statements, returning on first error.
func prepareAll(ctx context.Context, db *sql.DB, defs []stmtDef) error {
	for i := range defs {
		stmt, err := db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

// prepareAllStatements creates all prepared statements grouped by domain.
func (s *SQLiteStore) prepareAllStatements(ctx context.Context) error {
	if err := prepareAll(ctx, s.db, []stmtDef{
		{&s.credStmts.get, sqlGetCred, "getCredential"},
		{&s.credStmts.upsert, sqlUpsertCred, "upsertCredential"},
		{&s.credStmts.delete, sqlDeleteCred, "deleteCredential"},
		{&s.credStmts.listAccounts, sqlListAccounts, "listAccounts"},
	}); err != nil {
		return err
	}

	if err := prepareAll(ctx, s.db, []stmtDef{
		{&s.objectStmts.get, sqlGetObject, "getObject"},
		{&s.objectStmts.exists, sqlObjectExists, "objectExists"},
		{&s.objectStmts.upsert, sqlUpsertObject, "upsertObject"},
		{&s.objectStmts.byParent, sqlObjectsByParent, "objectsByParent"},
		{&s.objectStmts.starred, sqlObjectsStarred, "objectsStarred"},
		{&s.objectStmts.trashed, sqlObjectsTrashed, "objectsTrashed"},
	}); err != nil {
		return err
	}

	if err := prepareAll(ctx, s.db, []stmtDef{
		{&s.rootStmts.get, sqlGetRoot, "getRootFolder"},
		{&s.rootStmts.set, sqlSetRoot, "setRootFolder"},
		{&s.rootStmts.delete, sqlDeleteRoot, "deleteRootFolder"},
		{&s.rootStmts.listIDs, sqlListRootIDs, "listRootFolderIDs"},
	}); err != nil {
		return err
	}

	return prepareAll(ctx, s.db, []stmtDef{
		{&s.quotaStmts.put, sqlPutQuota, "putQuota"},
		{&s.quotaStmts.list, sqlListQuotas, "listQuotas"},
		{&s.quotaStmts.delete, sqlDeleteQuota, "deleteQuota"},
	})
}

// --- Time and JSON encoding helpers ---

// timeToNano converts a time to Unix nanoseconds; zero times map to 0.
func timeToNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

// nanoToTime is the inverse of timeToNano; 0 maps back to the zero time.
func nanoToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n).UTC()
}

// encodeStrings JSON-encodes a string slice for a TEXT column. A nil
// slice encodes as "[]" so the column never stores SQL NULL.
func encodeStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode string list: %w", err)
	}

	return string(data), nil
}

// decodeStrings is the inverse of encodeStrings. An empty list decodes
// to nil so records round-trip to their canonical in-memory form.
func decodeStrings(raw string) ([]string, error) {
	var v []string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}

	if len(v) == 0 {
		return nil, nil
	}

	return v, nil
}

// --- Credential methods ---

// GetCredential retrieves one credential record.
// Returns (nil, nil) if no record exists; the orchestrator turns the nil
// record into its ErrNotFound.
func (s *SQLiteStore) GetCredential(ctx context.Context, provider, accountID string) (*CredentialRecord, error) {
	s.logger.Debug("getting credential", "provider", provider, "account_id", accountID)

	rec := &CredentialRecord{}

	var expiry int64

	var scopes string

	err := s.credStmts.get.QueryRowContext(ctx, provider, accountID).Scan(
		&rec.Provider, &rec.AccountID, &rec.AccessToken, &rec.RefreshToken,
		&rec.TokenEndpoint, &expiry, &scopes,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil record means "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("get credential %s/%s: %w", provider, accountID, err)
	}

	rec.Expiry = nanoToTime(expiry)

	if rec.Scopes, err = decodeStrings(scopes); err != nil {
		return nil, fmt.Errorf("get credential %s/%s: %w", provider, accountID, err)
	}

	return rec, nil
}

// PutCredential inserts or replaces a credential record. The upsert is a
// single statement, so concurrent readers never observe a half-written
// record.
func (s *SQLiteStore) PutCredential(ctx context.Context, rec *CredentialRecord) error {
	s.logger.Debug("putting credential", "provider", rec.Provider, "account_id", rec.AccountID)

	scopes, err := encodeStrings(rec.Scopes)
	if err != nil {
		return fmt.Errorf("put credential %s/%s: %w", rec.Provider, rec.AccountID, err)
	}

	now := time.Now().UnixNano()

	_, err = s.credStmts.upsert.ExecContext(ctx,
		rec.Provider, rec.AccountID, rec.AccessToken, rec.RefreshToken,
		rec.TokenEndpoint, timeToNano(rec.Expiry), scopes, now, now,
	)
	if err != nil {
		return fmt.Errorf("put credential %s/%s: %w", rec.Provider, rec.AccountID, err)
	}

	return nil
}

// DeleteCredential removes a credential record. Deleting a missing record
// is not an error.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, provider, accountID string) error {
	s.logger.Info("deleting credential", "provider", provider, "account_id", accountID)

	if _, err := s.credStmts.delete.ExecContext(ctx, provider, accountID); err != nil {
		return fmt.Errorf("delete credential %s/%s: %w", provider, accountID, err)
	}

	return nil
}

// ListAccounts returns all linked accounts grouped by provider.
func (s *SQLiteStore) ListAccounts(ctx context.Context) (map[string][]string, error) {
	s.logger.Debug("listing linked accounts")

	rows, err := s.credStmts.listAccounts.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make(map[string][]string)

	for rows.Next() {
		var provider, accountID string
		if err := rows.Scan(&provider, &accountID); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}

		accounts[provider] = append(accounts[provider], accountID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}

	return accounts, nil
}

// --- Object methods ---

// scanObject scans a full object row into an ObjectRecord.
// Shared by all object-returning queries to avoid duplicated column scanning.
func scanObject(row interface{ Scan(...any) error }) (*ObjectRecord, error) {
	rec := &ObjectRecord{}

	var parentIDs, primaryParent string

	var starred, trashed int

	var createdTime, modifiedTime int64

	err := row.Scan(
		&rec.ExternalID, &rec.Provider, &rec.AccountID, &rec.Name, &rec.MimeType,
		&parentIDs, &primaryParent, &starred, &trashed, &rec.Size,
		&rec.ThumbnailLink, &rec.IconLink, &rec.WebViewLink, &rec.WebContentLink,
		&createdTime, &modifiedTime,
	)
	if err != nil {
		return nil, err
	}

	rec.Starred = starred == 1
	rec.Trashed = trashed == 1
	rec.CreatedTime = nanoToTime(createdTime)
	rec.ModifiedTime = nanoToTime(modifiedTime)

	if rec.ParentIDs, err = decodeStrings(parentIDs); err != nil {
		return nil, err
	}

	return rec, nil
}

// scanObjectRows iterates over sql.Rows and collects ObjectRecords.
func scanObjectRows(rows *sql.Rows) ([]*ObjectRecord, error) {
	var records []*ObjectRecord

	for rows.Next() {
		rec, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan object row: %w", err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate object rows: %w", err)
	}

	return records, nil
}

// GetObject retrieves one object record by its natural key.
// Returns (nil, nil) if no record exists.
func (s *SQLiteStore) GetObject(ctx context.Context, externalID, provider, accountID string) (*ObjectRecord, error) {
	s.logger.Debug("getting object",
		"external_id", externalID, "provider", provider, "account_id", accountID)

	rec, err := scanObject(s.objectStmts.get.QueryRowContext(ctx, externalID, provider, accountID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil record means "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("get object %s/%s/%s: %w", provider, accountID, externalID, err)
	}

	return rec, nil
}

// UpsertObject inserts or fully overwrites an object record by its natural
// key (external_id, provider, account_id). Reports whether a new record
// was created. The existence check and the write share one transaction so
// the created flag cannot race a concurrent writer.
func (s *SQLiteStore) UpsertObject(ctx context.Context, rec *ObjectRecord) (bool, error) {
	s.logger.Debug("upserting object",
		"external_id", rec.ExternalID, "provider", rec.Provider,
		"account_id", rec.AccountID, "name", rec.Name)

	parentIDs, err := encodeStrings(rec.ParentIDs)
	if err != nil {
		return false, fmt.Errorf("upsert object %s: %w", rec.ExternalID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert tx: %w", err)
	}

	var one int

	existsErr := tx.StmtContext(ctx, s.objectStmts.exists).
		QueryRowContext(ctx, rec.ExternalID, rec.Provider, rec.AccountID).Scan(&one)

	created := errors.Is(existsErr, sql.ErrNoRows)
	if existsErr != nil && !created {
		rollbackErr := tx.Rollback()
		return false, fmt.Errorf("check object %s: %w (rollback: %v)",
			rec.ExternalID, existsErr, rollbackErr)
	}

	_, err = tx.StmtContext(ctx, s.objectStmts.upsert).ExecContext(ctx,
		rec.ExternalID, rec.Provider, rec.AccountID, rec.Name, rec.MimeType,
		parentIDs, rec.PrimaryParent(), boolToInt(rec.Starred), boolToInt(rec.Trashed),
		rec.Size, rec.ThumbnailLink, rec.IconLink, rec.WebViewLink, rec.WebContentLink,
		timeToNano(rec.CreatedTime), timeToNano(rec.ModifiedTime), time.Now().UnixNano(),
	)
	if err != nil {
		rollbackErr := tx.Rollback()
		return false, fmt.Errorf("upsert object %s/%s/%s: %w (rollback: %v)",
			rec.Provider, rec.AccountID, rec.ExternalID, err, rollbackErr)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert: %w", err)
	}

	return created, nil
}

// FindObjectByExternalID looks an object up by its provider-assigned id
// alone, without knowing the owning account. External ids are unique
// within a provider and collisions across providers are not expected in
// practice; the first match wins. Returns (nil, nil) if no record exists.
func (s *SQLiteStore) FindObjectByExternalID(ctx context.Context, externalID string) (*ObjectRecord, error) {
	s.logger.Debug("resolving object owner", "external_id", externalID)

	rec, err := scanObject(s.db.QueryRowContext(ctx, sqlFindByExternalID, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // nil record means "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("find object %s: %w", externalID, err)
	}

	return rec, nil
}

// ObjectsByParent returns all records whose primary parent is parentID.
func (s *SQLiteStore) ObjectsByParent(ctx context.Context, parentID string) ([]*ObjectRecord, error) {
	s.logger.Debug("querying objects by parent", "parent_id", parentID)

	rows, err := s.objectStmts.byParent.QueryContext(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("objects by parent %s: %w", parentID, err)
	}
	defer rows.Close()

	return scanObjectRows(rows)
}

// ObjectsByParents returns all records whose primary parent is any of the
// given ids. Used to synthesize the virtual "all linked roots" view.
func (s *SQLiteStore) ObjectsByParents(ctx context.Context, parentIDs []string) ([]*ObjectRecord, error) {
	s.logger.Debug("querying objects by parent set", "parents", len(parentIDs))

	if len(parentIDs) == 0 {
		return nil, nil
	}

	// IN clause length depends on the input, so this query is not prepared.
	query := `SELECT ` + sqlObjectColumns +
		` FROM objects WHERE primary_parent IN (?` +
		strings.Repeat(", ?", len(parentIDs)-1) + `)`

	args := make([]any, len(parentIDs))
	for i, id := range parentIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("objects by parent set: %w", err)
	}
	defer rows.Close()

	return scanObjectRows(rows)
}

// StarredObjects returns non-trashed starred records under parentID.
func (s *SQLiteStore) StarredObjects(ctx context.Context, parentID string) ([]*ObjectRecord, error) {
	s.logger.Debug("querying starred objects", "parent_id", parentID)

	rows, err := s.objectStmts.starred.QueryContext(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("starred objects %s: %w", parentID, err)
	}
	defer rows.Close()

	return scanObjectRows(rows)
}

// TrashedObjects returns trashed records under parentID.
func (s *SQLiteStore) TrashedObjects(ctx context.Context, parentID string) ([]*ObjectRecord, error) {
	s.logger.Debug("querying trashed objects", "parent_id", parentID)

	rows, err := s.objectStmts.trashed.QueryContext(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("trashed objects %s: %w", parentID, err)
	}
	defer rows.Close()

	return scanObjectRows(rows)
}

// ObjectsByMimeTypes returns non-trashed records whose MIME type is in the
// given set. Used by the category filter.
func (s *SQLiteStore) ObjectsByMimeTypes(ctx context.Context, mimeTypes []string) ([]*ObjectRecord, error) {
	s.logger.Debug("querying objects by mime types", "types", len(mimeTypes))

	if len(mimeTypes) == 0 {
		return nil, nil
	}

	query := `SELECT ` + sqlObjectColumns +
		` FROM objects WHERE trashed = 0 AND mime_type IN (?` +
		strings.Repeat(", ?", len(mimeTypes)-1) + `)`

	args := make([]any, len(mimeTypes))
	for i, m := range mimeTypes {
		args[i] = m
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("objects by mime types: %w", err)
	}
	defer rows.Close()

	return scanObjectRows(rows)
}

// --- Root folder methods ---

// GetRootFolder returns the cached root folder id for an account, or ""
// if none has been resolved yet.
func (s *SQLiteStore) GetRootFolder(ctx context.Context, provider, accountID string) (string, error) {
	s.logger.Debug("getting root folder", "provider", provider, "account_id", accountID)

	var folderID string

	err := s.rootStmts.get.QueryRowContext(ctx, provider, accountID).Scan(&folderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("get root folder %s/%s: %w", provider, accountID, err)
	}

	return folderID, nil
}

// SetRootFolder stores the root folder id for an account, overwriting any
// stale prior value.
func (s *SQLiteStore) SetRootFolder(ctx context.Context, provider, accountID, folderID string) error {
	s.logger.Info("setting root folder",
		"provider", provider, "account_id", accountID, "folder_id", folderID)

	_, err := s.rootStmts.set.ExecContext(ctx, provider, accountID, folderID, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("set root folder %s/%s: %w", provider, accountID, err)
	}

	return nil
}

// DeleteRootFolder removes the cached root folder ref for an account.
func (s *SQLiteStore) DeleteRootFolder(ctx context.Context, provider, accountID string) error {
	s.logger.Debug("deleting root folder ref", "provider", provider, "account_id", accountID)

	if _, err := s.rootStmts.delete.ExecContext(ctx, provider, accountID); err != nil {
		return fmt.Errorf("delete root folder %s/%s: %w", provider, accountID, err)
	}

	return nil
}

// ListRootFolderIDs returns every resolved root folder id across all
// linked accounts.
func (s *SQLiteStore) ListRootFolderIDs(ctx context.Context) ([]string, error) {
	s.logger.Debug("listing root folder ids")

	rows, err := s.rootStmts.listIDs.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list root folder ids: %w", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan root folder row: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate root folder rows: %w", err)
	}

	return ids, nil
}

// --- Quota snapshot methods ---

// PutQuota stores a quota snapshot, replacing any prior one for the account.
func (s *SQLiteStore) PutQuota(ctx context.Context, snap *QuotaSnapshot) error {
	s.logger.Debug("putting quota snapshot",
		"provider", snap.Provider, "account_id", snap.AccountID)

	_, err := s.quotaStmts.put.ExecContext(ctx,
		snap.Provider, snap.AccountID, snap.Limit, snap.Usage, snap.UsageTrash,
		timeToNano(snap.RefreshedAt),
	)
	if err != nil {
		return fmt.Errorf("put quota %s/%s: %w", snap.Provider, snap.AccountID, err)
	}

	return nil
}

// ListQuotas returns all cached quota snapshots keyed by provider_account.
func (s *SQLiteStore) ListQuotas(ctx context.Context) (map[string]*QuotaSnapshot, error) {
	s.logger.Debug("listing quota snapshots")

	rows, err := s.quotaStmts.list.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quotas: %w", err)
	}
	defer rows.Close()

	quotas := make(map[string]*QuotaSnapshot)

	for rows.Next() {
		snap := &QuotaSnapshot{}

		var refreshedAt int64

		err := rows.Scan(&snap.Provider, &snap.AccountID, &snap.Limit,
			&snap.Usage, &snap.UsageTrash, &refreshedAt)
		if err != nil {
			return nil, fmt.Errorf("scan quota row: %w", err)
		}

		snap.RefreshedAt = nanoToTime(refreshedAt)
		quotas[snap.Key()] = snap
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quota rows: %w", err)
	}

	return quotas, nil
}

// DeleteQuota removes the cached snapshot for an account.
func (s *SQLiteStore) DeleteQuota(ctx context.Context, provider, accountID string) error {
	s.logger.Debug("deleting quota snapshot", "provider", provider, "account_id", accountID)

	if _, err := s.quotaStmts.delete.ExecContext(ctx, provider, accountID); err != nil {
		return fmt.Errorf("delete quota %s/%s: %w", provider, accountID, err)
	}

	return nil
}

// --- Maintenance ---

// Close closes all prepared statements and the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing hivecore database")

	if err := s.closeStatements(); err != nil {
		s.logger.Error("error closing statements", "error", err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	return nil
}

// closeStatements closes all prepared statements, collecting errors.
func (s *SQLiteStore) closeStatements() error {
	stmts := []*sql.Stmt{
		s.credStmts.get, s.credStmts.upsert, s.credStmts.delete, s.credStmts.listAccounts,
		s.objectStmts.get, s.objectStmts.exists, s.objectStmts.upsert,
		s.objectStmts.byParent, s.objectStmts.starred, s.objectStmts.trashed,
		s.rootStmts.get, s.rootStmts.set, s.rootStmts.delete, s.rootStmts.listIDs,
		s.quotaStmts.put, s.quotaStmts.list, s.quotaStmts.delete,
	}

	var errs []string

	for _, stmt := range stmts {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close statements: %s", strings.Join(errs, "; "))
	}

	return nil
}

// boolToInt converts a bool to a SQLite 0/1 integer.
func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
