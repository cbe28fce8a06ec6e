package gdrive

import (
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/cloudhive/hivecore/internal/store"
)

// Timestamp validation bounds. Timestamps outside this range are replaced
// with the current time and a warning is logged.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// driveFileResponse mirrors the Drive v3 file resource JSON exactly.
// Unexported; callers use store.ObjectRecord via toRecord() normalization.
// Drive serializes int64 fields (size) as JSON strings.
type driveFileResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	MimeType       string   `json:"mimeType"`
	Parents        []string `json:"parents"`
	ThumbnailLink  string   `json:"thumbnailLink"`
	IconLink       string   `json:"iconLink"`
	WebViewLink    string   `json:"webViewLink"`
	WebContentLink string   `json:"webContentLink"`
	Size           string   `json:"size"`
	Starred        bool     `json:"starred"`
	Trashed        bool     `json:"trashed"`
	CreatedTime    string   `json:"createdTime"`
	ModifiedTime   string   `json:"modifiedTime"`
}

// fileListResponse wraps the value array from GET /files.
type fileListResponse struct {
	Files         []driveFileResponse `json:"files"`
	NextPageToken string              `json:"nextPageToken"`
}

// toRecord normalizes a Drive file resource into an ObjectRecord, stamping
// the provider and owning account. Names are NFC-normalized so folder
// matching and index lookups are stable across differently composed
// Unicode forms.
func (d *driveFileResponse) toRecord(accountID string, logger *slog.Logger) *store.ObjectRecord {
	rec := &store.ObjectRecord{
		ExternalID:     d.ID,
		Provider:       ProviderName,
		AccountID:      accountID,
		Name:           norm.NFC.String(d.Name),
		MimeType:       d.MimeType,
		ParentIDs:      d.Parents,
		Starred:        d.Starred,
		Trashed:        d.Trashed,
		ThumbnailLink:  d.ThumbnailLink,
		IconLink:       d.IconLink,
		WebViewLink:    d.WebViewLink,
		WebContentLink: d.WebContentLink,
	}

	if d.Size != "" {
		size, err := strconv.ParseInt(d.Size, 10, 64)
		if err != nil {
			logger.Warn("invalid size field, leaving unset",
				slog.String("item_id", d.ID),
				slog.String("raw", d.Size),
			)
		} else {
			rec.Size = &size
		}
	}

	rec.CreatedTime = parseTimestamp(d.CreatedTime, "createdTime", d.ID, logger)
	rec.ModifiedTime = parseTimestamp(d.ModifiedTime, "modifiedTime", d.ID, logger)

	return rec
}

// parseQuotaBytes parses a Drive string-encoded byte count. Missing or
// malformed values map to 0 (unlimited quotas omit the limit field).
func parseQuotaBytes(raw, field string, logger *slog.Logger) int64 {
	if raw == "" {
		return 0
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		logger.Warn("invalid quota field, using zero",
			slog.String("field", field),
			slog.String("raw", raw),
		)

		return 0
	}

	return n
}

// parseTimestamp parses an RFC3339 timestamp and validates the year range.
// Invalid or out-of-range timestamps are replaced with time.Now().UTC() and logged.
func parseTimestamp(raw, field, itemID string, logger *slog.Logger) time.Time {
	if raw == "" {
		logger.Warn("empty timestamp, using current time",
			slog.String("field", field),
			slog.String("item_id", itemID),
		)

		return time.Now().UTC()
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, using current time",
			slog.String("field", field),
			slog.String("item_id", itemID),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Now().UTC()
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range, using current time",
			slog.String("field", field),
			slog.String("item_id", itemID),
			slog.String("raw", raw),
		)

		return time.Now().UTC()
	}

	return t
}
