// Package drive reads Google Docs as plain text through the Drive v3 API.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	drivev3 "google.golang.org/api/drive/v3"

	"github.com/Napageneral/onboard/internal/logutil"
)

var (
	// ErrNotFound means the file does not exist or is not visible to the credentials.
	ErrNotFound = errors.New("drive: file not found")
	// ErrTooLarge means the content exceeds the download cap and was not read in full.
	ErrTooLarge = errors.New("drive: content too large")
)

const (
	metadataFields = "id, name, modifiedTime, mimeType, webViewLink"
	exportMimeType = "text/plain"
	// maxContentBytes caps a single document download.
	maxContentBytes = 20 * 1024 * 1024
)

// Metadata is the subset of Drive file metadata the poller needs.
type Metadata struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modified_time"`
	MimeType     string `json:"mime_type"`
	ViewLink     string `json:"view_link,omitempty"`
}

// Source fetches metadata and text content of Drive files.
type Source struct {
	svc      *drivev3.Service
	logger   *slog.Logger
	maxBytes int64
}

// NewSource builds a Source. Pass option.WithTokenSource for OAuth credentials,
// or option.WithHTTPClient / option.WithEndpoint to point at a test server.
func NewSource(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*Source, error) {
	svc, err := drivev3.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive: create service: %w", err)
	}
	return &Source{svc: svc, logger: logutil.OrDefault(logger), maxBytes: maxContentBytes}, nil
}

// Metadata returns file metadata, or ErrNotFound.
func (s *Source) Metadata(ctx context.Context, fileID string) (*Metadata, error) {
	f, err := s.svc.Files.Get(fileID).
		Fields(metadataFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapAPIError("get metadata", fileID, err)
	}
	return &Metadata{
		ID:           f.Id,
		Name:         f.Name,
		ModifiedTime: f.ModifiedTime,
		MimeType:     f.MimeType,
		ViewLink:     f.WebViewLink,
	}, nil
}

// Content exports a Google Doc as plain text. Files that cannot be exported
// (uploaded text files) are downloaded directly instead.
func (s *Source) Content(ctx context.Context, fileID string) (string, error) {
	resp, err := s.svc.Files.Export(fileID, exportMimeType).Context(ctx).Download()
	if err != nil && isNotExportable(err) {
		s.logger.Debug("export not supported, downloading media", "file_id", fileID)
		resp, err = s.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	}
	if err != nil {
		return "", wrapAPIError("get content", fileID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("drive: read content %s: %w", fileID, err)
	}
	if int64(len(raw)) > s.maxBytes {
		return "", fmt.Errorf("drive: read content %s: %w (limit %d bytes)", fileID, ErrTooLarge, s.maxBytes)
	}
	return string(raw), nil
}

func isNotExportable(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code != http.StatusForbidden && gerr.Code != http.StatusBadRequest {
		return false
	}
	for _, item := range gerr.Errors {
		if item.Reason == "fileNotExportable" {
			return true
		}
	}
	return false
}

func wrapAPIError(op, fileID string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	return fmt.Errorf("drive: %s %s: %w", op, fileID, err)
}
