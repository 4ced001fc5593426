package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Update when no record exists for the file id.
var ErrNotFound = errors.New("documents: not found")

// Store persists WatchedDocument records and the submission audit log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a Store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Lookup returns the record for fileID, or nil when none exists.
func (s *Store) Lookup(ctx context.Context, fileID string) (*WatchedDocument, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("documents: db is nil")
	}
	var doc WatchedDocument
	row := s.db.QueryRowContext(ctx, `
		SELECT file_id, client_id, file_name, content_hash, last_modified, content, created_at, updated_at
		FROM drive_documents
		WHERE file_id = ?
	`, fileID)
	err := row.Scan(&doc.FileID, &doc.ClientID, &doc.FileName, &doc.ContentHash,
		&doc.LastModified, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("documents: query %s: %w", fileID, err)
	}
	return &doc, nil
}

// Insert creates a record. The content hash is recomputed from Content unless
// the record is a bare registration (empty hash and empty content).
func (s *Store) Insert(ctx context.Context, doc WatchedDocument) error {
	if doc.FileID == "" {
		return errors.New("documents: file id is required")
	}
	if doc.ClientID == "" {
		return errors.New("documents: client id is required")
	}
	if doc.ContentHash != "" || doc.Content != "" {
		doc.ContentHash = HashContent(doc.Content)
	}
	now := s.now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drive_documents (
			file_id, client_id, file_name, content_hash, last_modified, content, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.FileID, doc.ClientID, doc.FileName, doc.ContentHash, doc.LastModified, doc.Content, now, now)
	if err != nil {
		return fmt.Errorf("documents: insert %s: %w", doc.FileID, err)
	}
	return nil
}

// Update replaces the content, hash and modification stamp of an existing record.
func (s *Store) Update(ctx context.Context, fileID, content, lastModified string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE drive_documents
		SET content_hash = ?, content = ?, last_modified = ?, updated_at = ?
		WHERE file_id = ?
	`, HashContent(content), content, lastModified, s.now().Unix(), fileID)
	if err != nil {
		return fmt.Errorf("documents: update %s: %w", fileID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("documents: update %s: %w", fileID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	return nil
}

// Register stores a never-ingested record for fileID unless one already exists.
func (s *Store) Register(ctx context.Context, fileID, clientID, fileName, lastModified string) (RegisterResult, error) {
	existing, err := s.Lookup(ctx, fileID)
	if err != nil {
		return RegisterResult{}, err
	}
	if existing != nil {
		return RegisterResult{Document: *existing, Reason: "already registered"}, nil
	}
	doc := WatchedDocument{
		FileID:       fileID,
		ClientID:     clientID,
		FileName:     fileName,
		LastModified: lastModified,
	}
	if err := s.Insert(ctx, doc); err != nil {
		return RegisterResult{}, err
	}
	created, err := s.Lookup(ctx, fileID)
	if err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{Document: *created, Created: true}, nil
}

// List returns every tracked record for clientID, or all records when clientID is empty.
func (s *Store) List(ctx context.Context, clientID string) ([]WatchedDocument, error) {
	query := `
		SELECT file_id, client_id, file_name, content_hash, last_modified, created_at, updated_at
		FROM drive_documents
	`
	var args []any
	if clientID != "" {
		query += " WHERE client_id = ?"
		args = append(args, clientID)
	}
	query += " ORDER BY file_name, file_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("documents: list: %w", err)
	}
	defer rows.Close()

	var docs []WatchedDocument
	for rows.Next() {
		var doc WatchedDocument
		if err := rows.Scan(&doc.FileID, &doc.ClientID, &doc.FileName, &doc.ContentHash,
			&doc.LastModified, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("documents: scan: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// RecordSubmission appends an audit row for a successful forward and returns its id.
func (s *Store) RecordSubmission(ctx context.Context, sub Submission) (string, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt == 0 {
		sub.CreatedAt = s.now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_submissions (
			id, client_id, assistant_id, source, ref, content_hash, response, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.ID, sub.ClientID, sub.AssistantID, sub.Source, sub.Ref, sub.ContentHash, sub.Response, sub.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("documents: insert submission: %w", err)
	}
	return sub.ID, nil
}

// Submissions returns the audit rows for a source/ref pair, newest first.
func (s *Store) Submissions(ctx context.Context, source, ref string) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, assistant_id, source, ref, content_hash, response, created_at
		FROM memory_submissions
		WHERE source = ? AND ref = ?
		ORDER BY created_at DESC, id
	`, source, ref)
	if err != nil {
		return nil, fmt.Errorf("documents: query submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		var sub Submission
		if err := rows.Scan(&sub.ID, &sub.ClientID, &sub.AssistantID, &sub.Source, &sub.Ref,
			&sub.ContentHash, &sub.Response, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("documents: scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
