package clients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrExists is returned when creating a client id that is already registered.
var ErrExists = errors.New("client already exists")

// Client is a registered onboard agent. APIKey holds the encrypted Backboard key.
type Client struct {
	ID        string
	APIKey    string
	CreatedAt time.Time
}

// Assistant is the Backboard assistant created for a client.
type Assistant struct {
	ID        string
	ClientID  string
	CreatedAt time.Time
}

// Registry reads and writes clients and their assistants.
type Registry struct {
	db *sql.DB
}

func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// LookupClient returns the client, or nil if it is not registered.
func (r *Registry) LookupClient(ctx context.Context, clientID string) (*Client, error) {
	var c Client
	var createdAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT client_id, api_key, created_at
		FROM clients
		WHERE client_id = ?
	`, clientID).Scan(&c.ID, &c.APIKey, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	return &c, nil
}

// CreateClient stores a client with an already-encrypted API key.
func (r *Registry) CreateClient(ctx context.Context, clientID, encryptedKey string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, "SELECT client_id FROM clients WHERE client_id = ?", clientID).Scan(&existing)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrExists, clientID)
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing client: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO clients (client_id, api_key, created_at)
		VALUES (?, ?, ?)
	`, clientID, encryptedKey, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteClient removes a client and its assistants. Used to roll back a
// registration whose assistant could not be created.
func (r *Registry) DeleteClient(ctx context.Context, clientID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM assistants WHERE client_id = ?", clientID); err != nil {
		return fmt.Errorf("failed to delete assistants: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM clients WHERE client_id = ?", clientID); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return tx.Commit()
}

// LookupAssistant returns the first assistant registered for the client, or nil.
// Each client is expected to own exactly one assistant.
func (r *Registry) LookupAssistant(ctx context.Context, clientID string) (*Assistant, error) {
	var a Assistant
	var createdAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT assistant_id, client_id, created_at
		FROM assistants
		WHERE client_id = ?
		ORDER BY created_at, assistant_id
		LIMIT 1
	`, clientID).Scan(&a.ID, &a.ClientID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assistant: %w", err)
	}
	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}

// CreateAssistant links a Backboard assistant id to a client.
func (r *Registry) CreateAssistant(ctx context.Context, assistantID, clientID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assistants (assistant_id, client_id, created_at)
		VALUES (?, ?, ?)
	`, assistantID, clientID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to create assistant: %w", err)
	}
	return nil
}

// ListClients returns all client ids with their assistant, if any.
func (r *Registry) ListClients(ctx context.Context) ([]ClientSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.client_id, COALESCE(MIN(a.assistant_id), ''), c.created_at
		FROM clients c
		LEFT JOIN assistants a ON a.client_id = c.client_id
		GROUP BY c.client_id, c.created_at
		ORDER BY c.client_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var out []ClientSummary
	for rows.Next() {
		var s ClientSummary
		var createdAt int64
		if err := rows.Scan(&s.ClientID, &s.AssistantID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		s.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, s)
	}
	return out, rows.Err()
}

// ClientSummary is a listing row; it never carries the key.
type ClientSummary struct {
	ClientID    string    `json:"client_id"`
	AssistantID string    `json:"assistant_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
