package db

import (
	"path/filepath"
	"testing"
)

func TestOpen_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "onboard.db")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()

	if database.Path() != path {
		t.Errorf("Path() = %q, want %q", database.Path(), path)
	}

	for _, table := range []string{"clients", "assistants", "chats", "drive_documents", "memory_submissions"} {
		var name string
		err := database.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestInit_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onboard.db")
	if err := Init(path); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := Init(path); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var d *DB
	if err := d.Close(); err != nil {
		t.Errorf("Close on nil DB returned %v", err)
	}
}
