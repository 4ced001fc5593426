package clients

import (
	"context"
	"errors"
	"testing"

	"github.com/Napageneral/onboard/internal/testutil"
)

func TestRegistry_ClientLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testutil.OpenTestDB(t).DB)

	c, err := reg.LookupClient(ctx, "ALEX")
	if err != nil {
		t.Fatalf("LookupClient: %v", err)
	}
	if c != nil {
		t.Fatalf("expected no client, got %+v", c)
	}

	if err := reg.CreateClient(ctx, "ALEX", "gAAAA-token"); err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	if err := reg.CreateClient(ctx, "ALEX", "other"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	c, err = reg.LookupClient(ctx, "ALEX")
	if err != nil || c == nil {
		t.Fatalf("LookupClient after create: c=%v err=%v", c, err)
	}
	if c.APIKey != "gAAAA-token" {
		t.Errorf("unexpected api key %q", c.APIKey)
	}
}

func TestRegistry_Assistant(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testutil.OpenTestDB(t).DB)

	if err := reg.CreateClient(ctx, "ALEX", "k"); err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	a, err := reg.LookupAssistant(ctx, "ALEX")
	if err != nil {
		t.Fatalf("LookupAssistant: %v", err)
	}
	if a != nil {
		t.Fatalf("expected no assistant yet, got %+v", a)
	}

	if err := reg.CreateAssistant(ctx, "asst-123", "ALEX"); err != nil {
		t.Fatalf("CreateAssistant: %v", err)
	}
	a, err = reg.LookupAssistant(ctx, "ALEX")
	if err != nil || a == nil {
		t.Fatalf("LookupAssistant after create: a=%v err=%v", a, err)
	}
	if a.ID != "asst-123" {
		t.Errorf("unexpected assistant id %q", a.ID)
	}

	list, err := reg.ListClients(ctx)
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(list) != 1 || list[0].AssistantID != "asst-123" {
		t.Errorf("unexpected client list %+v", list)
	}
}

func TestRegistry_AssistantRequiresClient(t *testing.T) {
	reg := NewRegistry(testutil.OpenTestDB(t).DB)
	if err := reg.CreateAssistant(context.Background(), "asst-1", "ghost"); err == nil {
		t.Fatal("expected foreign key error for unknown client")
	}
}

func TestRegistry_DeleteClient(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(testutil.OpenTestDB(t).DB)
	if err := reg.CreateClient(ctx, "ALEX", "k"); err != nil {
		t.Fatal(err)
	}
	if err := reg.CreateAssistant(ctx, "asst-1", "ALEX"); err != nil {
		t.Fatal(err)
	}
	if err := reg.DeleteClient(ctx, "ALEX"); err != nil {
		t.Fatalf("DeleteClient: %v", err)
	}
	if c, _ := reg.LookupClient(ctx, "ALEX"); c != nil {
		t.Error("client still present after delete")
	}
	if a, _ := reg.LookupAssistant(ctx, "ALEX"); a != nil {
		t.Error("assistant still present after delete")
	}
}
