package testutil

import (
	"context"
	"testing"

	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/store"
)

// SelfAddress is the account address used by test fixtures.
const SelfAddress = "you@example.com"

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestAccount ensures the fixture account exists in s.
func NewTestAccount(t *testing.T, s store.Store) *model.Account {
	t.Helper()

	acct, err := s.EnsureAccount(context.Background(), model.Account{
		Address:     SelfAddress,
		DisplayName: "You",
	})
	if err != nil {
		t.Fatalf("creating test account: %v", err)
	}
	return acct
}

// SeedMessage inserts msg for acct and returns the stored row.
func SeedMessage(t *testing.T, s store.Store, acct *model.Account, msg model.Message) *model.Message {
	t.Helper()

	msg.AccountID = acct.ID
	id, err := s.InsertMessage(context.Background(), &msg)
	if err != nil {
		t.Fatalf("seeding message: %v", err)
	}
	got, err := s.GetMessage(context.Background(), id)
	if err != nil {
		t.Fatalf("reloading seeded message: %v", err)
	}
	return got
}
