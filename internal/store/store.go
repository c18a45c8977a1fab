package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/mail-triage/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would violate a unique key,
	// e.g. attaching a remote id that another row already owns.
	ErrConflict = errors.New("unique constraint conflict")
)

// MessageFilter controls filtering and pagination for message queries.
type MessageFilter struct {
	Types        []model.MessageType // include only these types (any)
	ExcludeTypes []model.MessageType
	ThreadID     *string
	HasDraft     bool // only rows with a non-empty draft
	NeedsSummary bool // only rows without a summary, sent/draft excluded
	UnreadOnly   bool
	Archived     *bool // nil matches both
	Trashed      bool  // only trashed rows; trashed rows are hidden otherwise
	SortAsc      bool  // default newest first
	Limit        int
	Offset       int
}

// InboxFilter is the default inbox view: everything except sent, draft
// and archived rows.
func InboxFilter() MessageFilter {
	archived := false
	return MessageFilter{
		ExcludeTypes: []model.MessageType{model.TypeSent, model.TypeDraft},
		Archived:     &archived,
	}
}

// DraftsFilter lists every row carrying draft text, standalone drafts and
// replies alike.
func DraftsFilter() MessageFilter {
	return MessageFilter{HasDraft: true}
}

// ArchiveFilter lists archived rows.
func ArchiveFilter() MessageFilter {
	archived := true
	return MessageFilter{Archived: &archived}
}

// MessageUpdate lists the columns to change. Nil fields are left alone.
type MessageUpdate struct {
	ThreadID           *string
	Subject            *string
	Sender             *string
	Body               *string
	BodyHTML           *string
	Type               *model.MessageType
	TypeOrigin         *model.TypeOrigin
	Priority           *int
	IsRead             *bool
	Summary            *string
	SummaryGeneratedAt *time.Time
	Draft              *string
	DraftUpdatedAt     *time.Time
	RemoteDraftID      *string
}

// Empty reports whether the update changes nothing.
func (u MessageUpdate) Empty() bool {
	return u == MessageUpdate{}
}

// Store defines the persistence interface for the local mail mirror.
type Store interface {
	// === Accounts ===

	EnsureAccount(ctx context.Context, acct model.Account) (*model.Account, error)
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	GetAccountByAddress(ctx context.Context, address string) (*model.Account, error)
	LatestAccount(ctx context.Context) (*model.Account, error)

	// === Messages ===

	InsertMessage(ctx context.Context, msg *model.Message) (int64, error)
	GetMessage(ctx context.Context, id int64) (*model.Message, error)
	GetMessageByRemoteID(ctx context.Context, remoteID string) (*model.Message, error)
	GetMessageByRemoteDraftID(ctx context.Context, draftID string) (*model.Message, error)
	ListMessages(ctx context.Context, filter MessageFilter) ([]model.Message, error)
	CountMessages(ctx context.Context, filter MessageFilter) (int, error)
	UpdateMessage(ctx context.Context, id int64, upd MessageUpdate) (bool, error)
	AttachRemoteID(ctx context.Context, id int64, remoteID, threadID string) error
	MergeDuplicate(ctx context.Context, keepID, dupID int64, remoteID, threadID string) error
	SetArchived(ctx context.Context, id int64, archived bool) (bool, error)
	MarkTrashed(ctx context.Context, id int64) (bool, error)
	ClearDraft(ctx context.Context, id int64) (bool, error)

	// === Recipients & labels ===

	AddRecipients(ctx context.Context, id int64, recipients []model.Recipient) error
	GetRecipients(ctx context.Context, id int64) ([]model.Recipient, error)
	SetMessageLabels(ctx context.Context, id int64, labels []string) (bool, error)
	GetMessageLabels(ctx context.Context, id int64) ([]string, error)

	// Fingerprint digests every mirrored row; equal fingerprints mean
	// equal local state.
	Fingerprint(ctx context.Context) (string, error)
}
