// Package mailbox defines the remote mailbox contract the sync engine
// consumes, independent of any one provider.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// System label names. Providers without labels map their folders and
// flags onto these.
const (
	LabelInbox  = "INBOX"
	LabelUnread = "UNREAD"
	LabelSpam   = "SPAM"
	LabelTrash  = "TRASH"
	LabelSent   = "SENT"
	LabelDraft  = "DRAFT"
)

// AuthError indicates that no usable credentials are available, or that
// the provider rejected them.
type AuthError struct {
	Provider string
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth unavailable (%s): %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("auth unavailable (%s): %s", e.Provider, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UnavailableError indicates a network, quota or provider failure.
// Retriable failures (throttling, 5xx, transport) are expected to clear
// on their own; the rest need a change on our side or the provider's.
type UnavailableError struct {
	Provider  string
	Op        string
	Retriable bool
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("remote unavailable (%s %s): %v", e.Provider, e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsAuthUnavailable reports whether err (or any error in its chain) is an AuthError.
func IsAuthUnavailable(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsRemoteUnavailable reports whether err (or any error in its chain) is
// an UnavailableError.
func IsRemoteUnavailable(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}

// IsRetriable reports whether err is an UnavailableError expected to
// clear on a later attempt.
func IsRetriable(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable) && unavailable.Retriable
}

// RemoteMessage is one message as the provider reports it.
type RemoteMessage struct {
	ID         string
	ThreadID   string
	LabelIDs   []string
	Subject    string
	From       string
	To         []string
	Cc         []string
	Body       string
	BodyHTML   string
	MessageID  string // RFC 5322 Message-ID header
	InReplyTo  string
	ReceivedAt time.Time
}

// HasLabel reports whether the message carries label.
func (m RemoteMessage) HasLabel(label string) bool {
	for _, l := range m.LabelIDs {
		if l == label {
			return true
		}
	}
	return false
}

// RemoteDraft is a provider draft. SourceID is the remote id of the
// message the draft replies to, when the provider can tell.
type RemoteDraft struct {
	ID       string
	SourceID string
	Message  RemoteMessage
}

// Attachment is a file attached to an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// OutgoingMessage is a message to send or save as a draft.
type OutgoingMessage struct {
	To          []string
	Cc          []string
	Subject     string
	Body        string
	ThreadID    string
	ReplyToID   string // remote id of the message being answered
	InReplyTo   string // its Message-ID header, when already known
	Attachments []Attachment
}

// SendReceipt is the provider's confirmation of a sent message.
type SendReceipt struct {
	RemoteID string
	ThreadID string
}

// DraftRequest creates (DraftID empty) or replaces a provider draft.
type DraftRequest struct {
	DraftID string
	Message OutgoingMessage
}

// DraftReceipt is the provider's confirmation of a saved draft.
type DraftReceipt struct {
	DraftID   string
	MessageID string
	ThreadID  string
}

// Profile identifies the authenticated mailbox.
type Profile struct {
	Address       string
	MessagesTotal int64
}

// Client is the contract every mailbox provider adapter implements.
type Client interface {
	// Profile returns the authenticated account's identity.
	Profile(ctx context.Context) (*Profile, error)

	// ListRecent returns up to max most recent messages, spam included
	// and trash excluded, newest first.
	ListRecent(ctx context.Context, max int) ([]RemoteMessage, error)

	// ListDrafts returns up to max current drafts.
	ListDrafts(ctx context.Context, max int) ([]RemoteDraft, error)

	// SetLabels adds and removes labels on a remote message.
	SetLabels(ctx context.Context, remoteID string, add, remove []string) error

	// Send delivers msg, threaded on msg.ThreadID when set.
	Send(ctx context.Context, msg OutgoingMessage) (SendReceipt, error)

	// UpsertDraft creates or replaces a draft.
	UpsertDraft(ctx context.Context, req DraftRequest) (DraftReceipt, error)

	// Trash moves a remote message to the provider's trash.
	Trash(ctx context.Context, remoteID string) error

	// DeleteDraft discards a provider draft.
	DeleteDraft(ctx context.Context, draftID string) error
}
