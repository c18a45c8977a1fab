// Package identity maps provider message ids onto local rows.
package identity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/store"
)

// ConflictError reports that a remote id cannot be bound to a local row
// without breaking the one-to-one mapping.
type ConflictError struct {
	RemoteID string
	LocalID  int64
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("identity conflict for remote %s (local %d): %s", e.RemoteID, e.LocalID, e.Reason)
}

// IsConflict reports whether err (or any error in its chain) is a ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// Mapper resolves remote messages to local rows. It only ever matches on
// the unique remote id; rows without one are never joined automatically.
type Mapper struct {
	store  store.Store
	logger *zap.Logger
}

// NewMapper creates a Mapper over s.
func NewMapper(s store.Store, logger *zap.Logger) *Mapper {
	return &Mapper{store: s, logger: logger}
}

// Resolve returns the local row mirroring rm, or nil if rm is new.
func (m *Mapper) Resolve(ctx context.Context, rm mailbox.RemoteMessage) (*model.Message, error) {
	if rm.ID == "" {
		return nil, fmt.Errorf("resolving remote message: empty id")
	}

	local, err := m.store.GetMessageByRemoteID(ctx, rm.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving remote %s: %w", rm.ID, err)
	}

	if local.ThreadID != "" && rm.ThreadID != "" && local.ThreadID != rm.ThreadID {
		return nil, &ConflictError{
			RemoteID: rm.ID,
			LocalID:  local.ID,
			Reason:   fmt.Sprintf("thread %s does not match local thread %s", rm.ThreadID, local.ThreadID),
		}
	}
	return local, nil
}

// ResolveDraftSource returns the local row a remote draft replies to, or
// nil when the source is unknown locally.
func (m *Mapper) ResolveDraftSource(ctx context.Context, d mailbox.RemoteDraft) (*model.Message, error) {
	if d.SourceID == "" {
		return nil, nil
	}
	local, err := m.store.GetMessageByRemoteID(ctx, d.SourceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving draft %s source %s: %w", d.ID, d.SourceID, err)
	}
	return local, nil
}

// ResolveDraft returns the row already carrying remote draft draftID, or nil.
func (m *Mapper) ResolveDraft(ctx context.Context, draftID string) (*model.Message, error) {
	local, err := m.store.GetMessageByRemoteDraftID(ctx, draftID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving draft %s: %w", draftID, err)
	}
	return local, nil
}

// ConfirmSend attaches the provider-assigned ids of a sent message to the
// locally originated row localID.
//
// A pass running between the send and this call has already mirrored the
// message as a new sent row. That copy is merged into localID so one send
// never leaves two rows behind. Any other owner of the remote id is a
// ConflictError.
func (m *Mapper) ConfirmSend(ctx context.Context, localID int64, receipt mailbox.SendReceipt) error {
	if receipt.RemoteID == "" {
		return fmt.Errorf("confirming send of message %d: empty remote id", localID)
	}

	err := m.store.AttachRemoteID(ctx, localID, receipt.RemoteID, receipt.ThreadID)
	if errors.Is(err, store.ErrConflict) {
		return m.mergeSent(ctx, localID, receipt)
	}
	if err != nil {
		return fmt.Errorf("confirming send of message %d: %w", localID, err)
	}
	return nil
}

func (m *Mapper) mergeSent(ctx context.Context, localID int64, receipt mailbox.SendReceipt) error {
	conflict := func(reason string) error {
		m.logger.Warn("remote id already bound",
			zap.Int64("local_id", localID),
			zap.String("remote_id", receipt.RemoteID),
			zap.String("reason", reason),
		)
		return &ConflictError{RemoteID: receipt.RemoteID, LocalID: localID, Reason: reason}
	}

	owner, err := m.store.GetMessageByRemoteID(ctx, receipt.RemoteID)
	if errors.Is(err, store.ErrNotFound) {
		return conflict("row already has a different remote id")
	}
	if err != nil {
		return fmt.Errorf("confirming send of message %d: %w", localID, err)
	}
	if owner.ID == localID {
		return nil
	}
	if !mirroredCopy(owner, localID, receipt) {
		return conflict("remote id is already bound to another row")
	}

	err = m.store.MergeDuplicate(ctx, localID, owner.ID, receipt.RemoteID, receipt.ThreadID)
	if errors.Is(err, store.ErrConflict) {
		return conflict("row already has a different remote id")
	}
	if err != nil {
		return fmt.Errorf("merging sync copy %d into message %d: %w", owner.ID, localID, err)
	}
	m.logger.Info("merged sync copy of sent message",
		zap.Int64("local_id", localID),
		zap.Int64("duplicate_id", owner.ID),
		zap.String("remote_id", receipt.RemoteID),
	)
	return nil
}

// mirroredCopy reports whether owner is the row a pass inserted for the
// message described by receipt. Such a row is a label-typed sent message
// created after localID.
func mirroredCopy(owner *model.Message, localID int64, receipt mailbox.SendReceipt) bool {
	if owner.ID < localID || owner.Type != model.TypeSent || owner.TypeOrigin != model.OriginLabel {
		return false
	}
	return receipt.ThreadID == "" || owner.ThreadID == "" || owner.ThreadID == receipt.ThreadID
}
