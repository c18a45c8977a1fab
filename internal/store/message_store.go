package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/mail-triage/internal/model"
)

const messageColumns = `id, account_id, remote_id, remote_draft_id, thread_id,
	subject, sender, body, body_html, type, type_origin, priority, is_read,
	received_at, summary, summary_generated_at, draft, draft_updated_at,
	archived_at, trashed_at, created_at, updated_at`

// InsertMessage inserts msg together with its recipients and labels in a
// single transaction and returns the new local id. A duplicate remote id
// or remote draft id yields ErrConflict.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *model.Message) (int64, error) {
	if msg.AccountID == 0 {
		return 0, fmt.Errorf("message account must be set")
	}
	if msg.Type == "" {
		msg.Type = model.TypeReadOnly
	}
	if !msg.Type.Valid() {
		return 0, fmt.Errorf("invalid message type %q", msg.Type)
	}
	if msg.TypeOrigin == "" {
		msg.TypeOrigin = model.OriginLabel
	}
	msg.Priority = model.ClampPriority(msg.Priority)
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO email_messages (
			account_id, remote_id, remote_draft_id, thread_id,
			subject, sender, body, body_html,
			type, type_origin, priority, is_read, received_at,
			summary, summary_generated_at, draft, draft_updated_at,
			archived_at, trashed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.AccountID, msg.RemoteID, msg.RemoteDraftID, msg.ThreadID,
		msg.Subject, msg.Sender, msg.Body, msg.BodyHTML,
		string(msg.Type), string(msg.TypeOrigin), msg.Priority, boolToInt(msg.IsRead),
		msg.ReceivedAt.UTC(),
		msg.Summary, utcPtr(msg.SummaryGeneratedAt), msg.Draft, utcPtr(msg.DraftUpdatedAt),
		utcPtr(msg.ArchivedAt), utcPtr(msg.TrashedAt), msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("inserting message %s: %w", deref(msg.RemoteID), ErrConflict)
		}
		return 0, fmt.Errorf("inserting message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted message id: %w", err)
	}

	if err := insertRecipients(ctx, tx, id, msg.Recipients); err != nil {
		return 0, err
	}
	if _, err := replaceLabels(ctx, tx, id, msg.Labels); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing message insert: %w", err)
	}
	msg.ID = id
	return id, nil
}

// GetMessage retrieves a single message by local id, with recipients
// and labels.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+messageColumns+" FROM email_messages WHERE id = ?", id)
	return s.loadMessage(ctx, row, fmt.Sprintf("message %d", id))
}

// GetMessageByRemoteID retrieves the message mirrored from remoteID.
func (s *SQLiteStore) GetMessageByRemoteID(
	ctx context.Context,
	remoteID string,
) (*model.Message, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+messageColumns+" FROM email_messages WHERE remote_id = ?", remoteID)
	return s.loadMessage(ctx, row, "message remote "+remoteID)
}

// GetMessageByRemoteDraftID retrieves the message carrying the given
// provider draft.
func (s *SQLiteStore) GetMessageByRemoteDraftID(
	ctx context.Context,
	draftID string,
) (*model.Message, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+messageColumns+" FROM email_messages WHERE remote_draft_id = ?", draftID)
	return s.loadMessage(ctx, row, "message draft "+draftID)
}

func (s *SQLiteStore) loadMessage(ctx context.Context, row *sqlx.Row, what string) (*model.Message, error) {
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", what, err)
	}

	if msg.Recipients, err = s.GetRecipients(ctx, msg.ID); err != nil {
		return nil, err
	}
	if msg.Labels, err = s.GetMessageLabels(ctx, msg.ID); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages retrieves messages matching the filter, newest first
// unless SortAsc is set.
func (s *SQLiteStore) ListMessages(
	ctx context.Context,
	filter MessageFilter,
) ([]model.Message, error) {
	query, args := buildMessageQuery("SELECT "+messageColumns, filter)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// CountMessages returns the count of messages matching the filter.
func (s *SQLiteStore) CountMessages(
	ctx context.Context,
	filter MessageFilter,
) (int, error) {
	filter.Limit = 0
	filter.Offset = 0
	query, args := buildMessageQuery("SELECT COUNT(*)", filter)
	if i := strings.Index(query, " ORDER BY "); i >= 0 {
		query = query[:i]
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

// UpdateMessage applies the non-nil fields of upd to message id. It
// reports whether any column actually changed; updated_at only moves
// when one did.
func (s *SQLiteStore) UpdateMessage(
	ctx context.Context,
	id int64,
	upd MessageUpdate,
) (bool, error) {
	if upd.Empty() {
		return false, nil
	}

	var sets, diffs []string
	var setArgs, diffArgs []interface{}
	add := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		setArgs = append(setArgs, v)
		diffs = append(diffs, col+" IS NOT ?")
		diffArgs = append(diffArgs, v)
	}

	if upd.ThreadID != nil {
		add("thread_id", *upd.ThreadID)
	}
	if upd.Subject != nil {
		add("subject", *upd.Subject)
	}
	if upd.Sender != nil {
		add("sender", *upd.Sender)
	}
	if upd.Body != nil {
		add("body", *upd.Body)
	}
	if upd.BodyHTML != nil {
		add("body_html", *upd.BodyHTML)
	}
	if upd.Type != nil {
		if !upd.Type.Valid() {
			return false, fmt.Errorf("invalid message type %q", *upd.Type)
		}
		add("type", string(*upd.Type))
	}
	if upd.TypeOrigin != nil {
		add("type_origin", string(*upd.TypeOrigin))
	}
	if upd.Priority != nil {
		add("priority", model.ClampPriority(*upd.Priority))
	}
	if upd.IsRead != nil {
		add("is_read", boolToInt(*upd.IsRead))
	}
	if upd.Summary != nil {
		add("summary", *upd.Summary)
	}
	if upd.SummaryGeneratedAt != nil {
		add("summary_generated_at", upd.SummaryGeneratedAt.UTC())
	}
	if upd.Draft != nil {
		add("draft", *upd.Draft)
	}
	if upd.DraftUpdatedAt != nil {
		add("draft_updated_at", upd.DraftUpdatedAt.UTC())
	}
	if upd.RemoteDraftID != nil {
		add("remote_draft_id", *upd.RemoteDraftID)
	}

	query := "UPDATE email_messages SET " + strings.Join(sets, ", ") +
		", updated_at = ? WHERE id = ? AND (" + strings.Join(diffs, " OR ") + ")"
	args := append(setArgs, time.Now().UTC(), id)
	args = append(args, diffArgs...)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("updating message %d: %w", id, ErrConflict)
		}
		return false, fmt.Errorf("updating message %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return true, nil
	}

	if err := s.requireMessage(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// AttachRemoteID ties a locally originated row to its provider id. The
// thread id is only replaced when threadID is non-empty. Attaching an id
// owned by another row, or re-pointing a row that already has a
// different remote id, yields ErrConflict.
func (s *SQLiteStore) AttachRemoteID(
	ctx context.Context,
	id int64,
	remoteID, threadID string,
) error {
	if remoteID == "" {
		return fmt.Errorf("remote id must not be empty")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE email_messages
		SET remote_id = ?,
			thread_id = COALESCE(NULLIF(?, ''), thread_id),
			updated_at = ?
		WHERE id = ? AND (remote_id IS NULL OR remote_id = ?)`,
		remoteID, threadID, time.Now().UTC(), id, remoteID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("attaching remote id %s to message %d: %w", remoteID, id, ErrConflict)
		}
		return fmt.Errorf("attaching remote id %s to message %d: %w", remoteID, id, err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}
	if err := s.requireMessage(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("message %d already has a different remote id: %w", id, ErrConflict)
}

// MergeDuplicate folds dupID, a row a sync pass inserted for remoteID,
// into keepID, the locally originated row that sent it. In one
// transaction the duplicate's labels move to keepID, the duplicate is
// deleted and keepID takes over the remote id. ErrConflict is returned
// when dupID does not own remoteID or keepID already has a remote id.
func (s *SQLiteStore) MergeDuplicate(
	ctx context.Context,
	keepID, dupID int64,
	remoteID, threadID string,
) error {
	if keepID == dupID {
		return fmt.Errorf("merging message %d into itself", keepID)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"UPDATE OR IGNORE message_labels SET email_id = ? WHERE email_id = ?",
		keepID, dupID,
	); err != nil {
		return fmt.Errorf("moving labels of message %d: %w", dupID, err)
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM email_messages WHERE id = ? AND remote_id = ?", dupID, remoteID)
	if err != nil {
		return fmt.Errorf("deleting duplicate message %d: %w", dupID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %d does not own remote id %s: %w", dupID, remoteID, ErrConflict)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE email_messages
		SET remote_id = ?,
			thread_id = COALESCE(NULLIF(?, ''), thread_id),
			updated_at = ?
		WHERE id = ? AND remote_id IS NULL`,
		remoteID, threadID, time.Now().UTC(), keepID,
	)
	if err != nil {
		return fmt.Errorf("attaching remote id %s to message %d: %w", remoteID, keepID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %d cannot take remote id %s: %w", keepID, remoteID, ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing merge of message %d: %w", dupID, err)
	}
	return nil
}

// SetArchived files message id out of the inbox view, or back into it.
// It reports whether the row changed.
func (s *SQLiteStore) SetArchived(ctx context.Context, id int64, archived bool) (bool, error) {
	query := `UPDATE email_messages SET archived_at = ?, updated_at = ?
		WHERE id = ? AND archived_at IS NULL`
	args := []interface{}{time.Now().UTC(), time.Now().UTC(), id}
	if !archived {
		query = `UPDATE email_messages SET archived_at = NULL, updated_at = ?
			WHERE id = ? AND archived_at IS NOT NULL`
		args = []interface{}{time.Now().UTC(), id}
	}
	return s.execChange(ctx, id, "archiving", query, args...)
}

// MarkTrashed hides message id from every view. The row itself stays so
// its remote id keeps matching.
func (s *SQLiteStore) MarkTrashed(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC()
	return s.execChange(ctx, id, "trashing", `
		UPDATE email_messages SET trashed_at = ?, updated_at = ?
		WHERE id = ? AND trashed_at IS NULL`, now, now, id)
}

// ClearDraft removes the draft text of message id together with its
// remote draft id.
func (s *SQLiteStore) ClearDraft(ctx context.Context, id int64) (bool, error) {
	return s.execChange(ctx, id, "clearing draft of", `
		UPDATE email_messages
		SET draft = NULL, draft_updated_at = NULL, remote_draft_id = NULL, updated_at = ?
		WHERE id = ? AND (draft IS NOT NULL OR remote_draft_id IS NOT NULL)`,
		time.Now().UTC(), id)
}

// execChange runs a single-row update and reports whether it matched,
// telling a no-op apart from a missing row.
func (s *SQLiteStore) execChange(
	ctx context.Context,
	id int64,
	what, query string,
	args ...interface{},
) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s message %d: %w", what, id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	if err := s.requireMessage(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SQLiteStore) requireMessage(ctx context.Context, id int64) error {
	var exists int
	err := s.db.GetContext(ctx, &exists,
		"SELECT COUNT(*) FROM email_messages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("checking message %d: %w", id, err)
	}
	if exists == 0 {
		return fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	return nil
}

func buildMessageQuery(selectClause string, filter MessageFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conditions = append(conditions, "type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(filter.ExcludeTypes) > 0 {
		placeholders := make([]string, len(filter.ExcludeTypes))
		for i, t := range filter.ExcludeTypes {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conditions = append(conditions, "type NOT IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.ThreadID != nil {
		conditions = append(conditions, "thread_id = ?")
		args = append(args, *filter.ThreadID)
	}
	if filter.HasDraft {
		conditions = append(conditions, "draft IS NOT NULL AND draft != ''")
	}
	if filter.NeedsSummary {
		conditions = append(conditions,
			"summary IS NULL AND type NOT IN ('sent', 'draft')")
	}
	if filter.UnreadOnly {
		conditions = append(conditions, "is_read = 0")
	}
	if filter.Archived != nil {
		if *filter.Archived {
			conditions = append(conditions, "archived_at IS NOT NULL")
		} else {
			conditions = append(conditions, "archived_at IS NULL")
		}
	}
	if filter.Trashed {
		conditions = append(conditions, "trashed_at IS NOT NULL")
	} else {
		conditions = append(conditions, "trashed_at IS NULL")
	}

	query := selectClause + " FROM email_messages"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	direction := "DESC"
	if filter.SortAsc {
		direction = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY received_at %s, id %s", direction, direction)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	return query, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMessage scans a row selected with messageColumns.
func scanMessage(row rowScanner) (model.Message, error) {
	var (
		msg        model.Message
		msgType    string
		origin     string
		isRead     int
		receivedAt time.Time
	)

	err := row.Scan(
		&msg.ID, &msg.AccountID, &msg.RemoteID, &msg.RemoteDraftID, &msg.ThreadID,
		&msg.Subject, &msg.Sender, &msg.Body, &msg.BodyHTML,
		&msgType, &origin, &msg.Priority, &isRead,
		&receivedAt, &msg.Summary, &msg.SummaryGeneratedAt,
		&msg.Draft, &msg.DraftUpdatedAt,
		&msg.ArchivedAt, &msg.TrashedAt,
		&msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return model.Message{}, err
	}

	msg.Type = model.MessageType(msgType)
	msg.TypeOrigin = model.TypeOrigin(origin)
	msg.IsRead = isRead != 0
	msg.ReceivedAt = receivedAt

	return msg, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
