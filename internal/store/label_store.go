package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/mail-triage/internal/model"
)

// AddRecipients records to/cc addresses for a message. Duplicates of an
// existing (message, kind, address) triple are ignored.
func (s *SQLiteStore) AddRecipients(
	ctx context.Context,
	id int64,
	recipients []model.Recipient,
) error {
	if len(recipients) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRecipients(ctx, tx, id, recipients); err != nil {
		return err
	}
	return tx.Commit()
}

// GetRecipients returns the recipients of a message ordered by kind and address.
func (s *SQLiteStore) GetRecipients(ctx context.Context, id int64) ([]model.Recipient, error) {
	var recips []model.Recipient
	err := s.db.SelectContext(ctx, &recips, `
		SELECT recipient_type AS kind, address
		FROM email_recipients
		WHERE email_id = ?
		ORDER BY recipient_type DESC, address`, id)
	if err != nil {
		return nil, fmt.Errorf("getting recipients for message %d: %w", id, err)
	}
	return recips, nil
}

func insertRecipients(ctx context.Context, tx *sqlx.Tx, id int64, recipients []model.Recipient) error {
	if len(recipients) == 0 {
		return nil
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR IGNORE INTO email_recipients (email_id, recipient_type, address)
		VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing recipient insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recipients {
		addr := strings.TrimSpace(r.Address)
		if addr == "" {
			continue
		}
		kind := r.Kind
		if kind == "" {
			kind = model.RecipientTo
		}
		if _, err := stmt.ExecContext(ctx, id, kind, addr); err != nil {
			return fmt.Errorf("adding recipient %s to message %d: %w", addr, id, err)
		}
	}
	return nil
}

// SetMessageLabels makes the message's label set equal to labels and
// reports whether anything changed.
func (s *SQLiteStore) SetMessageLabels(
	ctx context.Context,
	id int64,
	labels []string,
) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	changed, err := replaceLabels(ctx, tx, id, labels)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	return true, tx.Commit()
}

// GetMessageLabels returns the label names attached to a message, sorted.
func (s *SQLiteStore) GetMessageLabels(ctx context.Context, id int64) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names, `
		SELECT l.name FROM labels l
		INNER JOIN message_labels ml ON ml.label_id = l.id
		WHERE ml.email_id = ?
		ORDER BY l.name`, id)
	if err != nil {
		return nil, fmt.Errorf("getting labels for message %d: %w", id, err)
	}
	return names, nil
}

// replaceLabels diffs the stored label set against want and applies only
// the difference.
func replaceLabels(ctx context.Context, tx *sqlx.Tx, id int64, want []string) (bool, error) {
	var have []string
	err := tx.SelectContext(ctx, &have, `
		SELECT l.name FROM labels l
		INNER JOIN message_labels ml ON ml.label_id = l.id
		WHERE ml.email_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("loading labels for message %d: %w", id, err)
	}

	wantSet := make(map[string]bool, len(want))
	for _, name := range want {
		if name = strings.TrimSpace(name); name != "" {
			wantSet[name] = true
		}
	}
	haveSet := make(map[string]bool, len(have))
	for _, name := range have {
		haveSet[name] = true
	}

	var add, remove []string
	for name := range wantSet {
		if !haveSet[name] {
			add = append(add, name)
		}
	}
	for name := range haveSet {
		if !wantSet[name] {
			remove = append(remove, name)
		}
	}
	if len(add) == 0 && len(remove) == 0 {
		return false, nil
	}
	sort.Strings(add)

	for _, name := range remove {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM message_labels
			WHERE email_id = ? AND label_id = (SELECT id FROM labels WHERE name = ?)`,
			id, name)
		if err != nil {
			return false, fmt.Errorf("removing label %s from message %d: %w", name, id, err)
		}
	}
	for _, name := range add {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO labels (name) VALUES (?)", name); err != nil {
			return false, fmt.Errorf("creating label %s: %w", name, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO message_labels (email_id, label_id)
			SELECT ?, id FROM labels WHERE name = ?`, id, name)
		if err != nil {
			return false, fmt.Errorf("adding label %s to message %d: %w", name, id, err)
		}
	}
	return true, nil
}
