// Package reconcile pulls remote mailbox state into the local store.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/nhle/mail-triage/internal/identity"
	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/metrics"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/store"
)

// defaultCallTimeout bounds each remote call when Config.Timeout is unset.
const defaultCallTimeout = 25 * time.Second

// Outcome of reconciling one remote item.
const (
	actionInserted  = "inserted"
	actionUpdated   = "updated"
	actionUnchanged = "unchanged"
	actionIgnored   = "ignored"
	actionSkipped   = "skipped"
	actionFailed    = "write_failed"
)

// Config tunes a Reconciler.
type Config struct {
	MaxResults      int
	DraftMaxResults int
	Timeout         time.Duration
}

// Result summarizes one pass.
type Result struct {
	Fetched   int
	Drafts    int
	Inserted  int
	Updated   int
	Unchanged int
	Ignored   int // trash and draft-labelled messages
	Skipped   int // per-item failures
	// WriteFailures counts the skipped items whose local write failed, as
	// opposed to identity conflicts.
	WriteFailures int
}

func (r *Result) count(action string) {
	switch action {
	case actionInserted:
		r.Inserted++
	case actionUpdated:
		r.Updated++
	case actionUnchanged:
		r.Unchanged++
	case actionIgnored:
		r.Ignored++
	case actionSkipped:
		r.Skipped++
	case actionFailed:
		r.Skipped++
		r.WriteFailures++
	}
}

// Reconciler runs reconciliation passes for one account.
type Reconciler struct {
	client  mailbox.Client
	store   store.Store
	mapper  *identity.Mapper
	account *model.Account
	cfg     Config
	logger  *zap.Logger
}

// New creates a Reconciler mirroring client into s for account.
func New(
	client mailbox.Client,
	s store.Store,
	mapper *identity.Mapper,
	account *model.Account,
	cfg Config,
	logger *zap.Logger,
) *Reconciler {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 25
	}
	if cfg.DraftMaxResults <= 0 {
		cfg.DraftMaxResults = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}
	return &Reconciler{
		client:  client,
		store:   s,
		mapper:  mapper,
		account: account,
		cfg:     cfg,
		logger:  logger.With(zap.String("account", account.Address)),
	}
}

// Run executes one pass. Every remote read happens before the first local
// write, so a remote failure returns an error with the store untouched.
// Per-item failures are logged and counted in Result.Skipped. Nothing is
// ever deleted locally.
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	var res Result

	msgs, err := r.listRecent(ctx)
	if err != nil {
		return res, fmt.Errorf("fetching recent messages: %w", err)
	}
	drafts, err := r.listDrafts(ctx)
	if err != nil {
		return res, fmt.Errorf("fetching drafts: %w", err)
	}
	res.Fetched = len(msgs)
	res.Drafts = len(drafts)

	for _, rm := range msgs {
		action, err := r.applyMessage(ctx, rm)
		if err != nil {
			action = r.skip("message", zap.String("remote_id", rm.ID), err)
		}
		res.count(action)
		metrics.RecordReconciled("message", action)
	}

	for _, d := range drafts {
		action, err := r.applyDraft(ctx, d)
		if err != nil {
			action = r.skip("draft", zap.String("draft_id", d.ID), err)
		}
		res.count(action)
		metrics.RecordReconciled("draft", action)
	}

	r.logger.Debug("reconcile pass finished",
		zap.Int("fetched", res.Fetched),
		zap.Int("drafts", res.Drafts),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("write_failures", res.WriteFailures),
	)
	return res, nil
}

// skip logs a per-item failure. A failed local write is an error on our
// side; anything else is an identity mismatch the next pass may resolve.
func (r *Reconciler) skip(kind string, id zap.Field, err error) string {
	if IsLocalWriteError(err) {
		r.logger.Error("local write failed, skipping remote "+kind, id, zap.Error(err))
		return actionFailed
	}
	r.logger.Warn("skipping remote "+kind, id, zap.Error(err))
	return actionSkipped
}

func (r *Reconciler) listRecent(ctx context.Context) ([]mailbox.RemoteMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return r.client.ListRecent(ctx, r.cfg.MaxResults)
}

func (r *Reconciler) listDrafts(ctx context.Context) ([]mailbox.RemoteDraft, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return r.client.ListDrafts(ctx, r.cfg.DraftMaxResults)
}

// applyMessage mirrors one remote message into the store.
func (r *Reconciler) applyMessage(ctx context.Context, rm mailbox.RemoteMessage) (string, error) {
	st := StateFromLabels(rm.LabelIDs)
	if st.Trash || st.Draft {
		return actionIgnored, nil
	}
	if r.sentBySelf(rm) {
		st.Sent = true
	}

	local, err := r.mapper.Resolve(ctx, rm)
	if err != nil {
		return "", err
	}

	if local == nil {
		msg := newMessage(rm, r.account.ID, st)
		if _, err := r.store.InsertMessage(ctx, &msg); err != nil {
			return "", &LocalWriteError{Op: "insert", RemoteID: rm.ID, Err: err}
		}
		return actionInserted, nil
	}

	upd := Plan(st, local).Update()
	if local.ThreadID == "" && rm.ThreadID != "" {
		upd.ThreadID = &rm.ThreadID
	}

	changed, err := r.store.UpdateMessage(ctx, local.ID, upd)
	if err != nil {
		return "", &LocalWriteError{Op: "update", RemoteID: rm.ID, LocalID: local.ID, Err: err}
	}

	labelsChanged, err := r.store.SetMessageLabels(ctx, local.ID, rm.LabelIDs)
	if err != nil {
		return "", &LocalWriteError{Op: "labels", RemoteID: rm.ID, LocalID: local.ID, Err: err}
	}

	if len(local.Recipients) == 0 {
		if err := r.store.AddRecipients(ctx, local.ID, recipientsOf(rm)); err != nil {
			return "", &LocalWriteError{Op: "recipients", RemoteID: rm.ID, LocalID: local.ID, Err: err}
		}
	}

	if changed || labelsChanged {
		return actionUpdated, nil
	}
	return actionUnchanged, nil
}

// applyDraft attaches a remote draft to the message it replies to, or
// keeps it as a standalone draft row keyed by the draft id.
func (r *Reconciler) applyDraft(ctx context.Context, d mailbox.RemoteDraft) (string, error) {
	carrier, err := r.mapper.ResolveDraft(ctx, d.ID)
	if err != nil {
		return "", err
	}
	source, err := r.mapper.ResolveDraftSource(ctx, d)
	if err != nil {
		return "", err
	}

	target := source
	if carrier != nil && (target == nil || carrier.ID != target.ID) {
		// The draft id is unique, so a row that already carries it stays
		// its owner.
		target = carrier
	}

	if target == nil {
		return r.insertStandaloneDraft(ctx, d)
	}

	body := d.Message.Body
	var upd store.MessageUpdate
	if target.Draft == nil || *target.Draft != body {
		now := time.Now()
		upd.Draft = &body
		upd.DraftUpdatedAt = &now
	}
	if target.RemoteDraftID == nil || *target.RemoteDraftID != d.ID {
		upd.RemoteDraftID = &d.ID
	}
	if target.Type == model.TypeDraft {
		upd.Subject = &d.Message.Subject
		upd.Body = &body
		if d.Message.ThreadID != "" {
			upd.ThreadID = &d.Message.ThreadID
		}
	}

	changed, err := r.store.UpdateMessage(ctx, target.ID, upd)
	if err != nil {
		return "", &LocalWriteError{Op: "draft", RemoteID: d.ID, LocalID: target.ID, Err: err}
	}
	if changed {
		return actionUpdated, nil
	}
	return actionUnchanged, nil
}

func (r *Reconciler) insertStandaloneDraft(ctx context.Context, d mailbox.RemoteDraft) (string, error) {
	rm := d.Message
	body := rm.Body
	received := rm.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}

	msg := model.Message{
		AccountID:      r.account.ID,
		RemoteDraftID:  model.StringPtr(d.ID),
		ThreadID:       rm.ThreadID,
		Subject:        rm.Subject,
		Sender:         r.account.Address,
		Body:           body,
		Type:           model.TypeDraft,
		TypeOrigin:     model.OriginLabel,
		Priority:       model.PriorityLow,
		IsRead:         true,
		ReceivedAt:     received,
		Draft:          &body,
		DraftUpdatedAt: &received,
		Recipients:     recipientsOf(rm),
	}
	if _, err := r.store.InsertMessage(ctx, &msg); err != nil {
		return "", &LocalWriteError{Op: "insert draft", RemoteID: d.ID, Err: err}
	}
	return actionInserted, nil
}

// sentBySelf reports whether the account itself sent rm.
func (r *Reconciler) sentBySelf(rm mailbox.RemoteMessage) bool {
	if rm.HasLabel(mailbox.LabelSent) {
		return true
	}
	self := strings.ToLower(strings.TrimSpace(r.account.Address))
	if self == "" || rm.From == "" {
		return false
	}
	if addr, err := mail.ParseAddress(rm.From); err == nil {
		return strings.EqualFold(addr.Address, self)
	}
	return strings.EqualFold(strings.TrimSpace(rm.From), self)
}

func recipientsOf(rm mailbox.RemoteMessage) []model.Recipient {
	var out []model.Recipient
	for _, addr := range rm.To {
		out = append(out, model.Recipient{Kind: model.RecipientTo, Address: addr})
	}
	for _, addr := range rm.Cc {
		out = append(out, model.Recipient{Kind: model.RecipientCc, Address: addr})
	}
	return out
}
