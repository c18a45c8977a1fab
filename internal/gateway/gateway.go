// Package gateway applies user actions locally and mirrors them to the
// remote mailbox on a best-effort basis.
package gateway

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

const defaultRemoteTimeout = 25 * time.Second

// ReplyRequest is a user reply to a stored message. Empty To defaults to
// the original sender.
type ReplyRequest struct {
	Body        string
	To          []string
	Cc          []string
	Attachments []mailbox.Attachment
}

// ComposeRequest is a new message that does not answer a stored one.
type ComposeRequest struct {
	To          []string
	Cc          []string
	Subject     string
	Body        string
	Attachments []mailbox.Attachment
}

func (r ComposeRequest) outgoing() mailbox.OutgoingMessage {
	return mailbox.OutgoingMessage{
		To:          r.To,
		Cc:          r.Cc,
		Subject:     strings.TrimSpace(r.Subject),
		Body:        r.Body,
		Attachments: r.Attachments,
	}
}

// Gateway writes every mutation to the local store first. The remote
// mutation follows only for rows mirrored from the provider and only when
// a client is configured; its failure is logged and never returned.
type Gateway struct {
	store   store.Store
	client  mailbox.Client
	mapper  *identity.Mapper
	account *model.Account
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Gateway. client may be nil, in which case every action
// is local only.
func New(
	s store.Store,
	client mailbox.Client,
	mapper *identity.Mapper,
	account *model.Account,
	timeout time.Duration,
	logger *zap.Logger,
) *Gateway {
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &Gateway{
		store:   s,
		client:  client,
		mapper:  mapper,
		account: account,
		timeout: timeout,
		logger:  logger,
	}
}

// SetRead marks a message read or unread.
func (g *Gateway) SetRead(ctx context.Context, id int64, read bool) error {
	msg, err := g.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if _, err := g.store.UpdateMessage(ctx, id, store.MessageUpdate{IsRead: &read}); err != nil {
		return fmt.Errorf("marking message %d read=%t: %w", id, read, err)
	}

	g.remote(ctx, "set_read", id, remoteID(msg), func(ctx context.Context, c mailbox.Client) error {
		if read {
			return c.SetLabels(ctx, *msg.RemoteID, nil, []string{mailbox.LabelUnread})
		}
		return c.SetLabels(ctx, *msg.RemoteID, []string{mailbox.LabelUnread}, nil)
	})
	return nil
}

// MoveToSpam files a message as junk.
func (g *Gateway) MoveToSpam(ctx context.Context, id int64) error {
	msg, err := g.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}

	junk := model.TypeJunk
	origin := g.originFor(msg)
	upd := store.MessageUpdate{Type: &junk, TypeOrigin: &origin}
	if _, err := g.store.UpdateMessage(ctx, id, upd); err != nil {
		return fmt.Errorf("moving message %d to spam: %w", id, err)
	}

	g.remote(ctx, "move_to_spam", id, remoteID(msg), func(ctx context.Context, c mailbox.Client) error {
		return c.SetLabels(ctx, *msg.RemoteID,
			[]string{mailbox.LabelSpam}, []string{mailbox.LabelInbox})
	})
	return nil
}

// MoveToInbox takes a message out of spam or the archive. Junk rows
// become read-only; other types are kept.
func (g *Gateway) MoveToInbox(ctx context.Context, id int64) error {
	msg, err := g.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}

	if msg.Type == model.TypeJunk {
		readOnly := model.TypeReadOnly
		origin := g.originFor(msg)
		upd := store.MessageUpdate{Type: &readOnly, TypeOrigin: &origin}
		if _, err := g.store.UpdateMessage(ctx, id, upd); err != nil {
			return fmt.Errorf("moving message %d to inbox: %w", id, err)
		}
	}
	if _, err := g.store.SetArchived(ctx, id, false); err != nil {
		return fmt.Errorf("moving message %d to inbox: %w", id, err)
	}

	g.remote(ctx, "move_to_inbox", id, remoteID(msg), func(ctx context.Context, c mailbox.Client) error {
		return c.SetLabels(ctx, *msg.RemoteID,
			[]string{mailbox.LabelInbox}, []string{mailbox.LabelSpam})
	})
	return nil
}

// SetType records a manual triage decision. Junk delegates to MoveToSpam;
// every other triage type returns the message to the inbox, and
// read-only also marks it read.
func (g *Gateway) SetType(ctx context.Context, id int64, t model.MessageType) error {
	if !t.Triage() {
		return fmt.Errorf("cannot set message %d to type %q", id, t)
	}
	if t == model.TypeJunk {
		return g.MoveToSpam(ctx, id)
	}

	msg, err := g.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}

	origin := model.OriginLocal
	upd := store.MessageUpdate{Type: &t, TypeOrigin: &origin}
	remove := []string{mailbox.LabelSpam}
	if t == model.TypeReadOnly {
		read := true
		upd.IsRead = &read
		remove = append(remove, mailbox.LabelUnread)
	}
	if _, err := g.store.UpdateMessage(ctx, id, upd); err != nil {
		return fmt.Errorf("setting message %d type %s: %w", id, t, err)
	}

	g.remote(ctx, "set_type", id, remoteID(msg), func(ctx context.Context, c mailbox.Client) error {
		return c.SetLabels(ctx, *msg.RemoteID, []string{mailbox.LabelInbox}, remove)
	})
	return nil
}

// SendReply stores a sent reply on the original thread and, for mirrored
// messages, sends it through the provider and binds the returned id to
// the new row.
func (g *Gateway) SendReply(ctx context.Context, id int64, req ReplyRequest) (*model.Message, error) {
	if strings.TrimSpace(req.Body) == "" {
		return nil, fmt.Errorf("reply body must not be empty")
	}
	src, err := g.store.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	to := req.To
	if len(to) == 0 {
		to = []string{senderAddress(src.Sender)}
	}
	threadID := src.ThreadID
	if threadID == "" {
		threadID = fmt.Sprintf("thread-%d", src.ID)
	}

	reply := model.Message{
		AccountID:  g.account.ID,
		ThreadID:   threadID,
		Subject:    ReplySubject(src.Subject),
		Sender:     g.account.Address,
		Body:       req.Body,
		Type:       model.TypeSent,
		TypeOrigin: model.OriginLocal,
		Priority:   model.PriorityLow,
		IsRead:     true,
		ReceivedAt: time.Now(),
	}
	for _, addr := range to {
		reply.Recipients = append(reply.Recipients, model.Recipient{Kind: model.RecipientTo, Address: addr})
	}
	for _, addr := range req.Cc {
		reply.Recipients = append(reply.Recipients, model.Recipient{Kind: model.RecipientCc, Address: addr})
	}

	replyID, err := g.store.InsertMessage(ctx, &reply)
	if err != nil {
		return nil, fmt.Errorf("storing reply to message %d: %w", id, err)
	}

	g.remote(ctx, "send_reply", replyID, remoteID(src), func(ctx context.Context, c mailbox.Client) error {
		return g.sendAndConfirm(ctx, c, replyID, mailbox.OutgoingMessage{
			To:          to,
			Cc:          req.Cc,
			Subject:     reply.Subject,
			Body:        req.Body,
			ThreadID:    src.ThreadID,
			ReplyToID:   *src.RemoteID,
			Attachments: req.Attachments,
		})
	})

	return g.store.GetMessage(ctx, replyID)
}

// SaveDraft stores draft text on a message and mirrors it to the
// provider draft: a reply draft for mirrored messages, or the draft
// itself for standalone draft rows.
func (g *Gateway) SaveDraft(ctx context.Context, id int64, text string) error {
	msg, err := g.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	upd := store.MessageUpdate{Draft: &text, DraftUpdatedAt: &now}
	if msg.Type == model.TypeDraft {
		upd.Body = &text
	}
	if _, err := g.store.UpdateMessage(ctx, id, upd); err != nil {
		return fmt.Errorf("saving draft for message %d: %w", id, err)
	}

	if msg.Type == model.TypeDraft {
		out := mailbox.OutgoingMessage{
			To:       addressesOf(msg, model.RecipientTo),
			Cc:       addressesOf(msg, model.RecipientCc),
			Subject:  msg.Subject,
			Body:     text,
			ThreadID: msg.ThreadID,
		}
		g.remote(ctx, "save_draft", id, uploadKey(draftKey(msg)), func(ctx context.Context, c mailbox.Client) error {
			return g.upsertDraft(ctx, c, msg, out)
		})
		return nil
	}

	g.remote(ctx, "save_draft", id, remoteID(msg), func(ctx context.Context, c mailbox.Client) error {
		return g.upsertDraft(ctx, c, msg, mailbox.OutgoingMessage{
			To:        []string{senderAddress(msg.Sender)},
			Subject:   ReplySubject(msg.Subject),
			Body:      text,
			ThreadID:  msg.ThreadID,
			ReplyToID: *msg.RemoteID,
		})
	})
	return nil
}

// Archive files a message out of the inbox view and removes the remote
// INBOX label.
func (g *Gateway) Archive(ctx context.Context, id int64) error {
	msg, err := g.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if _, err := g.store.SetArchived(ctx, id, true); err != nil {
		return fmt.Errorf("archiving message %d: %w", id, err)
	}

	g.remote(ctx, "archive", id, remoteID(msg), func(ctx context.Context, c mailbox.Client) error {
		return c.SetLabels(ctx, *msg.RemoteID, nil, []string{mailbox.LabelInbox})
	})
	return nil
}

// Trash hides a message from every view and moves the remote copy to the
// provider's trash. The local row is kept so a later pass still matches
// it by remote id.
func (g *Gateway) Trash(ctx context.Context, id int64) error {
	msg, err := g.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg.Type == model.TypeDraft {
		return g.DeleteDraft(ctx, id)
	}
	if _, err := g.store.MarkTrashed(ctx, id); err != nil {
		return fmt.Errorf("trashing message %d: %w", id, err)
	}

	g.remote(ctx, "trash", id, remoteID(msg), func(ctx context.Context, c mailbox.Client) error {
		return c.Trash(ctx, *msg.RemoteID)
	})
	return nil
}

// DeleteDraft discards the draft on a message and the matching provider
// draft. A standalone draft row is trashed along with its text.
func (g *Gateway) DeleteDraft(ctx context.Context, id int64) error {
	msg, err := g.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if !msg.HasDraft() && msg.RemoteDraftID == nil {
		return fmt.Errorf("message %d has no draft", id)
	}

	if _, err := g.store.ClearDraft(ctx, id); err != nil {
		return fmt.Errorf("deleting draft of message %d: %w", id, err)
	}
	if msg.Type == model.TypeDraft {
		if _, err := g.store.MarkTrashed(ctx, id); err != nil {
			return fmt.Errorf("deleting draft message %d: %w", id, err)
		}
	}

	g.remote(ctx, "delete_draft", id, draftKey(msg), func(ctx context.Context, c mailbox.Client) error {
		return c.DeleteDraft(ctx, *msg.RemoteDraftID)
	})
	return nil
}

// Compose sends a new message that does not answer a stored one.
func (g *Gateway) Compose(ctx context.Context, req ComposeRequest) (*model.Message, error) {
	msg, err := g.insertComposed(ctx, req, model.TypeSent)
	if err != nil {
		return nil, err
	}

	g.remote(ctx, "compose", msg.ID, uploadKey(""), func(ctx context.Context, c mailbox.Client) error {
		return g.sendAndConfirm(ctx, c, msg.ID, req.outgoing())
	})
	return g.store.GetMessage(ctx, msg.ID)
}

// ComposeDraft stores a new standalone draft and creates the provider
// draft for it.
func (g *Gateway) ComposeDraft(ctx context.Context, req ComposeRequest) (*model.Message, error) {
	msg, err := g.insertComposed(ctx, req, model.TypeDraft)
	if err != nil {
		return nil, err
	}

	g.remote(ctx, "compose_draft", msg.ID, uploadKey(""), func(ctx context.Context, c mailbox.Client) error {
		return g.upsertDraft(ctx, c, msg, req.outgoing())
	})
	return g.store.GetMessage(ctx, msg.ID)
}

func (g *Gateway) insertComposed(ctx context.Context, req ComposeRequest, t model.MessageType) (*model.Message, error) {
	if len(req.To) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, fmt.Errorf("message body must not be empty")
	}

	now := time.Now()
	msg := model.Message{
		AccountID:  g.account.ID,
		Subject:    strings.TrimSpace(req.Subject),
		Sender:     g.account.Address,
		Body:       req.Body,
		Type:       t,
		TypeOrigin: model.OriginLocal,
		Priority:   model.PriorityLow,
		IsRead:     true,
		ReceivedAt: now,
	}
	if t == model.TypeDraft {
		msg.Draft = model.StringPtr(req.Body)
		msg.DraftUpdatedAt = &now
	}
	for _, addr := range req.To {
		msg.Recipients = append(msg.Recipients, model.Recipient{Kind: model.RecipientTo, Address: addr})
	}
	for _, addr := range req.Cc {
		msg.Recipients = append(msg.Recipients, model.Recipient{Kind: model.RecipientCc, Address: addr})
	}

	if _, err := g.store.InsertMessage(ctx, &msg); err != nil {
		return nil, fmt.Errorf("storing composed message: %w", err)
	}
	return &msg, nil
}

// sendAndConfirm sends out and binds the receipt to localID. A failed
// binding is logged; the sent row stays local.
func (g *Gateway) sendAndConfirm(ctx context.Context, c mailbox.Client, localID int64, out mailbox.OutgoingMessage) error {
	receipt, err := c.Send(ctx, out)
	if err != nil {
		return err
	}
	if err := g.mapper.ConfirmSend(ctx, localID, receipt); err != nil {
		g.logger.Warn("could not bind sent message",
			zap.Int64("local_id", localID),
			zap.String("remote_id", receipt.RemoteID),
			zap.Error(err),
		)
	}
	return nil
}

// upsertDraft creates or replaces the provider draft of msg and records a
// newly assigned draft id.
func (g *Gateway) upsertDraft(ctx context.Context, c mailbox.Client, msg *model.Message, out mailbox.OutgoingMessage) error {
	var draftID string
	if msg.RemoteDraftID != nil {
		draftID = *msg.RemoteDraftID
	}
	receipt, err := c.UpsertDraft(ctx, mailbox.DraftRequest{DraftID: draftID, Message: out})
	if err != nil {
		return err
	}
	if receipt.DraftID == "" || receipt.DraftID == draftID {
		return nil
	}

	upd := store.MessageUpdate{RemoteDraftID: &receipt.DraftID}
	if msg.Type == model.TypeDraft && msg.ThreadID == "" && receipt.ThreadID != "" {
		upd.ThreadID = &receipt.ThreadID
	}
	if _, err := g.store.UpdateMessage(ctx, msg.ID, upd); err != nil {
		g.logger.Warn("could not record remote draft id",
			zap.Int64("local_id", msg.ID),
			zap.String("draft_id", receipt.DraftID),
			zap.Error(err),
		)
	}
	return nil
}

// draftKey names the provider draft attached to msg, or "".
func draftKey(msg *model.Message) string {
	if msg.RemoteDraftID != nil {
		return *msg.RemoteDraftID
	}
	return ""
}

// uploadKey keys the remote half of an action that may create the
// provider object: the existing id, or "new".
func uploadKey(existing string) string {
	if existing != "" {
		return existing
	}
	return "new"
}

// remote runs fn against the client for the provider object remoteKey
// names, bounded by the gateway timeout. Locally originated rows (empty
// key) and a missing client skip it. Failures are logged and counted,
// never returned.
func (g *Gateway) remote(
	ctx context.Context,
	action string,
	localID int64,
	remoteKey string,
	fn func(context.Context, mailbox.Client) error,
) {
	if g.client == nil || remoteKey == "" {
		metrics.RecordOutbound(action, "skipped")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := fn(ctx, g.client); err != nil {
		metrics.RecordOutbound(action, "failed")
		fields := []zap.Field{
			zap.String("action", action),
			zap.Int64("local_id", localID),
			zap.String("remote", remoteKey),
			zap.Bool("retriable", mailbox.IsRetriable(err)),
			zap.Error(err),
		}
		if mailbox.IsAuthUnavailable(err) {
			g.logger.Info("remote mutation skipped, no credentials", fields...)
			return
		}
		g.logger.Warn("remote mutation failed", fields...)
		return
	}
	metrics.RecordOutbound(action, "success")
}

// originFor returns the type origin for a gateway-driven move: rows
// mirrored from the provider follow labels from now on.
func (g *Gateway) originFor(msg *model.Message) model.TypeOrigin {
	if msg.HasRemote() {
		return model.OriginLabel
	}
	return model.OriginLocal
}

// ReplySubject prefixes subject with "Re: " unless it already has one.
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

func remoteID(msg *model.Message) string {
	if msg.HasRemote() {
		return *msg.RemoteID
	}
	return ""
}

func addressesOf(msg *model.Message, kind string) []string {
	var out []string
	for _, r := range msg.Recipients {
		if r.Kind == kind {
			out = append(out, r.Address)
		}
	}
	return out
}

// senderAddress extracts the bare address from a From header value.
func senderAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(from)
}
