package gateway_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/mail-triage/internal/gateway"
	"github.com/nhle/mail-triage/internal/identity"
	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/reconcile"
	"github.com/nhle/mail-triage/internal/store"
	"github.com/nhle/mail-triage/tests/testutil"
)

type fixture struct {
	store   *store.SQLiteStore
	account *model.Account
	mailbox *testutil.FakeMailbox
	mapper  *identity.Mapper
	gw      *gateway.Gateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := testutil.NewTestStore(t)
	acct := testutil.NewTestAccount(t, s)
	fake := testutil.NewFakeMailbox()
	mapper := identity.NewMapper(s, zap.NewNop())
	return &fixture{
		store:   s,
		account: acct,
		mailbox: fake,
		mapper:  mapper,
		gw:      gateway.New(s, fake, mapper, acct, time.Second, zap.NewNop()),
	}
}

// mirrored seeds a local row and the matching remote message.
func (f *fixture) mirrored(t *testing.T, remoteID, thread string, typ model.MessageType, labels ...string) *model.Message {
	t.Helper()
	f.mailbox.AddMessage(mailbox.RemoteMessage{
		ID:       remoteID,
		ThreadID: thread,
		LabelIDs: labels,
		Subject:  "Project update",
		From:     "Alice <alice@example.com>",
		To:       []string{testutil.SelfAddress},
		Body:     "Status?",
	})
	return testutil.SeedMessage(t, f.store, f.account, model.Message{
		RemoteID: model.StringPtr(remoteID),
		ThreadID: thread,
		Subject:  "Project update",
		Sender:   "Alice <alice@example.com>",
		Body:     "Status?",
		Type:     typ,
		Labels:   labels,
		Recipients: []model.Recipient{
			{Kind: model.RecipientTo, Address: testutil.SelfAddress},
		},
	})
}

func (f *fixture) get(t *testing.T, id int64) *model.Message {
	t.Helper()
	msg, err := f.store.GetMessage(context.Background(), id)
	require.NoError(t, err)
	return msg
}

func TestSetRead(t *testing.T) {
	f := newFixture(t)
	msg := f.mirrored(t, "mail-1", "thread-1", model.TypeReadOnly, "INBOX", "UNREAD")
	ctx := context.Background()

	require.NoError(t, f.gw.SetRead(ctx, msg.ID, true))
	assert.True(t, f.get(t, msg.ID).IsRead)
	remote, _ := f.mailbox.Message("mail-1")
	assert.NotContains(t, remote.LabelIDs, mailbox.LabelUnread)

	require.NoError(t, f.gw.SetRead(ctx, msg.ID, false))
	assert.False(t, f.get(t, msg.ID).IsRead)
	remote, _ = f.mailbox.Message("mail-1")
	assert.Contains(t, remote.LabelIDs, mailbox.LabelUnread)
}

func TestMoveToSpamAndBack(t *testing.T) {
	f := newFixture(t)
	msg := f.mirrored(t, "mail-5", "thread-5", model.TypeResponseNeeded, "INBOX")
	ctx := context.Background()

	require.NoError(t, f.gw.MoveToSpam(ctx, msg.ID))
	got := f.get(t, msg.ID)
	assert.Equal(t, model.TypeJunk, got.Type)
	assert.Equal(t, model.OriginLabel, got.TypeOrigin)
	remote, _ := f.mailbox.Message("mail-5")
	assert.Equal(t, []string{mailbox.LabelSpam}, remote.LabelIDs)

	require.NoError(t, f.gw.MoveToInbox(ctx, msg.ID))
	assert.Equal(t, model.TypeReadOnly, f.get(t, msg.ID).Type)
	remote, _ = f.mailbox.Message("mail-5")
	assert.Equal(t, []string{mailbox.LabelInbox}, remote.LabelIDs)
}

func TestMoveToInboxKeepsNonJunkType(t *testing.T) {
	f := newFixture(t)
	msg := f.mirrored(t, "mail-2", "thread-2", model.TypeJunkUncertain, "SPAM")

	require.NoError(t, f.gw.MoveToInbox(context.Background(), msg.ID))
	assert.Equal(t, model.TypeJunkUncertain, f.get(t, msg.ID).Type)
}

func TestSetType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("read-only marks read", func(t *testing.T) {
		msg := f.mirrored(t, "mail-1", "thread-1", model.TypeResponseNeeded, "INBOX", "UNREAD")
		require.NoError(t, f.gw.SetType(ctx, msg.ID, model.TypeReadOnly))

		got := f.get(t, msg.ID)
		assert.Equal(t, model.TypeReadOnly, got.Type)
		assert.Equal(t, model.OriginLocal, got.TypeOrigin)
		assert.True(t, got.IsRead)
		remote, _ := f.mailbox.Message("mail-1")
		assert.Equal(t, []string{mailbox.LabelInbox}, remote.LabelIDs)
	})

	t.Run("junk goes to spam", func(t *testing.T) {
		msg := f.mirrored(t, "mail-2", "thread-2", model.TypeReadOnly, "INBOX")
		require.NoError(t, f.gw.SetType(ctx, msg.ID, model.TypeJunk))
		assert.Equal(t, model.TypeJunk, f.get(t, msg.ID).Type)
		remote, _ := f.mailbox.Message("mail-2")
		assert.Contains(t, remote.LabelIDs, mailbox.LabelSpam)
	})

	t.Run("sent is not a triage type", func(t *testing.T) {
		msg := f.mirrored(t, "mail-3", "thread-3", model.TypeReadOnly, "INBOX")
		assert.Error(t, f.gw.SetType(ctx, msg.ID, model.TypeSent))
	})
}

func TestLocalOnlyRowsNeverReachRemote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed := testutil.SeedMessage(t, f.store, f.account, model.Message{
		ThreadID: "thread-seed",
		Subject:  "Seeded",
		Sender:   "bob@example.com",
		Body:     "hello",
	})

	require.NoError(t, f.gw.SetRead(ctx, seed.ID, true))
	require.NoError(t, f.gw.MoveToSpam(ctx, seed.ID))
	require.NoError(t, f.gw.SaveDraft(ctx, seed.ID, "draft"))
	_, err := f.gw.SendReply(ctx, seed.ID, gateway.ReplyRequest{Body: "hi bob"})
	require.NoError(t, err)

	got := f.get(t, seed.ID)
	assert.True(t, got.IsRead)
	assert.Equal(t, model.TypeJunk, got.Type)
	assert.Equal(t, model.OriginLocal, got.TypeOrigin)

	assert.Empty(t, f.mailbox.LabelCalls)
	assert.Empty(t, f.mailbox.Sent)
	assert.Empty(t, f.mailbox.DraftReqs)
}

func TestRemoteFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	msg := f.mirrored(t, "mail-1", "thread-1", model.TypeReadOnly, "INBOX", "UNREAD")
	f.mailbox.Fail("labels", &mailbox.UnavailableError{Provider: "fake", Op: "labels", Err: errors.New("503")})

	require.NoError(t, f.gw.SetRead(context.Background(), msg.ID, true))
	assert.True(t, f.get(t, msg.ID).IsRead)
	assert.Len(t, f.mailbox.LabelCalls, 1)
}

func TestNilClientIsLocalOnly(t *testing.T) {
	f := newFixture(t)
	gw := gateway.New(f.store, nil, f.mapper, f.account, 0, zap.NewNop())
	msg := f.mirrored(t, "mail-1", "thread-1", model.TypeReadOnly, "INBOX", "UNREAD")

	require.NoError(t, gw.SetRead(context.Background(), msg.ID, true))
	assert.True(t, f.get(t, msg.ID).IsRead)
	assert.Empty(t, f.mailbox.LabelCalls)
}

func TestMissingMessage(t *testing.T) {
	f := newFixture(t)
	err := f.gw.SetRead(context.Background(), 404, true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSendReplyOnThread(t *testing.T) {
	f := newFixture(t)
	src := f.mirrored(t, "mail-1", "thread-1", model.TypeResponseNeeded, "INBOX")
	ctx := context.Background()

	reply, err := f.gw.SendReply(ctx, src.ID, gateway.ReplyRequest{
		Body: "Done, see attached.",
		Cc:   []string{"carol@example.com"},
		Attachments: []mailbox.Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "thread-1", reply.ThreadID)
	assert.Equal(t, "Re: Project update", reply.Subject)
	assert.Equal(t, model.TypeSent, reply.Type)
	assert.Equal(t, testutil.SelfAddress, reply.Sender)
	require.NotNil(t, reply.RemoteID, "send receipt binds the remote id")
	assert.Equal(t, "sent-1", *reply.RemoteID)
	assert.Equal(t, []model.Recipient{
		{Kind: model.RecipientTo, Address: "alice@example.com"},
		{Kind: model.RecipientCc, Address: "carol@example.com"},
	}, reply.Recipients)

	require.Len(t, f.mailbox.Sent, 1)
	out := f.mailbox.Sent[0]
	assert.Equal(t, "thread-1", out.ThreadID)
	assert.Equal(t, "mail-1", out.ReplyToID)
	assert.Equal(t, []string{"alice@example.com"}, out.To)
	assert.Len(t, out.Attachments, 1)

	// The next pass recognises the sent message instead of duplicating it.
	rec := reconcile.New(f.mailbox, f.store, f.mapper, f.account, reconcile.Config{Timeout: time.Second}, zap.NewNop())
	res, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)

	count, err := f.store.CountMessages(ctx, store.MessageFilter{Types: []model.MessageType{model.TypeSent}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The reply shows up in the sent view, never in the inbox.
	inbox, err := f.store.ListMessages(ctx, store.InboxFilter())
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, src.ID, inbox[0].ID)

	sent, err := f.store.ListMessages(ctx, store.MessageFilter{Types: []model.MessageType{model.TypeSent}})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, reply.ID, sent[0].ID)
}

func TestSendReplyWithPassInFlight(t *testing.T) {
	f := newFixture(t)
	src := f.mirrored(t, "mail-1", "thread-1", model.TypeResponseNeeded, "INBOX")
	ctx := context.Background()
	rec := reconcile.New(f.mailbox, f.store, f.mapper, f.account, reconcile.Config{Timeout: time.Second}, zap.NewNop())

	// A pass lands between the provider accepting the message and the
	// receipt being bound, so it mirrors the sent message first.
	var inserted int
	f.mailbox.OnSend = func(mailbox.SendReceipt) {
		res, err := rec.Run(ctx)
		require.NoError(t, err)
		inserted = res.Inserted
	}

	reply, err := f.gw.SendReply(ctx, src.ID, gateway.ReplyRequest{Body: "On it."})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	require.NotNil(t, reply.RemoteID)
	assert.Equal(t, "sent-1", *reply.RemoteID)
	assert.Equal(t, []string{mailbox.LabelSent}, reply.Labels)

	f.mailbox.OnSend = nil
	res, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)

	sent, err := f.store.ListMessages(ctx, store.MessageFilter{Types: []model.MessageType{model.TypeSent}})
	require.NoError(t, err)
	require.Len(t, sent, 1, "one reply leaves one sent row")
	assert.Equal(t, reply.ID, sent[0].ID)
}

func TestSendReplyLocalThreadFallback(t *testing.T) {
	f := newFixture(t)
	seed := testutil.SeedMessage(t, f.store, f.account, model.Message{Subject: "Re: hello", Sender: "dan@example.com"})

	reply, err := f.gw.SendReply(context.Background(), seed.ID, gateway.ReplyRequest{Body: "ok"})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("thread-%d", seed.ID), reply.ThreadID)
	assert.Equal(t, "Re: hello", reply.Subject)
	assert.Nil(t, reply.RemoteID)
}

func TestSendReplyRemoteFailureKeepsLocalRow(t *testing.T) {
	f := newFixture(t)
	src := f.mirrored(t, "mail-1", "thread-1", model.TypeResponseNeeded, "INBOX")
	f.mailbox.Fail("send", &mailbox.UnavailableError{Provider: "fake", Op: "send", Err: errors.New("quota")})

	reply, err := f.gw.SendReply(context.Background(), src.ID, gateway.ReplyRequest{Body: "ok"})
	require.NoError(t, err)
	assert.Nil(t, reply.RemoteID)
	assert.Equal(t, model.TypeSent, reply.Type)
}

func TestSendReplyRejectsEmptyBody(t *testing.T) {
	f := newFixture(t)
	src := f.mirrored(t, "mail-1", "thread-1", model.TypeResponseNeeded, "INBOX")

	_, err := f.gw.SendReply(context.Background(), src.ID, gateway.ReplyRequest{Body: "  "})
	assert.Error(t, err)
}

func TestSaveDraft(t *testing.T) {
	f := newFixture(t)
	src := f.mirrored(t, "mail-1", "thread-1", model.TypeResponseNeeded, "INBOX")
	ctx := context.Background()

	require.NoError(t, f.gw.SaveDraft(ctx, src.ID, "First take"))
	got := f.get(t, src.ID)
	assert.Equal(t, "First take", *got.Draft)
	require.NotNil(t, got.RemoteDraftID)
	draftID := *got.RemoteDraftID

	require.NoError(t, f.gw.SaveDraft(ctx, src.ID, "Second take"))
	got = f.get(t, src.ID)
	assert.Equal(t, "Second take", *got.Draft)
	assert.Equal(t, draftID, *got.RemoteDraftID, "the same remote draft is updated")

	require.Len(t, f.mailbox.DraftReqs, 2)
	assert.Empty(t, f.mailbox.DraftReqs[0].DraftID)
	assert.Equal(t, draftID, f.mailbox.DraftReqs[1].DraftID)
	assert.Equal(t, "mail-1", f.mailbox.DraftReqs[1].Message.ReplyToID)

	// A reconcile pass leaves the draft where it is.
	rec := reconcile.New(f.mailbox, f.store, f.mapper, f.account, reconcile.Config{Timeout: time.Second}, zap.NewNop())
	_, err := rec.Run(ctx)
	require.NoError(t, err)
	got = f.get(t, src.ID)
	assert.Equal(t, "Second take", *got.Draft)
	count, err := f.store.CountMessages(ctx, store.MessageFilter{Types: []model.MessageType{model.TypeDraft}})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReadStateConvergesAfterReconcile(t *testing.T) {
	f := newFixture(t)
	msg := f.mirrored(t, "mail-1", "thread-1", model.TypeReadOnly, "INBOX", "UNREAD")
	ctx := context.Background()

	require.NoError(t, f.gw.SetRead(ctx, msg.ID, true))

	rec := reconcile.New(f.mailbox, f.store, f.mapper, f.account, reconcile.Config{Timeout: time.Second}, zap.NewNop())
	_, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.True(t, f.get(t, msg.ID).IsRead)
}

func TestReplySubject(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Hello", "Re: Hello"},
		{"Re: Hello", "Re: Hello"},
		{"RE: Hello", "RE: Hello"},
		{"  spaced  ", "Re: spaced"},
		{"", "Re: "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gateway.ReplySubject(tt.in), tt.in)
	}
}

func TestArchive(t *testing.T) {
	f := newFixture(t)
	msg := f.mirrored(t, "mail-1", "thread-1", model.TypeReadOnly, "INBOX")
	ctx := context.Background()

	require.NoError(t, f.gw.Archive(ctx, msg.ID))
	assert.True(t, f.get(t, msg.ID).Archived())
	remote, _ := f.mailbox.Message("mail-1")
	assert.NotContains(t, remote.LabelIDs, mailbox.LabelInbox)

	inbox, err := f.store.ListMessages(ctx, store.InboxFilter())
	require.NoError(t, err)
	assert.Empty(t, inbox)
	archived, err := f.store.ListMessages(ctx, store.ArchiveFilter())
	require.NoError(t, err)
	require.Len(t, archived, 1)

	// A pass does not pull the row back into the inbox.
	rec := reconcile.New(f.mailbox, f.store, f.mapper, f.account, reconcile.Config{Timeout: time.Second}, zap.NewNop())
	_, err = rec.Run(ctx)
	require.NoError(t, err)
	assert.True(t, f.get(t, msg.ID).Archived())

	require.NoError(t, f.gw.MoveToInbox(ctx, msg.ID))
	assert.False(t, f.get(t, msg.ID).Archived())
	remote, _ = f.mailbox.Message("mail-1")
	assert.Contains(t, remote.LabelIDs, mailbox.LabelInbox)
}

func TestTrash(t *testing.T) {
	f := newFixture(t)
	msg := f.mirrored(t, "mail-1", "thread-1", model.TypeJunk, "SPAM")
	ctx := context.Background()

	require.NoError(t, f.gw.Trash(ctx, msg.ID))
	got := f.get(t, msg.ID)
	assert.True(t, got.Trashed())
	assert.Equal(t, []string{"mail-1"}, f.mailbox.Trashed)

	visible, err := f.store.ListMessages(ctx, store.MessageFilter{})
	require.NoError(t, err)
	assert.Empty(t, visible)
	trashed, err := f.store.ListMessages(ctx, store.MessageFilter{Trashed: true})
	require.NoError(t, err)
	require.Len(t, trashed, 1)

	rec := reconcile.New(f.mailbox, f.store, f.mapper, f.account, reconcile.Config{Timeout: time.Second}, zap.NewNop())
	res, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
	assert.True(t, f.get(t, msg.ID).Trashed(), "the row is kept, not deleted")
}

func TestTrashRemoteFailureKeepsLocalDecision(t *testing.T) {
	f := newFixture(t)
	msg := f.mirrored(t, "mail-1", "thread-1", model.TypeReadOnly, "INBOX")
	f.mailbox.Fail("trash", &mailbox.UnavailableError{Provider: "fake", Op: "trash", Retriable: true, Err: errors.New("503")})
	ctx := context.Background()

	require.NoError(t, f.gw.Trash(ctx, msg.ID))

	rec := reconcile.New(f.mailbox, f.store, f.mapper, f.account, reconcile.Config{Timeout: time.Second}, zap.NewNop())
	_, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.True(t, f.get(t, msg.ID).Trashed())
}

func TestDeleteReplyDraft(t *testing.T) {
	f := newFixture(t)
	src := f.mirrored(t, "mail-1", "thread-1", model.TypeResponseNeeded, "INBOX")
	ctx := context.Background()

	assert.Error(t, f.gw.DeleteDraft(ctx, src.ID), "nothing to delete yet")

	require.NoError(t, f.gw.SaveDraft(ctx, src.ID, "Maybe"))
	draftID := *f.get(t, src.ID).RemoteDraftID

	require.NoError(t, f.gw.DeleteDraft(ctx, src.ID))
	got := f.get(t, src.ID)
	assert.Nil(t, got.Draft)
	assert.Nil(t, got.RemoteDraftID)
	assert.False(t, got.Trashed(), "the message itself stays")
	assert.Equal(t, []string{draftID}, f.mailbox.DeletedDrafts)
	assert.Empty(t, f.mailbox.Drafts())

	rec := reconcile.New(f.mailbox, f.store, f.mapper, f.account, reconcile.Config{Timeout: time.Second}, zap.NewNop())
	_, err := rec.Run(ctx)
	require.NoError(t, err)
	drafts, err := f.store.ListMessages(ctx, store.DraftsFilter())
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestComposeAndSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.gw.Compose(ctx, gateway.ComposeRequest{
		To:      []string{"erin@example.com"},
		Cc:      []string{"frank@example.com"},
		Subject: " Lunch ",
		Body:    "Thursday?",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TypeSent, msg.Type)
	assert.Equal(t, "Lunch", msg.Subject)
	require.NotNil(t, msg.RemoteID)
	assert.Equal(t, "sent-1", *msg.RemoteID)
	assert.Equal(t, "thread-sent-1", msg.ThreadID)
	assert.Len(t, msg.Recipients, 2)

	require.Len(t, f.mailbox.Sent, 1)
	assert.Empty(t, f.mailbox.Sent[0].ReplyToID)
	assert.Equal(t, "Lunch", f.mailbox.Sent[0].Subject)

	rec := reconcile.New(f.mailbox, f.store, f.mapper, f.account, reconcile.Config{Timeout: time.Second}, zap.NewNop())
	res, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)

	_, err = f.gw.Compose(ctx, gateway.ComposeRequest{Body: "no one"})
	assert.Error(t, err)
	_, err = f.gw.Compose(ctx, gateway.ComposeRequest{To: []string{"erin@example.com"}, Body: " "})
	assert.Error(t, err)
}

func TestComposeOffline(t *testing.T) {
	f := newFixture(t)
	gw := gateway.New(f.store, nil, f.mapper, f.account, 0, zap.NewNop())

	msg, err := gw.Compose(context.Background(), gateway.ComposeRequest{
		To:   []string{"erin@example.com"},
		Body: "Thursday?",
	})
	require.NoError(t, err)
	assert.Nil(t, msg.RemoteID)
	assert.Equal(t, model.TypeSent, msg.Type)
	assert.Empty(t, f.mailbox.Sent)
}

func TestComposeDraftLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := reconcile.New(f.mailbox, f.store, f.mapper, f.account, reconcile.Config{Timeout: time.Second}, zap.NewNop())

	msg, err := f.gw.ComposeDraft(ctx, gateway.ComposeRequest{
		To:      []string{"erin@example.com"},
		Subject: "Lunch",
		Body:    "Thursday?",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TypeDraft, msg.Type)
	assert.Equal(t, "Thursday?", *msg.Draft)
	require.NotNil(t, msg.RemoteDraftID)
	draftID := *msg.RemoteDraftID

	res, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Inserted, "the pass finds the draft already carried")

	require.NoError(t, f.gw.SaveDraft(ctx, msg.ID, "Friday?"))
	got := f.get(t, msg.ID)
	assert.Equal(t, "Friday?", got.Body)
	require.Len(t, f.mailbox.DraftReqs, 2)
	assert.Equal(t, draftID, f.mailbox.DraftReqs[1].DraftID)
	assert.Equal(t, []string{"erin@example.com"}, f.mailbox.DraftReqs[1].Message.To)

	drafts, err := f.store.ListMessages(ctx, store.DraftsFilter())
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	require.NoError(t, f.gw.DeleteDraft(ctx, msg.ID))
	assert.True(t, f.get(t, msg.ID).Trashed())
	assert.Equal(t, []string{draftID}, f.mailbox.DeletedDrafts)

	res, err = rec.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
	drafts, err = f.store.ListMessages(ctx, store.DraftsFilter())
	require.NoError(t, err)
	assert.Empty(t, drafts)
}
