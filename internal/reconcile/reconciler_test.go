package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

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
	rec     *reconcile.Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := testutil.NewTestStore(t)
	acct := testutil.NewTestAccount(t, s)
	fake := testutil.NewFakeMailbox()
	logger := zap.NewNop()
	rec := reconcile.New(fake, s, identity.NewMapper(s, logger), acct, reconcile.Config{
		MaxResults:      25,
		DraftMaxResults: 50,
		Timeout:         time.Second,
	}, logger)
	return &fixture{store: s, account: acct, mailbox: fake, rec: rec}
}

func (f *fixture) run(t *testing.T) reconcile.Result {
	t.Helper()
	res, err := f.rec.Run(context.Background())
	require.NoError(t, err)
	return res
}

func (f *fixture) byRemote(t *testing.T, remoteID string) *model.Message {
	t.Helper()
	msg, err := f.store.GetMessageByRemoteID(context.Background(), remoteID)
	require.NoError(t, err)
	return msg
}

func remote(id, thread string, labels ...string) mailbox.RemoteMessage {
	return mailbox.RemoteMessage{
		ID:         id,
		ThreadID:   thread,
		LabelIDs:   labels,
		Subject:    "Subject " + id,
		From:       "Sender <sender@example.com>",
		To:         []string{testutil.SelfAddress},
		Body:       "Body of " + id,
		ReceivedAt: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRunInsertsNewMessages(t *testing.T) {
	f := newFixture(t)
	f.mailbox.AddMessage(remote("mail-1", "thread-1", "INBOX", "UNREAD"))
	f.mailbox.AddMessage(remote("mail-2", "thread-2", "SPAM"))
	f.mailbox.AddMessage(remote("mail-3", "thread-3", "SENT"))

	res := f.run(t)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 3, res.Inserted)

	m1 := f.byRemote(t, "mail-1")
	assert.Equal(t, model.TypeReadOnly, m1.Type)
	assert.False(t, m1.IsRead)
	assert.Equal(t, model.PriorityLow, m1.Priority)
	assert.Nil(t, m1.Summary)
	assert.Equal(t, []string{"INBOX", "UNREAD"}, m1.Labels)
	assert.Equal(t, []model.Recipient{{Kind: model.RecipientTo, Address: testutil.SelfAddress}}, m1.Recipients)

	assert.Equal(t, model.TypeJunk, f.byRemote(t, "mail-2").Type)
	assert.Equal(t, model.TypeSent, f.byRemote(t, "mail-3").Type)
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.mailbox.AddMessage(remote("mail-1", "thread-1", "INBOX", "UNREAD"))
	f.mailbox.AddMessage(remote("mail-2", "thread-2", "INBOX"))
	f.mailbox.AddDraft(mailbox.RemoteDraft{
		ID:       "draft-1",
		SourceID: "mail-1",
		Message:  remote("draft-msg-1", "thread-1", "DRAFT"),
	})
	f.mailbox.AddDraft(mailbox.RemoteDraft{
		ID:      "draft-2",
		Message: remote("draft-msg-2", "thread-new", "DRAFT"),
	})

	f.run(t)
	first, err := f.store.Fingerprint(context.Background())
	require.NoError(t, err)

	res := f.run(t)
	second, err := f.store.Fingerprint(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Zero(t, res.Inserted)
	assert.Zero(t, res.Updated)
	assert.Equal(t, 4, res.Unchanged)
}

func TestRunFollowsRemoteSpamMove(t *testing.T) {
	f := newFixture(t)
	testutil.SeedMessage(t, f.store, f.account, model.Message{
		RemoteID:   model.StringPtr("mail-5"),
		ThreadID:   "thread-5",
		Subject:    "Invoice",
		Type:       model.TypeResponseNeeded,
		TypeOrigin: model.OriginAI,
	})
	f.mailbox.AddMessage(remote("mail-5", "thread-5", "INBOX", "UNREAD"))

	f.run(t)
	assert.Equal(t, model.TypeResponseNeeded, f.byRemote(t, "mail-5").Type)

	require.NoError(t, f.mailbox.SetLabels(context.Background(), "mail-5",
		[]string{mailbox.LabelSpam}, []string{mailbox.LabelInbox}))

	res := f.run(t)
	assert.Equal(t, 1, res.Updated)

	got := f.byRemote(t, "mail-5")
	assert.Equal(t, model.TypeJunk, got.Type)
	assert.Equal(t, model.OriginLabel, got.TypeOrigin)
	assert.Equal(t, []string{"SPAM", "UNREAD"}, got.Labels)

	// Back to the inbox: label-driven junk is cleared.
	require.NoError(t, f.mailbox.SetLabels(context.Background(), "mail-5",
		[]string{mailbox.LabelInbox}, []string{mailbox.LabelSpam}))
	f.run(t)
	assert.Equal(t, model.TypeReadOnly, f.byRemote(t, "mail-5").Type)
}

func TestRunMirrorsUnreadThenSpam(t *testing.T) {
	f := newFixture(t)
	f.mailbox.AddMessage(remote("mail-5", "thread-5", "INBOX", "UNREAD"))

	res := f.run(t)
	assert.Equal(t, 1, res.Inserted)
	got := f.byRemote(t, "mail-5")
	assert.False(t, got.IsRead)
	assert.Equal(t, model.TypeReadOnly, got.Type)
	assert.Equal(t, model.OriginLabel, got.TypeOrigin)

	require.NoError(t, f.mailbox.SetLabels(context.Background(), "mail-5",
		[]string{mailbox.LabelSpam}, nil))

	res = f.run(t)
	assert.Equal(t, 1, res.Updated)
	assert.Zero(t, res.Inserted)
	got = f.byRemote(t, "mail-5")
	assert.Equal(t, model.TypeJunk, got.Type)
	assert.False(t, got.IsRead)
	assert.Equal(t, []string{"INBOX", "SPAM", "UNREAD"}, got.Labels)
}

func TestRunKeepsJunkUncertain(t *testing.T) {
	f := newFixture(t)
	testutil.SeedMessage(t, f.store, f.account, model.Message{
		RemoteID:   model.StringPtr("mail-6"),
		ThreadID:   "thread-6",
		Type:       model.TypeJunkUncertain,
		TypeOrigin: model.OriginAI,
		IsRead:     true,
	})
	f.mailbox.AddMessage(remote("mail-6", "thread-6", "SPAM"))

	f.run(t)
	assert.Equal(t, model.TypeJunkUncertain, f.byRemote(t, "mail-6").Type)

	require.NoError(t, f.mailbox.SetLabels(context.Background(), "mail-6",
		[]string{mailbox.LabelInbox}, []string{mailbox.LabelSpam}))
	f.run(t)
	assert.Equal(t, model.TypeJunkUncertain, f.byRemote(t, "mail-6").Type)
}

func TestRunRemoteFailureLeavesStoreUntouched(t *testing.T) {
	tests := []struct {
		name string
		op   string
	}{
		{name: "list fails", op: "list"},
		{name: "drafts fail after list", op: "drafts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.mailbox.AddMessage(remote("mail-1", "thread-1", "INBOX"))
			before, err := f.store.Fingerprint(context.Background())
			require.NoError(t, err)

			boom := &mailbox.UnavailableError{Provider: "fake", Op: tt.op, Retriable: true, Err: errors.New("boom")}
			f.mailbox.Fail(tt.op, boom)

			_, err = f.rec.Run(context.Background())
			require.Error(t, err)
			assert.True(t, mailbox.IsRemoteUnavailable(err))

			after, err := f.store.Fingerprint(context.Background())
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestRunAuthFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.mailbox.Fail("list", &mailbox.AuthError{Provider: "fake", Message: "token revoked"})

	_, err := f.rec.Run(context.Background())
	assert.True(t, mailbox.IsAuthUnavailable(err))
}

func TestRunIgnoresTrashAndDraftLabels(t *testing.T) {
	f := newFixture(t)
	f.mailbox.AddMessage(remote("mail-1", "thread-1", "INBOX"))
	f.mailbox.AddMessage(remote("mail-2", "thread-2", "DRAFT"))
	f.mailbox.AddMessage(remote("mail-3", "thread-3", "TRASH"))

	res := f.run(t)
	assert.Equal(t, 2, res.Fetched, "trash is not listed")
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Ignored)

	_, err := f.store.GetMessageByRemoteID(context.Background(), "mail-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunDetectsMailSentBySelf(t *testing.T) {
	f := newFixture(t)
	rm := remote("mail-1", "thread-1", "INBOX")
	rm.From = "You <YOU@example.com>"
	f.mailbox.AddMessage(rm)

	f.run(t)
	assert.Equal(t, model.TypeSent, f.byRemote(t, "mail-1").Type)
}

func TestRunSkipsConflictingItems(t *testing.T) {
	f := newFixture(t)
	testutil.SeedMessage(t, f.store, f.account, model.Message{
		RemoteID: model.StringPtr("mail-7"),
		ThreadID: "thread-local",
		Subject:  "mismatch",
	})
	f.mailbox.AddMessage(remote("mail-7", "thread-remote", "INBOX", "UNREAD"))
	f.mailbox.AddMessage(remote("mail-8", "thread-8", "INBOX"))

	res := f.run(t)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Inserted)

	kept := f.byRemote(t, "mail-7")
	assert.Equal(t, "thread-local", kept.ThreadID)
	assert.False(t, kept.IsRead, "conflicting row is left alone")
}

// failingInserts fails every insert and leaves the rest of the store intact.
type failingInserts struct {
	*store.SQLiteStore
}

func (failingInserts) InsertMessage(context.Context, *model.Message) (int64, error) {
	return 0, errors.New("disk full")
}

func TestRunCountsLocalWriteFailures(t *testing.T) {
	s := testutil.NewTestStore(t)
	acct := testutil.NewTestAccount(t, s)
	testutil.SeedMessage(t, s, acct, model.Message{
		RemoteID: model.StringPtr("mail-7"),
		ThreadID: "thread-local",
	})
	fake := testutil.NewFakeMailbox()
	fake.AddMessage(remote("mail-7", "thread-remote", "INBOX"))
	fake.AddMessage(remote("mail-8", "thread-8", "INBOX"))

	logger := zap.NewNop()
	rec := reconcile.New(fake, failingInserts{s}, identity.NewMapper(s, logger), acct,
		reconcile.Config{Timeout: time.Second}, logger)

	res, err := rec.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.WriteFailures, "the thread conflict is not a write failure")
}

func TestIsLocalWriteError(t *testing.T) {
	err := fmt.Errorf("pass: %w", &reconcile.LocalWriteError{Op: "insert", RemoteID: "mail-1", Err: errors.New("disk full")})
	assert.True(t, reconcile.IsLocalWriteError(err))
	assert.Contains(t, err.Error(), "local write insert for remote mail-1")
	assert.False(t, reconcile.IsLocalWriteError(errors.New("other")))
}

func TestRunNeverDeletes(t *testing.T) {
	f := newFixture(t)
	f.mailbox.AddMessage(remote("mail-1", "thread-1", "INBOX"))
	f.run(t)

	require.NoError(t, f.mailbox.SetLabels(context.Background(), "mail-1",
		[]string{mailbox.LabelTrash}, []string{mailbox.LabelInbox}))
	f.run(t)

	got := f.byRemote(t, "mail-1")
	assert.Equal(t, []string{"INBOX"}, got.Labels, "rows missing from the window are not touched")
}

func TestRunAttachesDrafts(t *testing.T) {
	f := newFixture(t)
	f.mailbox.AddMessage(remote("mail-1", "thread-1", "INBOX"))
	f.mailbox.AddDraft(mailbox.RemoteDraft{
		ID:       "draft-1",
		SourceID: "mail-1",
		Message: mailbox.RemoteMessage{
			ID: "draft-msg-1", ThreadID: "thread-1", Subject: "Re: Subject mail-1", Body: "On it.",
		},
	})
	f.mailbox.AddDraft(mailbox.RemoteDraft{
		ID: "draft-2",
		Message: mailbox.RemoteMessage{
			ID: "draft-msg-2", ThreadID: "thread-9", Subject: "New idea",
			To: []string{"team@example.com"}, Body: "What if...",
		},
	})

	res := f.run(t)
	assert.Equal(t, 2, res.Drafts)

	src := f.byRemote(t, "mail-1")
	require.NotNil(t, src.Draft)
	assert.Equal(t, "On it.", *src.Draft)
	assert.Equal(t, "draft-1", *src.RemoteDraftID)
	assert.NotNil(t, src.DraftUpdatedAt)
	assert.Equal(t, model.TypeReadOnly, src.Type)

	standalone, err := f.store.GetMessageByRemoteDraftID(context.Background(), "draft-2")
	require.NoError(t, err)
	assert.Equal(t, model.TypeDraft, standalone.Type)
	assert.Nil(t, standalone.RemoteID)
	assert.Equal(t, "What if...", *standalone.Draft)
	assert.Equal(t, testutil.SelfAddress, standalone.Sender)

	// Editing the draft remotely updates the same rows.
	_, err = f.mailbox.UpsertDraft(context.Background(), mailbox.DraftRequest{
		DraftID: "draft-2",
		Message: mailbox.OutgoingMessage{ThreadID: "thread-9", Subject: "New idea", Body: "What if we..."},
	})
	require.NoError(t, err)
	res = f.run(t)
	assert.Zero(t, res.Inserted)

	standalone, err = f.store.GetMessageByRemoteDraftID(context.Background(), "draft-2")
	require.NoError(t, err)
	assert.Equal(t, "What if we...", *standalone.Draft)
	assert.Equal(t, "What if we...", standalone.Body)
}
