package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nhle/mail-triage/internal/mailbox"
)

// LabelCall records one SetLabels invocation.
type LabelCall struct {
	RemoteID string
	Add      []string
	Remove   []string
}

// FakeMailbox is an in-memory mailbox.Client. Messages are kept newest
// first; SetLabels, Send and UpsertDraft mutate the fake so a following
// reconcile pass sees their effect.
type FakeMailbox struct {
	mu sync.Mutex

	Address  string
	messages []mailbox.RemoteMessage
	drafts   []mailbox.RemoteDraft

	// Errs maps an operation name ("profile", "list", "drafts", "labels",
	// "send", "draft", "trash", "delete-draft") to the error it should
	// fail with.
	Errs map[string]error

	// OnSend, when set, runs after a successful Send has stored the
	// message and before the receipt is returned.
	OnSend func(mailbox.SendReceipt)

	LabelCalls    []LabelCall
	Sent          []mailbox.OutgoingMessage
	DraftReqs     []mailbox.DraftRequest
	Trashed       []string
	DeletedDrafts []string

	seq int
}

var _ mailbox.Client = (*FakeMailbox)(nil)

// NewFakeMailbox returns an empty fake owned by SelfAddress.
func NewFakeMailbox() *FakeMailbox {
	return &FakeMailbox{Address: SelfAddress, Errs: map[string]error{}}
}

// AddMessage puts rm at the top of the mailbox.
func (f *FakeMailbox) AddMessage(rm mailbox.RemoteMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append([]mailbox.RemoteMessage{rm}, f.messages...)
}

// AddDraft registers a remote draft.
func (f *FakeMailbox) AddDraft(d mailbox.RemoteDraft) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, d)
}

// Message returns the current state of a remote message.
func (f *FakeMailbox) Message(remoteID string) (mailbox.RemoteMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == remoteID {
			return m, true
		}
	}
	return mailbox.RemoteMessage{}, false
}

// Fail makes op return err until cleared with Fail(op, nil).
func (f *FakeMailbox) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Errs, op)
		return
	}
	f.Errs[op] = err
}

func (f *FakeMailbox) Profile(_ context.Context) (*mailbox.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Errs["profile"]; err != nil {
		return nil, err
	}
	return &mailbox.Profile{Address: f.Address, MessagesTotal: int64(len(f.messages))}, nil
}

func (f *FakeMailbox) ListRecent(_ context.Context, max int) ([]mailbox.RemoteMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Errs["list"]; err != nil {
		return nil, err
	}
	var out []mailbox.RemoteMessage
	for _, m := range f.messages {
		if m.HasLabel(mailbox.LabelTrash) {
			continue
		}
		if max > 0 && len(out) >= max {
			break
		}
		m.LabelIDs = slices.Clone(m.LabelIDs)
		out = append(out, m)
	}
	return out, nil
}

func (f *FakeMailbox) ListDrafts(_ context.Context, max int) ([]mailbox.RemoteDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Errs["drafts"]; err != nil {
		return nil, err
	}
	out := slices.Clone(f.drafts)
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (f *FakeMailbox) SetLabels(_ context.Context, remoteID string, add, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LabelCalls = append(f.LabelCalls, LabelCall{RemoteID: remoteID, Add: add, Remove: remove})
	if err := f.Errs["labels"]; err != nil {
		return err
	}
	for i := range f.messages {
		if f.messages[i].ID != remoteID {
			continue
		}
		labels := slices.DeleteFunc(slices.Clone(f.messages[i].LabelIDs), func(l string) bool {
			return slices.Contains(remove, l)
		})
		for _, l := range add {
			if !slices.Contains(labels, l) {
				labels = append(labels, l)
			}
		}
		f.messages[i].LabelIDs = labels
		return nil
	}
	return &mailbox.UnavailableError{Provider: "fake", Op: "labels", Err: fmt.Errorf("no message %s", remoteID)}
}

func (f *FakeMailbox) Send(_ context.Context, msg mailbox.OutgoingMessage) (mailbox.SendReceipt, error) {
	receipt, err := f.send(msg)
	if err == nil && f.OnSend != nil {
		f.OnSend(receipt)
	}
	return receipt, err
}

func (f *FakeMailbox) send(msg mailbox.OutgoingMessage) (mailbox.SendReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, msg)
	if err := f.Errs["send"]; err != nil {
		return mailbox.SendReceipt{}, err
	}

	f.seq++
	id := fmt.Sprintf("sent-%d", f.seq)
	thread := msg.ThreadID
	if thread == "" {
		thread = "thread-" + id
	}
	f.messages = append([]mailbox.RemoteMessage{{
		ID:         id,
		ThreadID:   thread,
		LabelIDs:   []string{mailbox.LabelSent},
		Subject:    msg.Subject,
		From:       f.Address,
		To:         msg.To,
		Cc:         msg.Cc,
		Body:       msg.Body,
		InReplyTo:  msg.InReplyTo,
		ReceivedAt: time.Now().UTC(),
	}}, f.messages...)
	return mailbox.SendReceipt{RemoteID: id, ThreadID: thread}, nil
}

func (f *FakeMailbox) UpsertDraft(_ context.Context, req mailbox.DraftRequest) (mailbox.DraftReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DraftReqs = append(f.DraftReqs, req)
	if err := f.Errs["draft"]; err != nil {
		return mailbox.DraftReceipt{}, err
	}

	f.seq++
	msgID := fmt.Sprintf("draft-msg-%d", f.seq)
	draftID := req.DraftID
	if draftID == "" {
		draftID = fmt.Sprintf("draft-%d", f.seq)
	}
	draft := mailbox.RemoteDraft{
		ID:       draftID,
		SourceID: req.Message.ReplyToID,
		Message: mailbox.RemoteMessage{
			ID:         msgID,
			ThreadID:   req.Message.ThreadID,
			LabelIDs:   []string{mailbox.LabelDraft},
			Subject:    req.Message.Subject,
			From:       f.Address,
			To:         req.Message.To,
			Cc:         req.Message.Cc,
			Body:       req.Message.Body,
			ReceivedAt: time.Now().UTC(),
		},
	}

	idx := slices.IndexFunc(f.drafts, func(d mailbox.RemoteDraft) bool { return d.ID == draftID })
	if idx >= 0 {
		f.drafts[idx] = draft
	} else {
		f.drafts = append(f.drafts, draft)
	}
	return mailbox.DraftReceipt{DraftID: draftID, MessageID: msgID, ThreadID: req.Message.ThreadID}, nil
}

func (f *FakeMailbox) Trash(_ context.Context, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Trashed = append(f.Trashed, remoteID)
	if err := f.Errs["trash"]; err != nil {
		return err
	}
	for i := range f.messages {
		if f.messages[i].ID == remoteID {
			f.messages[i].LabelIDs = append(slices.Clone(f.messages[i].LabelIDs), mailbox.LabelTrash)
			return nil
		}
	}
	return &mailbox.UnavailableError{Provider: "fake", Op: "trash", Err: fmt.Errorf("no message %s", remoteID)}
}

func (f *FakeMailbox) DeleteDraft(_ context.Context, draftID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedDrafts = append(f.DeletedDrafts, draftID)
	if err := f.Errs["delete-draft"]; err != nil {
		return err
	}
	f.drafts = slices.DeleteFunc(f.drafts, func(d mailbox.RemoteDraft) bool { return d.ID == draftID })
	return nil
}

// Drafts returns the current remote drafts.
func (f *FakeMailbox) Drafts() []mailbox.RemoteDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.drafts)
}
