package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/model"
)

func TestStateFromLabels(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   RemoteState
	}{
		{name: "no labels is read and archived", labels: nil, want: RemoteState{Read: Read}},
		{name: "unread inbox", labels: []string{"INBOX", "UNREAD"}, want: RemoteState{Read: Unread, Placement: PlacementInbox}},
		{name: "spam wins over inbox", labels: []string{"INBOX", "SPAM"}, want: RemoteState{Read: Read, Placement: PlacementSpam}},
		{name: "sent", labels: []string{"SENT"}, want: RemoteState{Read: Read, Sent: true}},
		{name: "draft and trash", labels: []string{"DRAFT", "TRASH"}, want: RemoteState{Read: Read, Draft: true, Trash: true}},
		{name: "custom labels ignored", labels: []string{"Label_12", "IMPORTANT"}, want: RemoteState{Read: Read}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateFromLabels(tt.labels))
		})
	}
}

func TestPlacementString(t *testing.T) {
	assert.Equal(t, "inbox", PlacementInbox.String())
	assert.Equal(t, "spam", PlacementSpam.String())
	assert.Equal(t, "other", PlacementOther.String())
}

func TestPlan(t *testing.T) {
	type local struct {
		typ    model.MessageType
		origin model.TypeOrigin
		read   bool
	}
	tests := []struct {
		name       string
		labels     []string
		local      local
		wantRead   *bool
		wantType   model.MessageType // empty: no type change
		wantOrigin model.TypeOrigin
	}{
		{
			name:   "in sync",
			labels: []string{"INBOX"},
			local:  local{typ: model.TypeReadOnly, origin: model.OriginLabel, read: true},
		},
		{
			name:     "remote read flips local",
			labels:   []string{"INBOX"},
			local:    local{typ: model.TypeResponseNeeded, origin: model.OriginAI, read: false},
			wantRead: boolPtr(true),
		},
		{
			name:     "remote unread flips local",
			labels:   []string{"INBOX", "UNREAD"},
			local:    local{typ: model.TypeReadOnly, origin: model.OriginLabel, read: true},
			wantRead: boolPtr(false),
		},
		{
			name:       "spam moves response-needed to junk",
			labels:     []string{"SPAM"},
			local:      local{typ: model.TypeResponseNeeded, origin: model.OriginAI, read: true},
			wantType:   model.TypeJunk,
			wantOrigin: model.OriginLabel,
		},
		{
			name:       "spam moves read-only to junk",
			labels:     []string{"SPAM", "UNREAD"},
			local:      local{typ: model.TypeReadOnly, origin: model.OriginLabel, read: false},
			wantType:   model.TypeJunk,
			wantOrigin: model.OriginLabel,
		},
		{
			name:   "spam keeps junk-uncertain",
			labels: []string{"SPAM"},
			local:  local{typ: model.TypeJunkUncertain, origin: model.OriginAI, read: true},
		},
		{
			name:   "inbox keeps junk-uncertain",
			labels: []string{"INBOX"},
			local:  local{typ: model.TypeJunkUncertain, origin: model.OriginAI, read: true},
		},
		{
			name:       "inbox clears label junk",
			labels:     []string{"INBOX"},
			local:      local{typ: model.TypeJunk, origin: model.OriginLabel, read: true},
			wantType:   model.TypeReadOnly,
			wantOrigin: model.OriginLabel,
		},
		{
			name:   "inbox keeps classifier junk",
			labels: []string{"INBOX"},
			local:  local{typ: model.TypeJunk, origin: model.OriginAI, read: true},
		},
		{
			name:   "archived junk stays junk",
			labels: nil,
			local:  local{typ: model.TypeJunk, origin: model.OriginLabel, read: true},
		},
		{
			name:       "sent label makes a sent row",
			labels:     []string{"SENT"},
			local:      local{typ: model.TypeReadOnly, origin: model.OriginLabel, read: true},
			wantType:   model.TypeSent,
			wantOrigin: model.OriginLabel,
		},
		{
			name:   "sent row ignores spam",
			labels: []string{"SPAM"},
			local:  local{typ: model.TypeSent, origin: model.OriginLocal, read: true},
		},
		{
			name:   "draft row keeps its type",
			labels: []string{"INBOX"},
			local:  local{typ: model.TypeDraft, origin: model.OriginLabel, read: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &model.Message{Type: tt.local.typ, TypeOrigin: tt.local.origin, IsRead: tt.local.read}
			d := Plan(StateFromLabels(tt.labels), msg)

			assert.Equal(t, tt.wantRead, d.IsRead)
			if tt.wantType == "" {
				assert.Nil(t, d.Type)
				assert.Nil(t, d.TypeOrigin)
			} else if assert.NotNil(t, d.Type) && assert.NotNil(t, d.TypeOrigin) {
				assert.Equal(t, tt.wantType, *d.Type)
				assert.Equal(t, tt.wantOrigin, *d.TypeOrigin)
			}

			// Applying the plan reaches a fixed point.
			d.Apply(msg)
			assert.True(t, Plan(StateFromLabels(tt.labels), msg).Empty())
		})
	}
}

func TestNewMessage(t *testing.T) {
	rm := mailbox.RemoteMessage{
		ID:       "mail-9",
		ThreadID: "thread-9",
		LabelIDs: []string{"INBOX", "UNREAD"},
		Subject:  "Lunch?",
		From:     "friend@example.com",
		To:       []string{"you@example.com"},
		Cc:       []string{"other@example.com"},
		Body:     "Tomorrow at noon",
		BodyHTML: "<p>Tomorrow at noon</p>",
	}

	msg := newMessage(rm, 3, StateFromLabels(rm.LabelIDs))

	assert.Equal(t, int64(3), msg.AccountID)
	assert.Equal(t, "mail-9", *msg.RemoteID)
	assert.Equal(t, model.TypeReadOnly, msg.Type)
	assert.Equal(t, model.PriorityLow, msg.Priority)
	assert.False(t, msg.IsRead)
	assert.Nil(t, msg.Summary)
	assert.Equal(t, "<p>Tomorrow at noon</p>", *msg.BodyHTML)
	assert.Equal(t, []model.Recipient{
		{Kind: model.RecipientTo, Address: "you@example.com"},
		{Kind: model.RecipientCc, Address: "other@example.com"},
	}, msg.Recipients)
}

func boolPtr(b bool) *bool { return &b }
