package reconcile

import (
	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/store"
)

// ReadState is the remote read flag.
type ReadState int

const (
	Unread ReadState = iota
	Read
)

// Placement is where the provider files a message.
type Placement int

const (
	PlacementOther Placement = iota // archived or custom-labelled only
	PlacementInbox
	PlacementSpam
)

func (p Placement) String() string {
	switch p {
	case PlacementInbox:
		return "inbox"
	case PlacementSpam:
		return "spam"
	default:
		return "other"
	}
}

// RemoteState is the part of a message's remote label set that drives
// local triage state.
type RemoteState struct {
	Read      ReadState
	Placement Placement
	Sent      bool
	Draft     bool
	Trash     bool
}

// StateFromLabels derives a RemoteState from provider labels. SPAM wins
// over INBOX when both are present.
func StateFromLabels(labels []string) RemoteState {
	st := RemoteState{Read: Read}
	var inbox, spam bool
	for _, l := range labels {
		switch l {
		case mailbox.LabelUnread:
			st.Read = Unread
		case mailbox.LabelInbox:
			inbox = true
		case mailbox.LabelSpam:
			spam = true
		case mailbox.LabelSent:
			st.Sent = true
		case mailbox.LabelDraft:
			st.Draft = true
		case mailbox.LabelTrash:
			st.Trash = true
		}
	}
	switch {
	case spam:
		st.Placement = PlacementSpam
	case inbox:
		st.Placement = PlacementInbox
	}
	return st
}

// Delta is the set of local column changes a remote state implies.
type Delta struct {
	IsRead     *bool
	Type       *model.MessageType
	TypeOrigin *model.TypeOrigin
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return d.IsRead == nil && d.Type == nil && d.TypeOrigin == nil
}

// Apply writes the delta into msg.
func (d Delta) Apply(msg *model.Message) {
	if d.IsRead != nil {
		msg.IsRead = *d.IsRead
	}
	if d.Type != nil {
		msg.Type = *d.Type
	}
	if d.TypeOrigin != nil {
		msg.TypeOrigin = *d.TypeOrigin
	}
}

// Update converts the delta into a store update.
func (d Delta) Update() store.MessageUpdate {
	return store.MessageUpdate{
		IsRead:     d.IsRead,
		Type:       d.Type,
		TypeOrigin: d.TypeOrigin,
	}
}

// Plan maps a remote state onto the local row. Labels are ground truth
// for the read flag; for type they only move rows between the
// label-owned categories:
//
//	sent (remote)        -> sent
//	spam                 -> junk, from response-needed or read-only
//	inbox, junk by label -> read-only
//
// sent and draft rows keep their type, and junk-uncertain or junk set by
// the classifier or the user is never touched.
func Plan(st RemoteState, local *model.Message) Delta {
	var d Delta

	wantRead := st.Read == Read
	if local.IsRead != wantRead {
		d.IsRead = &wantRead
	}

	setType := func(t model.MessageType) {
		origin := model.OriginLabel
		d.Type = &t
		d.TypeOrigin = &origin
	}

	if st.Sent {
		if local.Type != model.TypeSent {
			setType(model.TypeSent)
		}
		return d
	}

	switch local.Type {
	case model.TypeSent, model.TypeDraft, model.TypeJunkUncertain:
		return d
	}

	switch st.Placement {
	case PlacementSpam:
		if local.Type == model.TypeResponseNeeded || local.Type == model.TypeReadOnly {
			setType(model.TypeJunk)
		}
	case PlacementInbox:
		if local.Type == model.TypeJunk && local.TypeOrigin == model.OriginLabel {
			setType(model.TypeReadOnly)
		}
	}
	return d
}

// newMessage builds the row inserted for a remote message seen for the
// first time: read-only, lowest priority, no summary, then Plan applied.
func newMessage(rm mailbox.RemoteMessage, accountID int64, st RemoteState) model.Message {
	msg := model.Message{
		AccountID:  accountID,
		RemoteID:   model.StringPtr(rm.ID),
		ThreadID:   rm.ThreadID,
		Subject:    rm.Subject,
		Sender:     rm.From,
		Body:       rm.Body,
		Type:       model.TypeReadOnly,
		TypeOrigin: model.OriginLabel,
		Priority:   model.PriorityLow,
		ReceivedAt: rm.ReceivedAt,
		Labels:     rm.LabelIDs,
	}
	if rm.BodyHTML != "" {
		msg.BodyHTML = model.StringPtr(rm.BodyHTML)
	}
	msg.Recipients = recipientsOf(rm)

	Plan(st, &msg).Apply(&msg)
	return msg
}
