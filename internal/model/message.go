package model

import (
	"strings"
	"time"
)

// MessageType is the triage category of a locally stored message.
type MessageType string

const (
	TypeResponseNeeded MessageType = "response-needed"
	TypeReadOnly       MessageType = "read-only"
	TypeJunk           MessageType = "junk"
	TypeJunkUncertain  MessageType = "junk-uncertain"
	TypeSent           MessageType = "sent"
	TypeDraft          MessageType = "draft"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case TypeResponseNeeded, TypeReadOnly, TypeJunk, TypeJunkUncertain, TypeSent, TypeDraft:
		return true
	}
	return false
}

// Triage reports whether t is a category the classifier may assign.
func (t MessageType) Triage() bool {
	switch t {
	case TypeResponseNeeded, TypeReadOnly, TypeJunk, TypeJunkUncertain:
		return true
	}
	return false
}

// TypeOrigin records who last set a message's type.
type TypeOrigin string

const (
	OriginLabel TypeOrigin = "label"
	OriginAI    TypeOrigin = "ai"
	OriginLocal TypeOrigin = "local"
)

// Priority bounds (higher number = more urgent).
const (
	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
)

// ClampPriority forces p into the valid priority range.
func ClampPriority(p int) int {
	if p < PriorityLow {
		return PriorityLow
	}
	if p > PriorityHigh {
		return PriorityHigh
	}
	return p
}

// Recipient kinds.
const (
	RecipientTo = "to"
	RecipientCc = "cc"
)

// Account is the mailbox owner the local store mirrors.
type Account struct {
	ID          int64     `json:"id" db:"id"`
	Provider    string    `json:"provider" db:"provider"`
	Address     string    `json:"address" db:"address"`
	DisplayName string    `json:"display_name" db:"display_name"`
	AuthMethod  string    `json:"auth_method" db:"auth_method"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Message is the local mirror of one email (or a locally originated one).
type Message struct {
	ID        int64 `json:"id"`
	AccountID int64 `json:"account_id"`

	// RemoteID is the provider message id. Nil for seed data and for
	// locally sent mail that has not been confirmed yet.
	RemoteID *string `json:"remote_id,omitempty"`

	// RemoteDraftID is the provider draft attached to this row.
	RemoteDraftID *string `json:"remote_draft_id,omitempty"`

	ThreadID string `json:"thread_id"`
	Subject  string `json:"subject"`
	Sender   string `json:"sender"`
	Body     string `json:"body"`
	BodyHTML *string `json:"body_html,omitempty"`

	Type       MessageType `json:"type"`
	TypeOrigin TypeOrigin  `json:"type_origin"`
	Priority   int         `json:"priority"`
	IsRead     bool        `json:"is_read"`
	ReceivedAt time.Time   `json:"received_at"`

	Summary            *string    `json:"summary,omitempty"`
	SummaryGeneratedAt *time.Time `json:"summary_generated_at,omitempty"`
	Draft              *string    `json:"draft,omitempty"`
	DraftUpdatedAt     *time.Time `json:"draft_updated_at,omitempty"`

	// ArchivedAt is set while the row is filed out of the inbox view;
	// TrashedAt hides it from every view. Both are local decisions the
	// reconciler never reverts.
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	TrashedAt  *time.Time `json:"trashed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Recipients and Labels are populated by InsertMessage callers and by
	// GetMessage; list queries leave them empty.
	Recipients []Recipient `json:"recipients,omitempty"`
	Labels     []string    `json:"labels,omitempty"`
}

// HasRemote reports whether the row is tied to a provider message.
func (m *Message) HasRemote() bool {
	return m.RemoteID != nil && *m.RemoteID != ""
}

// Archived reports whether the row is filed out of the inbox.
func (m *Message) Archived() bool {
	return m.ArchivedAt != nil
}

// Trashed reports whether the row was moved to the trash.
func (m *Message) Trashed() bool {
	return m.TrashedAt != nil
}

// HasDraft reports whether the row carries draft text.
func (m *Message) HasDraft() bool {
	return m.Draft != nil && *m.Draft != ""
}

// NeedsAnalysis reports whether the classifier has not seen this row yet.
func (m *Message) NeedsAnalysis() bool {
	if m.Type == TypeSent || m.Type == TypeDraft {
		return false
	}
	return m.Summary == nil
}

// Recipient is one to/cc address of a message.
type Recipient struct {
	Kind    string `json:"kind" db:"kind"`
	Address string `json:"address" db:"address"`
}

// SplitAddresses splits a raw header value on commas and semicolons,
// trims whitespace and drops case-insensitive duplicates.
func SplitAddresses(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		addr := strings.TrimSpace(f)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr)
	}
	return out
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
