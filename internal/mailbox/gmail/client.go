// Package gmail implements mailbox.Client on the Gmail REST API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/mail-triage/internal/mailbox"
	"github.com/nhle/mail-triage/internal/metrics"
)

const (
	providerName = "gmail"
	userID       = "me"

	// listPageSize is the largest page the list endpoints accept.
	listPageSize = 100
)

// Client implements mailbox.Client for one Gmail account.
type Client struct {
	svc    *gmailapi.Service
	cb     *gobreaker.CircuitBreaker
	from   string
	logger *zap.Logger
}

// New creates a Client authenticated by ts. Extra options are passed to
// the API client, e.g. option.WithEndpoint for a local server.
func New(
	ctx context.Context,
	ts oauth2.TokenSource,
	logger *zap.Logger,
	opts ...option.ClientOption,
) (*Client, error) {
	if ts != nil {
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		svc:    svc,
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
		logger: logger,
	}, nil
}

// Profile returns the authenticated account and remembers its address as
// the From of outgoing mail.
func (c *Client) Profile(ctx context.Context) (*mailbox.Profile, error) {
	var p *gmailapi.Profile
	err := c.execute(ctx, "profile", func() error {
		var err error
		p, err = c.svc.Users.GetProfile(userID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	c.from = p.EmailAddress
	return &mailbox.Profile{Address: p.EmailAddress, MessagesTotal: p.MessagesTotal}, nil
}

// ListRecent returns up to max most recent messages, spam included.
// Trashed messages are dropped after fetching.
func (c *Client) ListRecent(ctx context.Context, max int) ([]mailbox.RemoteMessage, error) {
	if max <= 0 {
		return nil, nil
	}

	var ids []string
	pageToken := ""
	for len(ids) < max {
		pageSize := max - len(ids)
		if pageSize > listPageSize {
			pageSize = listPageSize
		}

		var resp *gmailapi.ListMessagesResponse
		err := c.execute(ctx, "messages.list", func() error {
			call := c.svc.Users.Messages.List(userID).
				IncludeSpamTrash(true).
				MaxResults(int64(pageSize)).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	if len(ids) > max {
		ids = ids[:max]
	}

	out := make([]mailbox.RemoteMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := c.getRaw(ctx, id)
		if isNotFound(err) {
			// Deleted between list and get.
			c.logger.Debug("listed message disappeared", zap.String("remote_id", id))
			continue
		}
		if err != nil {
			return nil, err
		}
		rm := toRemoteMessage(msg)
		if rm.HasLabel(mailbox.LabelTrash) {
			continue
		}
		out = append(out, rm)
	}
	return out, nil
}

// ListDrafts returns up to max drafts. A draft's source is the message in
// its thread whose Message-ID matches the draft's In-Reply-To header.
func (c *Client) ListDrafts(ctx context.Context, max int) ([]mailbox.RemoteDraft, error) {
	if max <= 0 {
		return nil, nil
	}

	var refs []*gmailapi.Draft
	pageToken := ""
	for len(refs) < max {
		pageSize := max - len(refs)
		if pageSize > listPageSize {
			pageSize = listPageSize
		}

		var resp *gmailapi.ListDraftsResponse
		err := c.execute(ctx, "drafts.list", func() error {
			call := c.svc.Users.Drafts.List(userID).MaxResults(int64(pageSize)).Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, err
		}

		refs = append(refs, resp.Drafts...)
		if resp.NextPageToken == "" || len(resp.Drafts) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	if len(refs) > max {
		refs = refs[:max]
	}

	out := make([]mailbox.RemoteDraft, 0, len(refs))
	for _, ref := range refs {
		var d *gmailapi.Draft
		err := c.execute(ctx, "drafts.get", func() error {
			var err error
			d, err = c.svc.Users.Drafts.Get(userID, ref.Id).Format("raw").Context(ctx).Do()
			return err
		})
		if isNotFound(err) {
			c.logger.Debug("listed draft disappeared", zap.String("draft_id", ref.Id))
			continue
		}
		if err != nil {
			return nil, err
		}
		if d.Message == nil {
			continue
		}

		rm := toRemoteMessage(d.Message)
		draft := mailbox.RemoteDraft{ID: d.Id, Message: rm}
		if rm.InReplyTo != "" && rm.ThreadID != "" {
			source, err := c.findByMessageID(ctx, rm.ThreadID, rm.InReplyTo)
			if err != nil {
				return nil, err
			}
			draft.SourceID = source
		}
		out = append(out, draft)
	}
	return out, nil
}

// SetLabels adds and removes labels on a message.
func (c *Client) SetLabels(ctx context.Context, remoteID string, add, remove []string) error {
	req := &gmailapi.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}
	return c.execute(ctx, "messages.modify", func() error {
		_, err := c.svc.Users.Messages.Modify(userID, remoteID, req).Context(ctx).Do()
		return err
	})
}

// Send delivers msg, threaded on msg.ThreadID.
func (c *Client) Send(ctx context.Context, msg mailbox.OutgoingMessage) (mailbox.SendReceipt, error) {
	gm, err := c.encode(ctx, msg)
	if err != nil {
		return mailbox.SendReceipt{}, err
	}

	var sent *gmailapi.Message
	err = c.execute(ctx, "messages.send", func() error {
		var err error
		sent, err = c.svc.Users.Messages.Send(userID, gm).Context(ctx).Do()
		return err
	})
	if err != nil {
		return mailbox.SendReceipt{}, err
	}
	return mailbox.SendReceipt{RemoteID: sent.Id, ThreadID: sent.ThreadId}, nil
}

// UpsertDraft creates a draft, or replaces req.DraftID when set.
func (c *Client) UpsertDraft(ctx context.Context, req mailbox.DraftRequest) (mailbox.DraftReceipt, error) {
	gm, err := c.encode(ctx, req.Message)
	if err != nil {
		return mailbox.DraftReceipt{}, err
	}
	draft := &gmailapi.Draft{Message: gm}

	var saved *gmailapi.Draft
	if req.DraftID == "" {
		err = c.execute(ctx, "drafts.create", func() error {
			var err error
			saved, err = c.svc.Users.Drafts.Create(userID, draft).Context(ctx).Do()
			return err
		})
	} else {
		draft.Id = req.DraftID
		err = c.execute(ctx, "drafts.update", func() error {
			var err error
			saved, err = c.svc.Users.Drafts.Update(userID, req.DraftID, draft).Context(ctx).Do()
			return err
		})
	}
	if err != nil {
		return mailbox.DraftReceipt{}, err
	}

	receipt := mailbox.DraftReceipt{DraftID: saved.Id}
	if saved.Message != nil {
		receipt.MessageID = saved.Message.Id
		receipt.ThreadID = saved.Message.ThreadId
	}
	return receipt, nil
}

// Trash moves a message to the trash.
func (c *Client) Trash(ctx context.Context, remoteID string) error {
	return c.execute(ctx, "messages.trash", func() error {
		_, err := c.svc.Users.Messages.Trash(userID, remoteID).Context(ctx).Do()
		return err
	})
}

// DeleteDraft discards a draft for good.
func (c *Client) DeleteDraft(ctx context.Context, draftID string) error {
	return c.execute(ctx, "drafts.delete", func() error {
		return c.svc.Users.Drafts.Delete(userID, draftID).Context(ctx).Do()
	})
}

// encode builds the API message for msg, looking up the Message-ID of the
// message being answered when only its remote id is known.
func (c *Client) encode(ctx context.Context, msg mailbox.OutgoingMessage) (*gmailapi.Message, error) {
	if msg.InReplyTo == "" && msg.ReplyToID != "" {
		headerID, err := c.messageIDHeader(ctx, msg.ReplyToID)
		if err != nil {
			return nil, err
		}
		msg.InReplyTo = headerID
	}

	raw, err := buildRawMessage(c.from, msg, time.Now())
	if err != nil {
		return nil, fmt.Errorf("building message: %w", err)
	}
	return &gmailapi.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: msg.ThreadID,
	}, nil
}

func (c *Client) getRaw(ctx context.Context, id string) (*gmailapi.Message, error) {
	var msg *gmailapi.Message
	err := c.execute(ctx, "messages.get", func() error {
		var err error
		msg, err = c.svc.Users.Messages.Get(userID, id).Format("raw").Context(ctx).Do()
		return err
	})
	return msg, err
}

// messageIDHeader returns the Message-ID header of a remote message.
func (c *Client) messageIDHeader(ctx context.Context, id string) (string, error) {
	var msg *gmailapi.Message
	err := c.execute(ctx, "messages.get", func() error {
		var err error
		msg, err = c.svc.Users.Messages.Get(userID, id).
			Format("metadata").
			MetadataHeaders("Message-ID").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	return strings.Trim(header(msg.Payload, "Message-ID"), "<> "), nil
}

// findByMessageID returns the id of the message in thread whose
// Message-ID header is headerID, or "".
func (c *Client) findByMessageID(ctx context.Context, threadID, headerID string) (string, error) {
	var thread *gmailapi.Thread
	err := c.execute(ctx, "threads.get", func() error {
		var err error
		thread, err = c.svc.Users.Threads.Get(userID, threadID).
			Format("metadata").
			MetadataHeaders("Message-ID").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}

	want := strings.Trim(headerID, "<> ")
	for _, m := range thread.Messages {
		if strings.Trim(header(m.Payload, "Message-ID"), "<> ") == want {
			return m.Id, nil
		}
	}
	return "", nil
}

// execute runs fn through the circuit breaker, records its latency and
// maps the failure onto the mailbox error kinds.
func (c *Client) execute(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	_, err := c.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
				case http.StatusBadRequest, http.StatusUnauthorized,
					http.StatusForbidden, http.StatusNotFound:
					// Client errors must not open the breaker.
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		err = nce.err
	}

	status := "success"
	if err != nil {
		status = "failed"
		if ctx.Err() == nil && errors.Is(err, gobreaker.ErrOpenState) {
			c.logger.Warn("gmail call rejected by open circuit", zap.String("operation", op))
		}
	}
	metrics.RecordRemoteCall(op, status, time.Since(start))

	return wrapError(op, err)
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

// wrapError classifies err as an auth or availability failure.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if mailbox.IsAuthUnavailable(err) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return &mailbox.AuthError{Provider: providerName, Message: "token rejected", Err: err}
		case http.StatusForbidden:
			if strings.Contains(strings.ToLower(apiErr.Message), "rate limit") {
				return &mailbox.UnavailableError{Provider: providerName, Op: op, Retriable: true, Err: err}
			}
			return &mailbox.AuthError{Provider: providerName, Message: "access denied", Err: err}
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return &mailbox.UnavailableError{Provider: providerName, Op: op, Retriable: true, Err: err}
		}
		return &mailbox.UnavailableError{Provider: providerName, Op: op, Err: err}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &mailbox.AuthError{Provider: providerName, Message: "token refresh failed", Err: err}
	}

	return &mailbox.UnavailableError{Provider: providerName, Op: op, Retriable: true, Err: err}
}

// isNotFound reports whether err is the API's 404.
func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// toRemoteMessage converts a raw-format API message.
func toRemoteMessage(msg *gmailapi.Message) mailbox.RemoteMessage {
	rm := mailbox.RemoteMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		LabelIDs: msg.LabelIds,
	}
	if msg.InternalDate > 0 {
		rm.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC()
	}

	if msg.Raw != "" {
		raw, err := decodeRaw(msg.Raw)
		if err == nil {
			p := parseRawMessage(raw)
			rm.Subject = p.Subject
			rm.From = p.From
			rm.To = p.To
			rm.Cc = p.Cc
			rm.Body = p.Body()
			rm.BodyHTML = p.HTMLBody
			rm.MessageID = p.MessageID
			rm.InReplyTo = p.InReplyTo
			if rm.ReceivedAt.IsZero() && !p.Date.IsZero() {
				rm.ReceivedAt = p.Date.UTC()
			}
		}
	}
	if rm.Body == "" {
		rm.Body = msg.Snippet
	}
	return rm
}

// decodeRaw decodes the base64url raw payload, padded or not.
func decodeRaw(s string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}

func header(part *gmailapi.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
