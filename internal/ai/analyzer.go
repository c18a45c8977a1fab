package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mail-triage/internal/metrics"
	"github.com/nhle/mail-triage/internal/model"
	"github.com/nhle/mail-triage/internal/store"
)

const defaultBatchSize = 10

// Analyzer fills in summary, type and priority for rows the classifier
// has not seen yet.
type Analyzer struct {
	store      store.Store
	classifier Classifier
	batchSize  int
	logger     *zap.Logger
	now        func() time.Time
}

// NewAnalyzer creates an analyzer processing at most batchSize rows per run.
func NewAnalyzer(s store.Store, c Classifier, batchSize int, logger *zap.Logger) *Analyzer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Analyzer{
		store:      s,
		classifier: c,
		batchSize:  batchSize,
		logger:     logger,
		now:        time.Now,
	}
}

// AnalyzePending classifies up to one batch of unsummarized rows, newest
// first, and returns how many rows were updated. A failing row is logged
// and left for the next run.
func (a *Analyzer) AnalyzePending(ctx context.Context) (int, error) {
	pending, err := a.store.ListMessages(ctx, store.MessageFilter{
		NeedsSummary: true,
		Limit:        a.batchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("listing unsummarized messages: %w", err)
	}

	done := 0
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		msg := &pending[i]
		err := a.analyze(ctx, msg)
		switch {
		case err == nil:
			done++
		case errors.Is(err, ErrNoAPIKey):
			return done, err
		default:
			metrics.RecordAnalyzed("failed")
			a.logger.Warn("message analysis failed",
				zap.Int64("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	if done > 0 {
		a.logger.Info("messages analyzed", zap.Int("count", done), zap.Int("pending", len(pending)))
	}
	return done, nil
}

// AnalyzeMessage classifies message id now, replacing any earlier
// summary. Sent and draft rows are rejected.
func (a *Analyzer) AnalyzeMessage(ctx context.Context, id int64) error {
	msg, err := a.store.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg.Type == model.TypeSent || msg.Type == model.TypeDraft {
		return fmt.Errorf("message %d is %s and is not classified", id, msg.Type)
	}
	if err := a.analyze(ctx, msg); err != nil {
		if !errors.Is(err, ErrNoAPIKey) {
			metrics.RecordAnalyzed("failed")
		}
		return fmt.Errorf("analyzing message %d: %w", id, err)
	}
	return nil
}

func (a *Analyzer) analyze(ctx context.Context, msg *model.Message) error {
	recipients, err := a.store.GetRecipients(ctx, msg.ID)
	if err != nil {
		return err
	}
	in := Input{Subject: msg.Subject, Sender: msg.Sender, Body: msg.Body}
	for _, r := range recipients {
		if r.Kind == model.RecipientCc {
			in.Cc = append(in.Cc, r.Address)
		} else {
			in.To = append(in.To, r.Address)
		}
	}

	now := a.now().UTC()
	upd := store.MessageUpdate{SummaryGeneratedAt: &now}

	res, err := a.classifier.Analyze(ctx, in)
	switch {
	case errors.Is(err, ErrEmptyBody):
		// Mark it so the row leaves the queue.
		upd.Summary = model.StringPtr(FallbackSummary)
		metrics.RecordAnalyzed("empty")
	case err != nil:
		return err
	default:
		upd.Summary = &res.Summary
		upd.Priority = &res.Priority
		if aiMayRetype(msg) {
			origin := model.OriginAI
			upd.Type = &res.Type
			upd.TypeOrigin = &origin
		}
		metrics.RecordAnalyzed("success")
	}

	if _, err := a.store.UpdateMessage(ctx, msg.ID, upd); err != nil {
		return fmt.Errorf("storing analysis for message %d: %w", msg.ID, err)
	}
	return nil
}

// aiMayRetype reports whether the classifier verdict may replace the
// current type. User choices and label-driven junk win.
func aiMayRetype(msg *model.Message) bool {
	if msg.TypeOrigin == model.OriginLocal {
		return false
	}
	if msg.TypeOrigin == model.OriginLabel && msg.Type == model.TypeJunk {
		return false
	}
	return msg.Type.Triage()
}

// SuggestReply asks the classifier for a reply body to message id.
func (a *Analyzer) SuggestReply(ctx context.Context, id int64) (string, error) {
	msg, err := a.store.GetMessage(ctx, id)
	if err != nil {
		return "", err
	}

	in := ReplyInput{
		Subject: msg.Subject,
		Sender:  msg.Sender,
		To:      []string{msg.Sender},
		Body:    msg.Body,
	}
	for _, r := range msg.Recipients {
		if r.Kind == model.RecipientCc {
			in.Cc = append(in.Cc, r.Address)
		}
	}
	if msg.Draft != nil {
		in.CurrentDraft = *msg.Draft
	}

	text, err := a.classifier.SuggestReply(ctx, in)
	if err != nil {
		return "", fmt.Errorf("suggesting reply for message %d: %w", id, err)
	}
	return text, nil
}
