package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/engagement-guard/internal/store"
)

// MaxRedeliveries is how many times a dead letter is retried before it is
// abandoned.
const MaxRedeliveries = 5

// DeadLetterStore persists undelivered alerts.
type DeadLetterStore interface {
	SaveDeadLetter(ctx context.Context, dl *store.DeadLetter) error
	ListRetryable(ctx context.Context, limit int) ([]*store.DeadLetter, error)
	IncrementRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	ResolveDeadLetter(ctx context.Context, id string) error
}

// Outbox wraps a notifier. Alerts that fail delivery are parked in the
// dead-letter table and retried by Redeliver.
type Outbox struct {
	next   Notifier
	target string
	store  DeadLetterStore
	now    func() time.Time
	logger zerolog.Logger
}

// NewOutbox creates an outbox in front of next.
func NewOutbox(next Notifier, target string, st DeadLetterStore, logger zerolog.Logger) *Outbox {
	return &Outbox{
		next:   next,
		target: target,
		store:  st,
		now:    time.Now,
		logger: logger.With().Str("component", "notify-outbox").Str("target", target).Logger(),
	}
}

// Notify delivers a, parking it on failure. The delivery error is still
// returned.
func (o *Outbox) Notify(ctx context.Context, a Alert) error {
	err := o.next.Notify(ctx, a)
	if err == nil {
		return nil
	}

	payload, mErr := json.Marshal(a)
	if mErr != nil {
		return fmt.Errorf("%w (and encode for outbox: %v)", err, mErr)
	}
	dl := &store.DeadLetter{
		Target:      o.target,
		Severity:    string(a.Severity),
		Message:     string(payload),
		Error:       err.Error(),
		NextRetryAt: o.now().Add(redeliveryDelay(0)),
	}
	if sErr := o.store.SaveDeadLetter(ctx, dl); sErr != nil {
		o.logger.Error().Err(sErr).Msg("failed to park undelivered alert")
	} else {
		o.logger.Warn().Err(err).Str("dead_letter_id", dl.ID).Msg("alert parked for redelivery")
	}
	return err
}

// Redeliver retries parked alerts that are due. It returns how many were
// delivered.
func (o *Outbox) Redeliver(ctx context.Context) (int, error) {
	letters, err := o.store.ListRetryable(ctx, 20)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, dl := range letters {
		if dl.Target != o.target {
			continue
		}
		var a Alert
		if err := json.Unmarshal([]byte(dl.Message), &a); err != nil {
			o.logger.Error().Err(err).Str("dead_letter_id", dl.ID).Msg("abandoning undecodable alert")
			if iErr := o.store.IncrementRetry(ctx, dl.ID, time.Time{}, err.Error()); iErr != nil {
				o.logger.Error().Err(iErr).Str("dead_letter_id", dl.ID).Msg("failed to abandon alert")
			}
			continue
		}

		if err := o.next.Notify(ctx, a); err != nil {
			next := time.Time{}
			if dl.RetryCount+1 < MaxRedeliveries {
				next = o.now().Add(redeliveryDelay(dl.RetryCount + 1))
			}
			if iErr := o.store.IncrementRetry(ctx, dl.ID, next, err.Error()); iErr != nil {
				o.logger.Error().Err(iErr).Str("dead_letter_id", dl.ID).Msg("failed to reschedule alert")
			}
			continue
		}

		if err := o.store.ResolveDeadLetter(ctx, dl.ID); err != nil {
			o.logger.Error().Err(err).Str("dead_letter_id", dl.ID).Msg("failed to resolve alert")
			continue
		}
		delivered++
	}
	return delivered, nil
}

// redeliveryDelay doubles from one minute, capped at an hour.
func redeliveryDelay(retries int) time.Duration {
	d := time.Minute << retries
	if d > time.Hour || d <= 0 {
		return time.Hour
	}
	return d
}
