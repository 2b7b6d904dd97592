package notify

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/p-blackswan/engagement-guard/internal/errors"
	"github.com/p-blackswan/engagement-guard/internal/models"
	"github.com/p-blackswan/engagement-guard/internal/retry"
	"github.com/p-blackswan/engagement-guard/internal/store"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
}

type fakePoster struct {
	mu       sync.Mutex
	calls    int
	channels []string
	errs     []error
}

func (f *fakePoster) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.channels = append(f.channels, channelID)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", "", err
	}
	return channelID, "1700000000.000100", nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func criticalAlert() Alert {
	return Alert{
		Severity: SeverityUrgent,
		Title:    "Cooldown started",
		Message:  "verification challenge present",
		Blocking: true,
		Level:    models.AlertCritical,
		Signals: []models.DetectionSignal{
			{Code: "challenge_marker", Message: "captcha", Severity: models.AlertCritical},
		},
		At: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
}

func TestSlackNotifier_Bot(t *testing.T) {
	poster := &fakePoster{}
	n := NewSlackBotNotifier(poster, "C123", fastRetry(), zerolog.Nop())

	require.NoError(t, n.Notify(context.Background(), criticalAlert()))
	assert.Equal(t, 1, poster.calls)
	assert.Equal(t, []string{"C123"}, poster.channels)
}

func TestSlackNotifier_RetriesRateLimit(t *testing.T) {
	poster := &fakePoster{errs: []error{&slack.RateLimitedError{RetryAfter: time.Millisecond}}}
	n := NewSlackBotNotifier(poster, "C123", fastRetry(), zerolog.Nop())

	require.NoError(t, n.Notify(context.Background(), criticalAlert()))
	assert.Equal(t, 2, poster.calls)
}

func TestSlackNotifier_NoRetryOnAuthError(t *testing.T) {
	poster := &fakePoster{errs: []error{errors.New("invalid_auth")}}
	n := NewSlackBotNotifier(poster, "C123", fastRetry(), zerolog.Nop())

	err := n.Notify(context.Background(), criticalAlert())
	assert.Error(t, err)
	assert.Equal(t, 1, poster.calls)
}

func TestSlackNotifier_Webhook(t *testing.T) {
	var got *slack.WebhookMessage
	var gotURL string
	calls := 0
	post := func(_ context.Context, url string, msg *slack.WebhookMessage) error {
		calls++
		if calls == 1 {
			return slack.StatusCodeError{Code: 503, Status: "503 Service Unavailable"}
		}
		gotURL, got = url, msg
		return nil
	}
	n := NewSlackWebhookNotifier("https://hooks.example/T/B/x", post, fastRetry(), zerolog.Nop())

	require.NoError(t, n.Notify(context.Background(), criticalAlert()))
	assert.Equal(t, 2, calls)
	assert.Equal(t, "https://hooks.example/T/B/x", gotURL)
	require.NotNil(t, got)
	assert.Contains(t, got.Text, "Cooldown started")
	require.NotNil(t, got.Blocks)
	assert.NotEmpty(t, got.Blocks.BlockSet)
}

func TestNewSlackNotifier_Unconfigured(t *testing.T) {
	assert.Nil(t, NewSlackNotifier(SlackConfig{}, zerolog.Nop()))
	assert.Nil(t, NewSlackNotifier(SlackConfig{BotToken: "xoxb-1"}, zerolog.Nop()), "bot needs a channel")
	assert.NotNil(t, NewSlackNotifier(SlackConfig{WebhookURL: "https://hooks.example/x"}, zerolog.Nop()))
}

func TestClassifySlackError(t *testing.T) {
	assert.NoError(t, classifySlackError(nil))

	err := classifySlackError(&slack.RateLimitedError{RetryAfter: 3 * time.Second})
	assert.True(t, gerrors.IsRetryable(err))
	assert.Equal(t, 3*time.Second, gerrors.RetryAfter(err))

	assert.True(t, gerrors.IsRetryable(classifySlackError(slack.StatusCodeError{Code: 502})))
	assert.False(t, gerrors.IsRetryable(classifySlackError(slack.StatusCodeError{Code: 404})))
}

func TestFormatTextAndBlocks(t *testing.T) {
	a := criticalAlert()
	text := FormatText(a)
	assert.Contains(t, text, "URGENT")
	assert.Contains(t, text, "operator resumes")

	// header, body, divider, signals, context
	assert.Len(t, AlertBlocks(a), 5)

	a.Signals = nil
	a.Message = ""
	a.Blocking = false
	assert.Len(t, AlertBlocks(a), 2)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc…", truncate("abcdef", 3))
	// never split a multi-byte rune
	assert.Equal(t, "a…", truncate("aé", 2))
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityUrgent, SeverityFor(models.AlertCritical))
	assert.Equal(t, SeverityWarning, SeverityFor(models.AlertHigh))
	assert.Equal(t, SeverityWarning, SeverityFor(models.AlertMedium))
	assert.Equal(t, SeverityInfo, SeverityFor(models.AlertLow))
}

func TestMultiNotifier_JoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("down")}
	multi := NewMultiNotifier(ok, bad, NewLogNotifier(zerolog.Nop()), Nop{})

	err := multi.Notify(context.Background(), criticalAlert())
	assert.Error(t, err)
	assert.Len(t, ok.alerts, 1, "a failing notifier does not stop the others")
	assert.Len(t, bad.alerts, 1)
}

func TestOutbox_ParksAndRedelivers(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "guard.db"), zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time { return now })

	next := &recordingNotifier{err: errors.New("slack down")}
	o := NewOutbox(next, "slack", st, zerolog.Nop())
	o.now = func() time.Time { return now }

	ctx := context.Background()
	assert.Error(t, o.Notify(ctx, criticalAlert()))

	// not due yet
	n, err := o.Redeliver(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	now = now.Add(2 * time.Minute)
	next.err = nil
	n, err = o.Redeliver(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, next.alerts, 2)
	assert.Equal(t, "Cooldown started", next.alerts[1].Title)
	assert.Equal(t, models.AlertCritical, next.alerts[1].Level)

	n, err = o.Redeliver(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "resolved letters are not resent")
}

type brokenLetterStore struct {
	letters    []*store.DeadLetter
	retryErr   error
	retriedIDs []string
}

func (b *brokenLetterStore) SaveDeadLetter(context.Context, *store.DeadLetter) error { return nil }

func (b *brokenLetterStore) ListRetryable(context.Context, int) ([]*store.DeadLetter, error) {
	return b.letters, nil
}

func (b *brokenLetterStore) IncrementRetry(_ context.Context, id string, _ time.Time, _ string) error {
	b.retriedIDs = append(b.retriedIDs, id)
	return b.retryErr
}

func (b *brokenLetterStore) ResolveDeadLetter(context.Context, string) error { return nil }

func TestOutbox_UndecodableLetterLogsRetryFailure(t *testing.T) {
	st := &brokenLetterStore{
		letters:  []*store.DeadLetter{{ID: "dl-1", Target: "slack", Message: "{not json"}},
		retryErr: errors.New("database is locked"),
	}
	var buf bytes.Buffer
	next := &recordingNotifier{}
	o := NewOutbox(next, "slack", st, zerolog.New(&buf))

	n, err := o.Redeliver(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, next.alerts)
	assert.Equal(t, []string{"dl-1"}, st.retriedIDs)
	assert.Contains(t, buf.String(), "failed to abandon alert")
	assert.Contains(t, buf.String(), "database is locked")
}

func TestRedeliveryDelay(t *testing.T) {
	assert.Equal(t, time.Minute, redeliveryDelay(0))
	assert.Equal(t, 4*time.Minute, redeliveryDelay(2))
	assert.Equal(t, time.Hour, redeliveryDelay(10))
	assert.Equal(t, time.Hour, redeliveryDelay(100))
}
