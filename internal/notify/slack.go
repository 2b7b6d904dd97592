package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	gerrors "github.com/p-blackswan/engagement-guard/internal/errors"
	"github.com/p-blackswan/engagement-guard/internal/retry"
)

const maxSignalsInMessage = 5

// SlackPoster is the subset of *slack.Client used for bot delivery.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// WebhookPoster posts to an incoming webhook.
type WebhookPoster func(ctx context.Context, url string, msg *slack.WebhookMessage) error

// SlackNotifier delivers alerts through an incoming webhook, or through
// the Web API when a bot token and channel are configured.
type SlackNotifier struct {
	webhookURL string
	webhook    WebhookPoster
	channel    string
	bot        SlackPoster
	retry      retry.Config
	logger     zerolog.Logger
}

// SlackConfig selects the delivery path.
type SlackConfig struct {
	WebhookURL string
	BotToken   string
	Channel    string
}

// NewSlackNotifier builds a notifier. It returns nil when cfg has no usable
// delivery path.
func NewSlackNotifier(cfg SlackConfig, logger zerolog.Logger) *SlackNotifier {
	n := &SlackNotifier{
		retry:  retry.DefaultConfig(),
		logger: logger.With().Str("component", "notify-slack").Logger(),
	}
	switch {
	case cfg.BotToken != "" && cfg.Channel != "":
		n.bot = slack.New(cfg.BotToken)
		n.channel = cfg.Channel
	case cfg.WebhookURL != "":
		n.webhookURL = cfg.WebhookURL
		n.webhook = slack.PostWebhookContext
	default:
		return nil
	}
	n.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		n.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("slack delivery failed, retrying")
	}
	return n
}

// NewSlackBotNotifier builds a notifier around an existing poster.
func NewSlackBotNotifier(bot SlackPoster, channel string, cfg retry.Config, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{bot: bot, channel: channel, retry: cfg, logger: logger}
}

// NewSlackWebhookNotifier builds a notifier around a webhook poster.
func NewSlackWebhookNotifier(url string, post WebhookPoster, cfg retry.Config, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{webhookURL: url, webhook: post, retry: cfg, logger: logger}
}

// Notify sends a with retries on transient failures.
func (n *SlackNotifier) Notify(ctx context.Context, a Alert) error {
	text := FormatText(a)
	blocks := AlertBlocks(a)

	err := retry.Do(ctx, n.retry, func(ctx context.Context) error {
		if n.bot != nil {
			_, _, err := n.bot.PostMessageContext(ctx, n.channel,
				slack.MsgOptionText(text, false),
				slack.MsgOptionBlocks(blocks...),
			)
			return classifySlackError(err)
		}
		return classifySlackError(n.webhook(ctx, n.webhookURL, &slack.WebhookMessage{
			Text:   text,
			Blocks: &slack.Blocks{BlockSet: blocks},
		}))
	})
	if err != nil {
		return fmt.Errorf("slack notify: %w", err)
	}

	n.logger.Info().
		Str("severity", string(a.Severity)).
		Str("title", a.Title).
		Msg("alert sent")
	return nil
}

// classifySlackError converts client errors into APIError so the retry
// policy can see status codes and backoff hints.
func classifySlackError(err error) error {
	if err == nil {
		return nil
	}
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return &gerrors.APIError{
			Service:    "slack",
			StatusCode: http.StatusTooManyRequests,
			Message:    "rate limited",
			RetryAfter: rl.RetryAfter,
			Err:        err,
		}
	}
	var sc slack.StatusCodeError
	if errors.As(err, &sc) {
		return &gerrors.APIError{Service: "slack", StatusCode: sc.Code, Message: sc.Status, Err: err}
	}
	return err
}

// FormatText renders the plain-text fallback.
func FormatText(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", severityEmoji(a.Severity), strings.ToUpper(string(a.Severity)), a.Title)
	if a.Message != "" {
		b.WriteString("\n")
		b.WriteString(a.Message)
	}
	if a.Blocking {
		b.WriteString("\nAutomation is stopped until an operator resumes it.")
	}
	return b.String()
}

// AlertBlocks renders a as Block Kit blocks.
func AlertBlocks(a Alert) []slack.Block {
	header := fmt.Sprintf("%s %s", severityEmoji(a.Severity), a.Title)
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", truncate(header, 150), false, false)),
	}

	body := a.Message
	if a.Blocking {
		body += "\n*Automation is stopped until an operator resumes it.*"
	}
	if body != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", truncate(body, 2900), false, false),
			nil, nil,
		))
	}

	if len(a.Signals) > 0 {
		var lines []string
		for i, s := range a.Signals {
			if i == maxSignalsInMessage {
				lines = append(lines, fmt.Sprintf("_and %d more_", len(a.Signals)-maxSignalsInMessage))
				break
			}
			lines = append(lines, fmt.Sprintf("• `%s` %s (%s)", s.Code, s.Message, s.Severity))
		}
		blocks = append(blocks, slack.NewDividerBlock(), slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", truncate(strings.Join(lines, "\n"), 2900), false, false),
			nil, nil,
		))
	}

	ctxText := fmt.Sprintf("level *%s*", a.Level)
	if !a.At.IsZero() {
		ctxText += " · " + a.At.UTC().Format(time.RFC3339)
	}
	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject("mrkdwn", ctxText, false, false),
	))
	return blocks
}

// truncate shortens s to n bytes, appending "…" if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
