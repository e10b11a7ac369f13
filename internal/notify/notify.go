// Package notify delivers progress events with bounded retries and a local
// fallback log. Delivery problems never reach the caller.
package notify

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
	"github.com/JakeFAU/delta-harvester/internal/metrics"
)

// MaxDescriptionLen is the longest description chat embeds accept.
const MaxDescriptionLen = 4096

// Config controls event titles and the retry discipline.
type Config struct {
	Title      string
	MaxRetries int
	RetryDelay time.Duration
}

// Notifier implements harvest.Notifier on top of a Channel.
type Notifier struct {
	channel  harvest.Channel
	title    string
	policy   harvest.LinearRetryPolicy
	fallback *zap.Logger
	logger   *zap.Logger
	now      func() time.Time
}

var _ harvest.Notifier = (*Notifier)(nil)

// New builds a Notifier. A nil channel disables delivery; events are then
// only logged. fallback receives undeliverable events.
func New(channel harvest.Channel, cfg Config, fallback, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallback == nil {
		fallback = logger
	}
	title := cfg.Title
	if title == "" {
		title = "delta-harvester"
	}
	return &Notifier{
		channel:  channel,
		title:    title,
		policy:   harvest.NewLinearRetryPolicy(cfg.MaxRetries, cfg.RetryDelay),
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Send delivers message with up to MaxRetries+1 attempts. On exhaustion the
// event is written to the fallback log and Send returns normally.
func (n *Notifier) Send(ctx context.Context, message string, severity harvest.Severity) {
	evt := harvest.Event{
		Title:       n.title,
		Description: truncate(message, MaxDescriptionLen),
		Severity:    severity,
		At:          n.now().UTC(),
	}
	if n.channel == nil {
		n.logger.Info("notification", zap.String("severity", string(severity)), zap.String("message", evt.Description))
		return
	}

	var (
		err     error
		attempt int
	)
	for attempt = 1; ; attempt++ {
		err = n.channel.Deliver(ctx, evt)
		if err == nil {
			return
		}
		if !n.policy.ShouldRetry(ctx, err, attempt) {
			break
		}
		n.logger.Debug("notification attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", n.policy.MaxAttempts()),
			zap.Error(err),
		)
		if waitErr := n.policy.Wait(ctx); waitErr != nil {
			err = waitErr
			break
		}
	}

	metrics.ObserveNotifyFailure(string(severity))
	n.fallback.Error("notification undelivered",
		zap.String("title", evt.Title),
		zap.String("severity", string(evt.Severity)),
		zap.String("message", evt.Description),
		zap.Time("at", evt.At),
		zap.Int("attempts", attempt),
		zap.String("kind", string(harvest.KindNotifyFailure)),
		zap.Error(err),
	)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
