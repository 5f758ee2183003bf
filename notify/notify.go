// Package notify delivers finished reports. Delivery is best-effort: a
// failing target is reported to the caller and logged, never retried here.
package notify

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
)

// Message is one report delivery.
type Message struct {
	Subject      string    `json:"subject"`
	Body         string    `json:"body"`
	Channel      string    `json:"channel"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	ReportPath   string    `json:"report_path,omitempty"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Notifier accepts (subject, body) pairs for delivery.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, msg Message) error

func (f Func) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Nop discards every message.
var Nop Notifier = Func(func(context.Context, Message) error { return nil })

// LogNotifier writes reports to the structured log.
type LogNotifier struct {
	logger  *zap.SugaredLogger
	preview int
}

// NewLogNotifier logs each report with a body preview of up to 280 runes.
func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger.OrNop(log), preview: 280}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Infow("Report ready",
		"subject", msg.Subject,
		logger.FieldChannel, msg.Channel,
		logger.FieldPath, msg.ReportPath,
		"body", truncate(msg.Body, n.preview),
	)
	return nil
}

// Multi fans a message out to every target. All targets are attempted;
// failures are combined into one NotifyError.
type Multi struct {
	targets []Notifier
	logger  *zap.SugaredLogger
}

// NewMulti builds a fan-out over targets, skipping nils.
func NewMulti(log *zap.SugaredLogger, targets ...Notifier) *Multi {
	m := &Multi{logger: logger.OrNop(log)}
	for _, t := range targets {
		if t != nil {
			m.targets = append(m.targets, t)
		}
	}
	return m
}

// Len returns the number of targets.
func (m *Multi) Len() int {
	return len(m.targets)
}

func (m *Multi) Notify(ctx context.Context, msg Message) error {
	var failed []string
	var first error
	for _, t := range m.targets {
		if err := t.Notify(ctx, msg); err != nil {
			m.logger.Warnw("Notification target failed",
				"subject", msg.Subject,
				logger.FieldError, err,
			)
			failed = append(failed, err.Error())
			if first == nil {
				first = err
			}
		}
	}
	if first == nil {
		return nil
	}
	err := errors.WrapNotify(first, "%d of %d notification targets failed", len(failed), len(m.targets))
	return errors.WithDetail(err, strings.Join(failed, "; "))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
