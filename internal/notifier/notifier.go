// Package notifier publishes parse reports to external channels.
package notifier

import (
	"context"
	"fmt"
	"io"

	"github.com/gc-sentinel/gc-sentinel/internal/config"
	"github.com/gc-sentinel/gc-sentinel/internal/model"
)

// Notifier is the interface for publishing reports to external channels.
type Notifier interface {
	// Send publishes the report to the notification channel.
	Send(ctx context.Context, report *model.Report) error

	// Name returns the name of the notifier.
	Name() string
}

// New builds the notifier selected by cfg. Console output goes to w.
func New(cfg *config.NotifierConfig, w io.Writer) (Notifier, error) {
	switch cfg.Type {
	case "", "console":
		return NewConsoleNotifier(w), nil
	case "webhook":
		return NewWebhookNotifier(cfg)
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown notifier type %q", cfg.Type)
	}
}

// Nop discards every report.
type Nop struct{}

// Name returns the notifier name.
func (Nop) Name() string { return "none" }

// Send does nothing.
func (Nop) Send(context.Context, *model.Report) error { return nil }
