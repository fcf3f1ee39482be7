package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gc-sentinel/gc-sentinel/internal/config"
	"github.com/gc-sentinel/gc-sentinel/internal/model"
)

// WebhookNotifier posts reports as JSON to an HTTP endpoint. The payload
// carries a markdown rendering for chat webhooks and the report itself for
// machine consumers.
type WebhookNotifier struct {
	webhookURL string
	retries    int
	retryDelay time.Duration
	client     *http.Client
}

// webhookMessage is the posted payload.
type webhookMessage struct {
	MsgType  string           `json:"msgtype"`
	Markdown *markdownContent `json:"markdown,omitempty"`
	Report   *model.Report    `json:"report,omitempty"`
}

type markdownContent struct {
	Content string `json:"content"`
}

// webhookResponse is the optional JSON acknowledgement of chat webhooks.
type webhookResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// NewWebhookNotifier creates a new webhook notifier.
func NewWebhookNotifier(cfg *config.NotifierConfig) (*WebhookNotifier, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("webhook notifier needs a url")
	}
	retryDelay, err := cfg.RetryDelayParsed()
	if err != nil {
		retryDelay = time.Second
	}

	return &WebhookNotifier{
		webhookURL: cfg.WebhookURL,
		retries:    cfg.Retries,
		retryDelay: retryDelay,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns the notifier name.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// Send posts the report.
func (w *WebhookNotifier) Send(ctx context.Context, report *model.Report) error {
	msg := webhookMessage{
		MsgType: "markdown",
		Markdown: &markdownContent{
			Content: formatMarkdown(report),
		},
		Report: report,
	}

	return w.sendWithRetry(ctx, msg)
}

// formatMarkdown renders the report for chat channels.
func formatMarkdown(report *model.Report) string {
	s := report.Summary
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## %s GC Sentinel Report\n\n", getStatusEmoji(report.Health.Status)))

	sb.WriteString("### 📊 Summary\n")
	sb.WriteString(fmt.Sprintf("> **Resource**: `%s` (%s)\n", report.Resource, report.Dialect))
	sb.WriteString(fmt.Sprintf("> **Health Score**: %d/100 (%s)\n", report.Health.Score, report.Health.Status))
	sb.WriteString(fmt.Sprintf("> **Events**: %d young, %d full, %d concurrent\n",
		s.YoungCount, s.FullCount, s.ConcurrentCount))
	if s.HasThroughput {
		sb.WriteString(fmt.Sprintf("> **Throughput**: %.2f%%\n", s.Throughput))
	}
	if s.Pause.N > 0 {
		sb.WriteString(fmt.Sprintf("> **Max Pause**: %.3fs\n", s.Pause.Max))
	}
	sb.WriteString(fmt.Sprintf("> **Footprint**: %s\n\n", humanize.IBytes(uint64(s.Footprint)*1024)))

	if len(report.Health.Findings) > 0 {
		sb.WriteString("### 🔎 Findings\n")
		for i, f := range report.Health.Findings {
			if i >= 5 { // Limit to top 5 in message
				sb.WriteString(fmt.Sprintf("... and %d more\n", len(report.Health.Findings)-5))
				break
			}
			sb.WriteString(fmt.Sprintf("%s **%s** (%s): %s\n", getSeverityIcon(f.Severity), f.Rule, f.Severity, f.Message))
		}
		sb.WriteString("\n")
	}

	if report.Failures.Total > 0 {
		sb.WriteString(fmt.Sprintf("⚠️ %d records skipped\n\n", report.Failures.Total))
	}

	sb.WriteString("---\n")
	sb.WriteString(fmt.Sprintf("*Run ID: %s*\n", report.RunID))

	return sb.String()
}

// sendWithRetry sends the message with exponential backoff retry.
func (w *WebhookNotifier) sendWithRetry(ctx context.Context, msg webhookMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	var lastErr error
	delay := w.retryDelay

	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2 // Exponential backoff
			}
		}

		err := w.send(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d retries: %w", w.retries, lastErr)
}

// send performs the actual HTTP request.
func (w *WebhookNotifier) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	// chat webhooks acknowledge with {"errcode":0}; other bodies are ignored
	var result webhookResponse
	if err := json.Unmarshal(data, &result); err == nil && result.ErrCode != 0 {
		return fmt.Errorf("webhook error: %d - %s", result.ErrCode, result.ErrMsg)
	}

	return nil
}

// Helper functions

func getStatusEmoji(status string) string {
	switch status {
	case "healthy":
		return "✅"
	case "warning":
		return "⚠️"
	case "degraded":
		return "🟠"
	default:
		return "🔴"
	}
}

func getSeverityIcon(severity string) string {
	switch severity {
	case "critical":
		return "🔴"
	case "high":
		return "🟠"
	case "medium":
		return "🟡"
	default:
		return "🔵"
	}
}
