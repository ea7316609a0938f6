package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fkhayef/villagebank/internal/domain"
)

// LogSink writes notifications to the structured log
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, n *domain.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"notification_id", n.ID,
		"type", n.Type,
		"user_id", n.UserID,
		"title", n.Title,
	)
	return nil
}

// WebhookSink POSTs each notification as JSON to a downstream service
type WebhookSink struct {
	URL    string
	Client *http.Client
}

// NewWebhookSink creates a sink with a bounded request timeout
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{URL: url, Client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	UserID    string            `json:"userId"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

func (s *WebhookSink) Deliver(ctx context.Context, n *domain.Notification) error {
	body, err := json.Marshal(webhookPayload{
		ID:        n.ID.String(),
		Type:      string(n.Type),
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
	return nil
}
