package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hamed0406/netdiag/internal/domain"
)

var ErrSlackDisabled = errors.New("slack disabled")

// Slack posts to an incoming webhook as one attachment coloured by run
// status.
type Slack struct {
	Webhook string
	Client  *http.Client
}

// NewSlack returns nil when no webhook is configured.
func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{Webhook: webhook, Client: &http.Client{Timeout: 10 * time.Second}}
}

type slackAttachment struct {
	Color    string `json:"color"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Fallback string `json:"fallback"`
}

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

func slackColor(s domain.RunStatus) string {
	switch s {
	case domain.RunAllSuccess:
		return "good"
	case domain.RunPartialFailure:
		return "warning"
	default:
		return "danger"
	}
}

func (s *Slack) Send(ctx context.Context, msg Message) error {
	if s == nil || s.Webhook == "" {
		return ErrSlackDisabled
	}
	body, err := json.Marshal(slackPayload{Attachments: []slackAttachment{{
		Color:    slackColor(msg.Status),
		Title:    msg.Title,
		Text:     msg.Text,
		Fallback: msg.Title,
	}}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		// Slack explains rejections in a short plain-text body.
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, bytes.TrimSpace(reason))
	}
	return nil
}
