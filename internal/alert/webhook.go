package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bantayph/bantay/pkg/utils"
)

// WebhookSender posts alerts to a configured HTTP endpoint with retry.
type WebhookSender struct {
	config     *ManagerConfig
	httpClient *http.Client
}

// WebhookPayload is the JSON body posted to the webhook endpoint.
type WebhookPayload struct {
	Alert     *Alert    `json:"alert"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(config *ManagerConfig) *WebhookSender {
	return &WebhookSender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.WebhookTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Send posts the alert, retrying with a fixed delay on failure. 4xx
// responses are not retried since a malformed request will not improve.
func (ws *WebhookSender) Send(ctx context.Context, alert *Alert) error {
	payload := &WebhookPayload{
		Alert:     alert,
		Timestamp: time.Now(),
		Source:    "bantay",
		Version:   "1.0",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal alert payload", err.Error())
	}

	attempts := ws.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ws.config.RetryDelay):
			}
		}

		lastErr = ws.post(ctx, body)
		if lastErr == nil {
			return nil
		}

		if appErr, ok := lastErr.(*utils.AppError); ok && appErr.Code == utils.ErrCodeValidation {
			return lastErr
		}
	}

	return lastErr
}

func (ws *WebhookSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to build webhook request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "bantay-alert/1.0")

	resp, err := ws.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Webhook request failed", err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return utils.NewAppError(utils.ErrCodeValidation, "Webhook rejected alert",
			fmt.Sprintf("status code %d", resp.StatusCode))
	default:
		return utils.NewAppError(utils.ErrCodeInternal, "Webhook returned server error",
			fmt.Sprintf("status code %d", resp.StatusCode))
	}
}
