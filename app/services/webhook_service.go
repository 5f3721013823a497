package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// WebhookService notifies external endpoints about tracked visits. Delivery
// is best effort: each endpoint gets its own timeout and a bounded number of
// retries, and a failing endpoint never affects the others.
type WebhookService interface {
	NotifyVisit(ctx context.Context, payload any) error
}

// HTTPWebhookService implements WebhookService over plain HTTP POSTs with a
// JSON body
type HTTPWebhookService struct {
	urls       []string
	client     *http.Client
	retryCount int
}

// NewHTTPWebhookService creates a webhook service posting to urls with the
// given per-request timeout and retry count
func NewHTTPWebhookService(urls []string, timeout time.Duration, retryCount int) *HTTPWebhookService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retryCount < 0 {
		retryCount = 0
	}
	return &HTTPWebhookService{
		urls:       urls,
		client:     &http.Client{Timeout: timeout},
		retryCount: retryCount,
	}
}

// NotifyVisit posts payload to every configured endpoint. It returns the
// first delivery error after all endpoints were attempted, so callers can log
// one failure without skipping the remaining endpoints.
func (s *HTTPWebhookService) NotifyVisit(ctx context.Context, payload any) error {
	if len(s.urls) == 0 {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	var firstErr error
	for _, url := range s.urls {
		if err := s.deliver(ctx, url, body); err != nil {
			log.Printf("Webhook delivery to %s failed: %v", url, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *HTTPWebhookService) deliver(ctx context.Context, url string, body []byte) error {
	var lastErr error
	for attempt := 0; attempt <= s.retryCount; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return lastErr
}

// MockWebhookService records payloads; used in tests
type MockWebhookService struct {
	Payloads []any
	Err      error
}

func NewMockWebhookService() *MockWebhookService {
	return &MockWebhookService{}
}

func (s *MockWebhookService) NotifyVisit(_ context.Context, payload any) error {
	s.Payloads = append(s.Payloads, payload)
	return s.Err
}
