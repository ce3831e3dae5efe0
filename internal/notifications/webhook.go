package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when a channel's circuit breaker rejects the send.
var ErrCircuitOpen = errors.New("notification channel circuit open")

// WebhookConfig configures an outbound webhook channel.
type WebhookConfig struct {
	// Name identifies the channel for logging and breaker state.
	Name string

	// URL is the webhook endpoint.
	URL string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// MaxAttempts bounds retries within one Send call.
	MaxAttempts int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration

	// FailureThreshold is the number of consecutive failed sends that trips
	// the circuit breaker.
	FailureThreshold uint32

	// BreakerTimeout is the period the breaker stays open before probing.
	BreakerTimeout time.Duration
}

// DefaultWebhookConfig returns sensible defaults for the given endpoint.
func DefaultWebhookConfig(name, url string) WebhookConfig {
	return WebhookConfig{
		Name:             name,
		URL:              url,
		Timeout:          5 * time.Second,
		MaxAttempts:      3,
		RetryDelay:       500 * time.Millisecond,
		FailureThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// WebhookClient posts JSON payloads to a webhook endpoint with bounded
// retries and a circuit breaker in front of the whole send.
type WebhookClient struct {
	config     WebhookConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[any]
	encode     func(Message) any
	logger     *slog.Logger
}

// NewWebhookClient creates a webhook channel. encode maps the generic
// message onto the payload shape the endpoint expects.
func NewWebhookClient(config WebhookConfig, encode func(Message) any, logger *slog.Logger) *WebhookClient {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}

	settings := gobreaker.Settings{
		Name:    config.Name,
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("notification circuit breaker state changed",
				slog.String("channel", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &WebhookClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    gobreaker.NewCircuitBreaker[any](settings),
		encode:     encode,
		logger:     logger,
	}
}

// Name identifies the channel.
func (c *WebhookClient) Name() string {
	return c.config.Name
}

// Send posts the message, retrying up to MaxAttempts within one breaker call.
func (c *WebhookClient) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(c.encode(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	_, err = c.breaker.Execute(func() (any, error) {
		return nil, c.sendWithRetry(ctx, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

func (c *WebhookClient) sendWithRetry(ctx context.Context, payload []byte) error {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if attempt > 1 && c.config.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		lastErr = c.post(ctx, payload)
		if lastErr == nil {
			return nil
		}

		c.logger.Warn("notification send attempt failed",
			slog.String("channel", c.config.Name),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()))
	}
	return lastErr
}

func (c *WebhookClient) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NewSlackClient creates a channel posting Slack incoming-webhook payloads.
func NewSlackClient(config WebhookConfig, logger *slog.Logger) *WebhookClient {
	return NewWebhookClient(config, func(msg Message) any {
		return map[string]string{"text": msg.Subject + "\n" + msg.Body}
	}, logger)
}

// NewChatworkClient creates a channel posting Chatwork-style payloads.
func NewChatworkClient(config WebhookConfig, logger *slog.Logger) *WebhookClient {
	return NewWebhookClient(config, func(msg Message) any {
		return map[string]string{"body": "[info][title]" + msg.Subject + "[/title]" + msg.Body + "[/info]"}
	}, logger)
}

// NewSMSClient creates a channel posting to an SMS gateway webhook.
func NewSMSClient(config WebhookConfig, logger *slog.Logger) *WebhookClient {
	return NewWebhookClient(config, func(msg Message) any {
		return map[string]string{"message": msg.Subject + ": " + msg.Body}
	}, logger)
}
