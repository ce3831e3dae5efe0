package notifications

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig(name, url string) WebhookConfig {
	return WebhookConfig{
		Name:             name,
		URL:              url,
		Timeout:          time.Second,
		MaxAttempts:      2,
		RetryDelay:       time.Millisecond,
		FailureThreshold: 2,
		BreakerTimeout:   time.Minute,
	}
}

func TestWebhookClient_Send(t *testing.T) {
	t.Run("posts the encoded payload", func(t *testing.T) {
		var body map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewSlackClient(fastConfig("slack", server.URL), newTestLogger())
		err := client.Send(context.Background(), Message{Subject: "Meeting finalized", Body: "done"})

		require.NoError(t, err)
		assert.Equal(t, "Meeting finalized\ndone", body["text"])
	})

	t.Run("retries a transient failure within one send", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewSlackClient(fastConfig("slack", server.URL), newTestLogger())
		err := client.Send(context.Background(), Message{Subject: "s", Body: "b"})

		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("fails after exhausting attempts", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewSlackClient(fastConfig("slack", server.URL), newTestLogger())
		err := client.Send(context.Background(), Message{Subject: "s", Body: "b"})

		assert.ErrorContains(t, err, "status 500")
	})

	t.Run("opens the circuit after consecutive failures", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewSlackClient(fastConfig("slack", server.URL), newTestLogger())
		ctx := context.Background()

		require.Error(t, client.Send(ctx, Message{Subject: "s"}))
		require.Error(t, client.Send(ctx, Message{Subject: "s"}))

		err := client.Send(ctx, Message{Subject: "s"})
		assert.ErrorIs(t, err, ErrCircuitOpen)
	})
}

func TestChannelEncodings(t *testing.T) {
	var body map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	msg := Message{Subject: "Open slot claimed", Body: "Ada picked a slot"}

	t.Run("chatwork wraps in an info block", func(t *testing.T) {
		client := NewChatworkClient(fastConfig("chatwork", server.URL), newTestLogger())
		require.NoError(t, client.Send(context.Background(), msg))
		assert.Equal(t, "[info][title]Open slot claimed[/title]Ada picked a slot[/info]", body["body"])
	})

	t.Run("sms flattens to a single line", func(t *testing.T) {
		client := NewSMSClient(fastConfig("sms", server.URL), newTestLogger())
		require.NoError(t, client.Send(context.Background(), msg))
		assert.Equal(t, "Open slot claimed: Ada picked a slot", body["message"])
	})
}
