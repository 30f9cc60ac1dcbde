package backup

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebhookNotifier_PostsStatusEvents(t *testing.T) {
	received := make(chan statusEvent, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Auth-Token"))

		var event statusEvent
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		received <- event
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(nil, WebhookConfig{
		URL:     server.URL,
		Headers: map[string]string{"X-Auth-Token": "secret"},
	})

	notifier.NotifyStatus(SyncStatusComplete, "all done")

	event := <-received
	assert.Equal(t, "status", event.Event)
	assert.Equal(t, SyncStatusComplete, event.Status)
	assert.Equal(t, "all done", event.Message)
	assert.False(t, event.Timestamp.IsZero())
}

func TestWebhookNotifier_DeliveryFailureDoesNotPanic(t *testing.T) {
	notifier := NewWebhookNotifier(nil, WebhookConfig{URL: "http://127.0.0.1:1"})

	assert.NotPanics(t, func() {
		notifier.NotifyStatus(SyncStatusError, "unreachable endpoint")
	})
}

func TestNewNotifier_StackSelection(t *testing.T) {
	t.Run("disabled falls back to log only", func(t *testing.T) {
		notifier := NewNotifier(nil, NotificationConfig{Enabled: false})
		_, ok := notifier.(*LogNotifier)
		assert.True(t, ok)
	})

	t.Run("enabled without webhook stays log only", func(t *testing.T) {
		notifier := NewNotifier(nil, NotificationConfig{Enabled: true})
		_, ok := notifier.(*LogNotifier)
		assert.True(t, ok)
	})

	t.Run("enabled with webhook fans out", func(t *testing.T) {
		notifier := NewNotifier(nil, NotificationConfig{
			Enabled: true,
			Webhook: &WebhookConfig{URL: "https://hooks.example.com/backup"},
		})
		_, ok := notifier.(*MultiNotifier)
		assert.True(t, ok)
	})
}

func TestMultiNotifier_FansOut(t *testing.T) {
	var calls []SyncStatus
	first := notifierFunc(func(status SyncStatus) { calls = append(calls, status) })
	second := notifierFunc(func(status SyncStatus) { calls = append(calls, status) })

	multi := NewMultiNotifier(first, second)
	multi.NotifyStatus(SyncStatusUploading, "")
	assert.Len(t, calls, 2)
}

// notifierFunc adapts a function to the Notifier interface for tests
type notifierFunc func(status SyncStatus)

func (nf notifierFunc) NotifyStatus(status SyncStatus, message string) { nf(status) }
func (nf notifierFunc) NotifyProgress(status SyncStatus, percent float64) {}
