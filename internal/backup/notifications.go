package backup

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"emr-backup-sync/internal/logging"
)

// defaultWebhookTimeout bounds each webhook delivery
const defaultWebhookTimeout = 10 * time.Second

// progressNotifyStep is the minimum percent delta between progress posts
const progressNotifyStep = 5.0

// NotificationConfig selects which notification sinks are active
type NotificationConfig struct {
	Enabled bool           `yaml:"enabled"`
	Webhook *WebhookConfig `yaml:"webhook,omitempty"`
}

// WebhookConfig for webhook status notifications
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
}

// statusEvent is the JSON payload posted to webhooks
type statusEvent struct {
	Event     string     `json:"event"`
	Status    SyncStatus `json:"status"`
	Message   string     `json:"message,omitempty"`
	Percent   float64    `json:"percent,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// LogNotifier reports status and progress through the structured logger
type LogNotifier struct {
	logger *logging.Logger

	mu          sync.Mutex
	lastPercent float64
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyStatus logs a status transition
func (ln *LogNotifier) NotifyStatus(status SyncStatus, message string) {
	if ln.logger == nil {
		return
	}
	fields := map[string]interface{}{"status": string(status)}
	if message != "" {
		fields["message"] = message
	}
	ln.logger.WithFields(fields).Info("Sync status changed")
}

// NotifyProgress logs progress at measured intervals to avoid log spam
func (ln *LogNotifier) NotifyProgress(status SyncStatus, percent float64) {
	if ln.logger == nil {
		return
	}

	ln.mu.Lock()
	if percent < 100 && percent-ln.lastPercent < progressNotifyStep {
		ln.mu.Unlock()
		return
	}
	ln.lastPercent = percent
	if percent >= 100 {
		ln.lastPercent = 0
	}
	ln.mu.Unlock()

	ln.logger.WithFields(map[string]interface{}{
		"status":  string(status),
		"percent": percent,
	}).Debug("Sync progress")
}

// WebhookNotifier posts status transitions to an HTTP endpoint. Progress
// updates are not forwarded, only terminal and phase transitions. Delivery
// failures are logged and never propagate into the sync path.
type WebhookNotifier struct {
	logger     *logging.Logger
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier
func NewWebhookNotifier(logger *logging.Logger, config WebhookConfig) *WebhookNotifier {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookNotifier{
		logger:     logger,
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NotifyStatus posts a status event to the webhook
func (wn *WebhookNotifier) NotifyStatus(status SyncStatus, message string) {
	wn.post(statusEvent{
		Event:     "status",
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// NotifyProgress is a no-op for webhooks
func (wn *WebhookNotifier) NotifyProgress(status SyncStatus, percent float64) {}

func (wn *WebhookNotifier) post(event statusEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, wn.config.URL, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range wn.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := wn.httpClient.Do(req)
	if err != nil {
		if wn.logger != nil {
			wn.logger.Warnf("webhook notification failed: %v", err)
		}
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 && wn.logger != nil {
		wn.logger.Warnf("webhook notification rejected with status %d", resp.StatusCode)
	}
}

// MultiNotifier fans out to several notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier over the given sinks
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// NotifyStatus forwards the status to every sink
func (mn *MultiNotifier) NotifyStatus(status SyncStatus, message string) {
	for _, n := range mn.notifiers {
		n.NotifyStatus(status, message)
	}
}

// NotifyProgress forwards the progress to every sink
func (mn *MultiNotifier) NotifyProgress(status SyncStatus, percent float64) {
	for _, n := range mn.notifiers {
		n.NotifyProgress(status, percent)
	}
}

// NewNotifier builds the notifier stack for a configuration
func NewNotifier(logger *logging.Logger, config NotificationConfig) Notifier {
	if !config.Enabled {
		return NewLogNotifier(logger)
	}

	notifiers := []Notifier{NewLogNotifier(logger)}
	if config.Webhook != nil && config.Webhook.URL != "" {
		notifiers = append(notifiers, NewWebhookNotifier(logger, *config.Webhook))
	}
	if len(notifiers) == 1 {
		return notifiers[0]
	}
	return NewMultiNotifier(notifiers...)
}
