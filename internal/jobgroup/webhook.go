package jobgroup

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// webhookNotifier posts jobgroup lifecycle events to a configured URL,
// grounded on resilience.Envelope.notifyWebhook's recover-guarded,
// never-fails posture.
type webhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func newWebhookNotifier(url string, logger *zap.Logger) *webhookNotifier {
	return &webhookNotifier{url: url, client: &http.Client{Timeout: 10 * time.Second}, logger: logger}
}

func (w *webhookNotifier) notify(ctx context.Context, event string, payload any) {
	if w.url == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Warn("jobgroup webhook notification panicked", zap.Any("recover", r))
		}
	}()

	body, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	if err != nil {
		w.logger.Warn("failed to marshal jobgroup webhook payload", zap.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Warn("failed to build jobgroup webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("jobgroup webhook notification failed", zap.Error(err), zap.String("event", event))
		return
	}
	resp.Body.Close()
}
