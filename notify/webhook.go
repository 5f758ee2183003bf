package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/internal/httpclient"
)

// WebhookNotifier POSTs each message as JSON to a fixed URL.
type WebhookNotifier struct {
	url    string
	client httpclient.Doer
}

// NewWebhookNotifier posts to url with client. A nil client selects the
// SSRF-safe default client.
func NewWebhookNotifier(url string, client httpclient.Doer) *WebhookNotifier {
	if client == nil {
		client = httpclient.New(httpclient.Options{})
	}
	return &WebhookNotifier{url: url, client: client}
}

func (n *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapNotify(err, "marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return errors.WrapNotify(err, "create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.WrapNotify(err, "post webhook")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.WithDetailf(
			errors.WrapNotify(errors.Newf("webhook returned status %d", resp.StatusCode), "post webhook"),
			"status: %d", resp.StatusCode)
	}
	return nil
}
