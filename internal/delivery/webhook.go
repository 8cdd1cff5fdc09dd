package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// WebhookClient posts reply segments to a messaging channel's reply URL.
type WebhookClient struct {
	token      string
	httpClient *http.Client
}

func NewWebhookClient(token string, timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookClient{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ReplyRequest is the body posted to the reply URL.
type ReplyRequest struct {
	To       string   `json:"to"`
	Messages []string `json:"messages"`
}

// Send posts all segments to replyURL in one request.
func (c *WebhookClient) Send(ctx context.Context, replyURL, to string, segments []string) error {
	body, err := json.Marshal(ReplyRequest{To: to, Messages: segments})
	if err != nil {
		return errors.Wrap(err, "marshal reply")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, replyURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "send reply")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Newf("send reply: status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Close releases idle connections.
func (c *WebhookClient) Close() {
	c.httpClient.CloseIdleConnections()
}
