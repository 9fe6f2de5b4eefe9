package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kacperjurak/goedxcore/pkg/models"
)

// Client posts refinement results to a webhook with pooled connections
type Client struct {
	url        string
	httpClient *http.Client
	log        *zap.Logger
	bufferPool sync.Pool
}

// NewClient creates a webhook client; timeout bounds each delivery
func NewClient(url string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		// payloads are small JSON documents
		DisableCompression: true,
	}

	return &Client{
		url: url,
		log: log,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 4096))
			},
		},
	}
}

// Payload builds the JSON body for a webhook item
func Payload(item models.WebhookItem, now time.Time) models.WebhookPayload {
	return models.WebhookPayload{
		ID:        item.RequestID,
		BatchID:   item.BatchID,
		Iteration: item.Iteration,
		Time:      now.Format(time.RFC3339Nano),
		Success:   item.Error == "",
		Error:     item.Error,
		Result:    item.Response,
	}
}

// Send posts one finished spectrum
func (c *Client) Send(item models.WebhookItem) error {
	return c.SendContext(context.Background(), item)
}

func (c *Client) SendContext(ctx context.Context, item models.WebhookItem) error {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(Payload(item, time.Now())); err != nil {
		return fmt.Errorf("failed to marshal webhook data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug("webhook sent",
		zap.String("request_id", item.RequestID),
		zap.String("batch_id", item.BatchID),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}
	return nil
}
