package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport delivers one event batch.
type Transport interface {
	Send(ctx context.Context, events []Event) error
}

// HTTPTransport posts JSON event batches to an ingestion endpoint.
type HTTPTransport struct {
	client   *http.Client
	endpoint string
}

// NewHTTPTransport creates a transport posting to the given URL.
func NewHTTPTransport(endpoint string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPTransport{
		client:   &http.Client{Timeout: timeout},
		endpoint: endpoint,
	}
}

// Send posts the batch and checks for a 2xx status.
func (t *HTTPTransport) Send(ctx context.Context, events []Event) error {
	payload, err := json.Marshal(map[string][]Event{"events": events})
	if err != nil {
		return fmt.Errorf("telemetry: marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telemetry: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telemetry: send batch: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("telemetry: ingestion returned %s", resp.Status)
	}
	return nil
}

// FallbackTransport tries a primary fire-and-forget transport first and
// falls back to a secondary one when the primary cannot accept the batch.
type FallbackTransport struct {
	Primary  Transport
	Fallback Transport
}

// Send attempts the primary transport, then the fallback.
func (t *FallbackTransport) Send(ctx context.Context, events []Event) error {
	if t.Primary != nil {
		if err := t.Primary.Send(ctx, events); err == nil {
			return nil
		}
	}
	if t.Fallback == nil {
		return fmt.Errorf("telemetry: no fallback transport")
	}
	return t.Fallback.Send(ctx, events)
}

// StoreTransport delivers batches straight into an EventStore. Used when the
// tracker runs in the same process as ingestion.
type StoreTransport struct {
	Store EventStore
}

// Send appends the batch to the store.
func (t *StoreTransport) Send(ctx context.Context, events []Event) error {
	return t.Store.Append(ctx, events)
}
