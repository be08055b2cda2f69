package mediator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPDispatcher forwards authorized calls to an upstream tool server over
// HTTP. The client timeout bounds the provider call so a hung upstream
// surfaces as an error instead of blocking the caller indefinitely.
type HTTPDispatcher struct {
	upstream string
	client   *http.Client
}

func NewHTTPDispatcher(upstream string, timeout time.Duration) *HTTPDispatcher {
	return &HTTPDispatcher{
		upstream: upstream,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]any{
		"tool_name": tool,
		"args":      args,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.upstream, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return json.RawMessage(data), nil
}
