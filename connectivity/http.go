package connectivity

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/hazyhaar/lplens/horosafe"
)

// maxHTTPResponseBody caps response reads from remote endpoints (10 MiB).
const maxHTTPResponseBody int64 = 10 << 20

// maxErrorBody caps how much of a failing response ends up in ErrHTTPStatus.
const maxErrorBody = 512

// HTTPOptions configures HTTPHandler.
type HTTPOptions struct {
	// Client defaults to a client without timeout; bound calls with Timeout.
	Client *http.Client
	// Headers are set on every request (Content-Type defaults to application/json).
	Headers map[string]string
}

// HTTPHandler returns a Handler that POSTs the payload to endpoint and
// returns the response body. Non-2xx responses yield *ErrHTTPStatus.
func HTTPHandler(endpoint string, opts HTTPOptions) Handler {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("connectivity/http: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("connectivity/http: do request: %w", err)
		}
		defer resp.Body.Close()

		body, err := horosafe.LimitedReadAll(resp.Body, maxHTTPResponseBody)
		if err != nil {
			return nil, fmt.Errorf("connectivity/http: read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if len(body) > maxErrorBody {
				body = body[:maxErrorBody]
			}
			return nil, &ErrHTTPStatus{Code: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	}
}
