package apierr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Call describes one JSON round trip to a provider.
type Call struct {
	Provider string
	Method   string
	URL      string
	Header   http.Header

	// Body is encoded as JSON when non-nil.
	Body any
}

// Do sends c and decodes a 2xx response into out, which may be nil.
// Failures to reach the provider come back as TransportError and
// non-2xx statuses as APIError.
func Do(ctx context.Context, client *http.Client, c Call, out any) error {
	var body io.Reader = http.NoBody
	if c.Body != nil {
		payload, err := json.Marshal(c.Body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", c.Provider, err)
		}
		body = bytes.NewReader(payload)
	}

	method := c.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.Provider, err)
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return Transport(c.Provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transport(c.Provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return FromResponse(c.Provider, resp, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.Provider, err)
	}
	return nil
}

// Bearer returns an Authorization header carrying token.
func Bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}
