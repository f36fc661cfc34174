package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/MrEthical07/docportal"
)

const maxResponseBytes = 4 << 20

type request struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	// bearer defaults to the anon key.
	bearer string
	header http.Header
}

// do sends r and decodes a 2xx JSON body into out when out is non-nil.
// Transport failures wrap docportal.ErrBackendUnavailable; non-2xx responses
// return *APIError.
func (c *Client) do(ctx context.Context, r request, out interface{}) (*http.Response, error) {
	target := c.cfg.URL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("supabase: encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("supabase: build request: %w", err)
	}
	c.addHeaders(req, r.bearer)
	for k, vals := range r.header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", docportal.ErrBackendUnavailable, ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", docportal.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp, fmt.Errorf("%w: read response: %v", docportal.ErrBackendUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, parseAPIError(resp.StatusCode, data)
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp, fmt.Errorf("supabase: decode %s %s: %w", r.method, r.path, err)
		}
	}
	return resp, nil
}

func (c *Client) addHeaders(req *http.Request, bearer string) {
	if bearer == "" {
		bearer = c.cfg.AnonKey
	}
	req.Header.Set("apikey", c.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
