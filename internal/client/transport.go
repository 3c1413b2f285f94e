package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Transport adapts a Client to http.RoundTripper so that plain *http.Request values,
// such as those forwarded by a reverse proxy, share the client's session and refresh
// coordination. The request URL path is taken relative to the client's base URL;
// scheme and host are ignored.
//
// API errors are returned as responses with the upstream status and body, not as errors.
type Transport struct {
	Client *Client
}

// Compile-time check that Transport implements http.RoundTripper.
var _ http.RoundTripper = (*Transport)(nil)

// headers that belong to the dispatcher, never to the forwarded request
var managedHeaders = []string{"Authorization", "Cookie", CSRFHeader, "X-Request-Id", "Host"}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		defer func() { _ = r.Body.Close() }()
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		if len(data) > 0 {
			body = data
		}
	}

	header := r.Header.Clone()
	for _, key := range managedHeaders {
		header.Del(key)
	}

	req := Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: header,
		Body:   body,
	}

	resp, err := t.Client.Do(r.Context(), req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return httpResponse(r, apiErr.StatusCode, apiErr.Header, apiErr.Body), nil
		}
		return nil, err
	}
	return httpResponse(r, resp.StatusCode, resp.Header, resp.Body), nil
}
