package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// Request describes an API call relative to the client's base URL.
// Requests are values; replays work on an incremented copy.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// CSRF attaches the current CSRF cookie as a header at send time.
	CSRF bool

	// NoRefresh makes a 401 final without entering the refresh protocol.
	NoRefresh bool

	// Attempt counts how many times the request has been replayed after a refresh.
	Attempt int
}

// NewJSONRequest builds a request whose body is v encoded as JSON.
// A json.RawMessage or []byte body is sent as is.
func NewJSONRequest(method, path string, v any) (Request, error) {
	req := Request{Method: method, Path: path}
	switch body := v.(type) {
	case nil:
	case json.RawMessage:
		req.Body = body
	case []byte:
		req.Body = body
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return Request{}, fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		req.Body = data
	}
	return req, nil
}

func (r Request) retry() Request {
	r.Attempt++
	return r
}

// Response is a fully read 2xx API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("decoding response: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// JSON returns the body as raw JSON, or nil for an empty body.
func (r *Response) JSON() json.RawMessage {
	if len(r.Body) == 0 {
		return nil
	}
	return json.RawMessage(r.Body)
}

// httpResponse rebuilds an *http.Response for req from buffered parts.
func httpResponse(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	header = header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
