package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Common errors.
var (
	ErrRangeNotSupported = errors.New("http: server does not support range requests")
	ErrRangeMismatch     = errors.New("http: server returned a different range")
	ErrNotFound          = errors.New("http: resource not found")
	ErrForbidden         = errors.New("http: access forbidden")
	ErrUnauthorized      = errors.New("http: unauthorized")
	ErrTooManyRequests   = errors.New("http: too many requests")
	ErrServerError       = errors.New("http: server error")
	ErrClientError       = errors.New("http: client error")
)

// StatusError is returned for non-success responses. It unwraps to one of
// the sentinel errors above so callers can use errors.Is.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http: unexpected status %s", e.Status)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	case e.Code == http.StatusForbidden:
		return ErrForbidden
	case e.Code == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Code == http.StatusTooManyRequests:
		return ErrTooManyRequests
	case e.Code == http.StatusRequestedRangeNotSatisfiable:
		return ErrRangeNotSupported
	case e.Code >= 500:
		return ErrServerError
	default:
		return ErrClientError
	}
}

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 100
	MaxIdleConnsPerHost int

	// Timeout for individual requests. A timed out request is a transient
	// failure for the chunk that issued it.
	// Default: 30s
	Timeout time.Duration
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 100,
		Timeout:             30 * time.Second,
	}
}

// FileInfo contains metadata about a remote file.
type FileInfo struct {
	Size          int64
	ETag          string
	AcceptsRanges bool
	ContentType   string
	LastModified  time.Time
	Header        http.Header
}

// RangeResponse represents a response from a range request.
type RangeResponse struct {
	Body          io.ReadCloser
	ContentLength int64
	ETag          string
}

// Client is an HTTP client for ranged object transfers.
// Every call issues exactly one request; retrying is left to the caller,
// which knows the retry budget of the chunk being transferred.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = DefaultOptions().MaxIdleConnsPerHost
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // We want raw bytes for range requests
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

func (c *Client) do(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.ContentLength = int64(len(body))
	}
	return c.client.Do(req)
}

// Head performs a HEAD request to get file metadata.
func (c *Client) Head(ctx context.Context, url string, header http.Header) (*FileInfo, error) {
	resp, err := c.do(ctx, http.MethodHead, url, header, nil)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	if err := checkStatusCode(resp); err != nil {
		return nil, err
	}

	info := &FileInfo{
		Size:          resp.ContentLength,
		ETag:          cleanETag(resp.Header.Get("ETag")),
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
		ContentType:   resp.Header.Get("Content-Type"),
		Header:        resp.Header,
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			info.LastModified = t
		}
	}
	return info, nil
}

// GetRange performs a range request to download a portion of the file.
// startByte and endByte are inclusive (like HTTP Range header).
func (c *Client) GetRange(ctx context.Context, url string, header http.Header, startByte, endByte int64) (*RangeResponse, error) {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Range", fmt.Sprintf("bytes=%d-%d", startByte, endByte))

	resp, err := c.do(ctx, http.MethodGet, url, h, nil)
	if err != nil {
		return nil, err
	}

	if err := checkStatusCode(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	// A 200 without Content-Range means the whole body was sent.
	cr := resp.Header.Get("Content-Range")
	if cr == "" {
		resp.Body.Close()
		return nil, ErrRangeNotSupported
	}
	start, end, _, err := ParseContentRange(cr)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	if start != startByte || end != endByte {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: asked %d-%d, got %d-%d", ErrRangeMismatch, startByte, endByte, start, end)
	}

	return &RangeResponse{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		ETag:          cleanETag(resp.Header.Get("ETag")),
	}, nil
}

// PutRange uploads body as bytes [startByte, endByte] of the object at url.
func (c *Client) PutRange(ctx context.Context, url string, header http.Header, startByte, endByte int64, body []byte) error {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/*", startByte, endByte))
	h.Set("Content-Type", "application/octet-stream")

	resp, err := c.do(ctx, http.MethodPut, url, h, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return checkStatusCode(resp)
}

// Post sends an empty POST and returns the response body.
func (c *Client) Post(ctx context.Context, url string, header http.Header) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodPost, url, header, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatusCode(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// checkStatusCode returns a *StatusError for non-success responses.
func checkStatusCode(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode, Status: resp.Status}
}

// cleanETag removes quotes from an ETag value.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	return etag
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total may be -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimPrefix(header, "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if parts[1] == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}

	return start, end, total, nil
}
