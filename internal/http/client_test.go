package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestHead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		if r.Header.Get("X-Test") != "yes" {
			t.Errorf("expected forwarded header")
		}
		w.Header().Set("Content-Length", "1024")
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Last-Modified", "Sat, 01 Jan 2025 00:00:00 GMT")
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	info, err := client.Head(context.Background(), server.URL, http.Header{"X-Test": {"yes"}})
	if err != nil {
		t.Fatalf("Head: %v", err)
	}

	if info.Size != 1024 {
		t.Errorf("expected size 1024, got %d", info.Size)
	}
	if info.ETag != "abc123" {
		t.Errorf("expected ETag 'abc123', got %s", info.ETag)
	}
	if !info.AcceptsRanges {
		t.Error("expected AcceptsRanges to be true")
	}
	if info.LastModified.IsZero() {
		t.Error("expected LastModified to be parsed")
	}
}

func TestHeadNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	_, err := client.Head(context.Background(), server.URL, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("expected StatusError with 404, got %v", err)
	}
}

func rangeServer(data []byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Write(data)
			return
		}

		rangeHeader = strings.TrimPrefix(rangeHeader, "bytes=")
		parts := strings.Split(rangeHeader, "-")
		start, _ := strconv.ParseInt(parts[0], 10, 64)
		end, _ := strconv.ParseInt(parts[1], 10, 64)

		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}

		w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.Itoa(len(data)))
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start : end+1])
	}))
}

func TestGetRange(t *testing.T) {
	data := []byte("Hello, World! This is test data for range requests.")
	server := rangeServer(data)
	defer server.Close()

	client := NewClient(DefaultOptions())
	resp, err := client.GetRange(context.Background(), server.URL, nil, 7, 11)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != "World" {
		t.Errorf("expected 'World', got %q", body)
	}
}

func TestGetRangeShortRange(t *testing.T) {
	server := rangeServer([]byte("tiny"))
	defer server.Close()

	client := NewClient(DefaultOptions())
	_, err := client.GetRange(context.Background(), server.URL, nil, 0, 100)
	if !errors.Is(err, ErrRangeMismatch) {
		t.Errorf("expected ErrRangeMismatch, got %v", err)
	}
}

func TestGetRangeNotSupported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("full body"))
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	_, err := client.GetRange(context.Background(), server.URL, nil, 0, 3)
	if !errors.Is(err, ErrRangeNotSupported) {
		t.Errorf("expected ErrRangeNotSupported, got %v", err)
	}
}

func TestServerErrorIsNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	_, err := client.GetRange(context.Background(), server.URL, nil, 0, 10)
	if !errors.Is(err, ErrServerError) {
		t.Errorf("expected ErrServerError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single request, got %d", calls)
	}
}

func TestPutRange(t *testing.T) {
	var gotRange, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		gotRange = r.Header.Get("Content-Range")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	if err := client.PutRange(context.Background(), server.URL, nil, 10, 14, []byte("hello")); err != nil {
		t.Fatalf("PutRange: %v", err)
	}
	if gotRange != "bytes 10-14/*" {
		t.Errorf("unexpected Content-Range %q", gotRange)
	}
	if gotBody != "hello" {
		t.Errorf("unexpected body %q", gotBody)
	}
}

func TestPostTooManyRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	_, err := client.Post(context.Background(), server.URL, nil)
	if !errors.Is(err, ErrTooManyRequests) {
		t.Errorf("expected ErrTooManyRequests, got %v", err)
	}
}

func TestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(Options{Timeout: 20 * time.Millisecond})
	if _, err := client.Head(context.Background(), server.URL, nil); err == nil {
		t.Error("expected timeout error")
	}
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		header            string
		start, end, total int64
		wantErr           bool
	}{
		{"bytes 0-99/1000", 0, 99, 1000, false},
		{"bytes 100-199/*", 100, 199, -1, false},
		{"bytes 0-99", 0, 0, 0, true},
		{"bytes a-99/1000", 0, 0, 0, true},
	}

	for _, tt := range tests {
		start, end, total, err := ParseContentRange(tt.header)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseContentRange(%q): expected error", tt.header)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseContentRange(%q): %v", tt.header, err)
			continue
		}
		if start != tt.start || end != tt.end || total != tt.total {
			t.Errorf("ParseContentRange(%q) = %d, %d, %d", tt.header, start, end, total)
		}
	}
}
