// Package testutils provides shared test infrastructure.
package testutils

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// GenerateTestData returns size bytes of a deterministic pattern.
func GenerateTestData(size int64) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

type gatewayFile struct {
	size      int64
	nonce     string
	parts     map[int64][]byte
	committed bool
}

// Gateway is an in-memory object gateway speaking the httpstore protocol.
// Failures can be injected per request to exercise retry paths.
type Gateway struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string]*gatewayFile
	failures []int
	requests int
	user     string
	token    string
}

// NewGateway starts a gateway. When user is non-empty, requests must carry
// matching basic auth.
func NewGateway(t *testing.T, user, token string) *Gateway {
	t.Helper()
	g := &Gateway{
		files: make(map[string]*gatewayFile),
		user:  user,
		token: token,
	}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.Close)
	return g
}

// FailNext makes the next len(codes) requests fail with the given statuses.
func (g *Gateway) FailNext(codes ...int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = append(g.failures, codes...)
}

// Requests returns the number of requests served so far.
func (g *Gateway) Requests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests
}

// Put stores a committed file directly.
func (g *Gateway) Put(bucketID, fileID string, data []byte, nonce []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.files[bucketID+"/"+fileID] = &gatewayFile{
		size:      int64(len(data)),
		nonce:     base64.StdEncoding.EncodeToString(nonce),
		parts:     map[int64][]byte{0: append([]byte(nil), data...)},
		committed: true,
	}
}

// Contents assembles a file from its written parts.
func (g *Gateway) Contents(bucketID, fileID string) ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.files[bucketID+"/"+fileID]
	if !ok {
		return nil, false
	}
	return f.assemble(), f.committed
}

func (f *gatewayFile) assemble() []byte {
	out := make([]byte, f.size)
	offsets := make([]int64, 0, len(f.parts))
	for off := range f.parts {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	for _, off := range offsets {
		copy(out[off:], f.parts[off])
	}
	return out
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests++

	if len(g.failures) > 0 {
		code := g.failures[0]
		g.failures = g.failures[1:]
		w.WriteHeader(code)
		return
	}

	if g.user != "" {
		user, token, ok := r.BasicAuth()
		if !ok || user != g.user || token != g.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	// /buckets/{bucket}/files[/{file}[/commit]]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "buckets" || parts[2] != "files" {
		http.NotFound(w, r)
		return
	}
	bucketID := parts[1]

	if len(parts) == 3 && r.Method == http.MethodPost {
		size, err := strconv.ParseInt(r.URL.Query().Get("size"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id := uuid.NewString()
		g.files[bucketID+"/"+id] = &gatewayFile{size: size, parts: make(map[int64][]byte)}
		json.NewEncoder(w).Encode(map[string]string{"fileId": id})
		return
	}
	if len(parts) < 4 {
		http.NotFound(w, r)
		return
	}

	f, ok := g.files[bucketID+"/"+parts[3]]
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 5 && parts[4] == "commit" && r.Method == http.MethodPost:
		f.nonce = r.Header.Get("X-Ferry-Nonce")
		f.committed = true
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodHead:
		if !f.committed {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.FormatInt(f.size, 10))
		w.Header().Set("Accept-Ranges", "bytes")
		if f.nonce != "" {
			w.Header().Set("X-Ferry-Nonce", f.nonce)
		}

	case r.Method == http.MethodGet:
		if !f.committed {
			http.NotFound(w, r)
			return
		}
		var start, end int64
		if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end); err != nil || end >= f.size || start > end {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		data := f.assemble()
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, f.size))
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start : end+1])

	case r.Method == http.MethodPut:
		var start, end int64
		if _, err := fmt.Sscanf(r.Header.Get("Content-Range"), "bytes %d-%d/*", &start, &end); err != nil || end >= f.size {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil || int64(len(body)) != end-start+1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.parts[start] = body
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
