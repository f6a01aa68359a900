// Package http provides an HTTP client for ranged object transfers.
//
// This package handles:
//   - Connection pooling for high parallelism
//   - HEAD requests to get object metadata
//   - Range requests for chunked downloads
//   - Content-Range PUT requests for chunked uploads
//   - Typed status errors for retry classification
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    MaxIdleConnsPerHost: 100,
//	    Timeout:             30 * time.Second,
//	})
//
//	resp, err := client.GetRange(ctx, url, header, startByte, endByte)
//	defer resp.Body.Close()
//
//	var se *http.StatusError
//	if errors.As(err, &se) && se.Code >= 500 {
//	    // retryable
//	}
package http
