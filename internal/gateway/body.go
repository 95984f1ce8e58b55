package gateway

import (
	"bytes"
	"io"
	"net/http"
)

// maxBufferedBody bounds how much of a request body the gateway buffers in
// memory to support a retry on a second endpoint.
const maxBufferedBody = 4 << 20 // 4 MiB

func readAllLimited(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(io.LimitReader(r.Body, maxBufferedBody))
}

func readCloserOf(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}
