package proxy

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// ResponseWrapper wraps http.ResponseWriter to capture the status sent to the client
type ResponseWrapper struct {
	http.ResponseWriter
	statusCode    int
	bytesWritten  int64
	headerWritten bool
}

// NewResponseWrapper creates a new response wrapper
func NewResponseWrapper(w http.ResponseWriter) *ResponseWrapper {
	return &ResponseWrapper{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code
func (rw *ResponseWrapper) WriteHeader(code int) {
	if !rw.headerWritten {
		rw.statusCode = code
		rw.headerWritten = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write captures the number of bytes written
func (rw *ResponseWrapper) Write(data []byte) (int, error) {
	if !rw.headerWritten {
		rw.WriteHeader(http.StatusOK)
	}

	n, err := rw.ResponseWriter.Write(data)
	rw.bytesWritten += int64(n)
	return n, err
}

// StatusCode returns the captured status code
func (rw *ResponseWrapper) StatusCode() int {
	return rw.statusCode
}

// BytesWritten returns the number of body bytes written
func (rw *ResponseWrapper) BytesWritten() int64 {
	return rw.bytesWritten
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *ResponseWrapper) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack implements http.Hijacker if the underlying ResponseWriter supports it
func (rw *ResponseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("hijacking not supported")
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (rw *ResponseWrapper) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
