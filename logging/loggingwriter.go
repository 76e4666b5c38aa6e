package logging

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// LoggingWriter wraps the response writer of a request and records the
// status code, the size of the response and whether the response headers
// were sent.
type LoggingWriter struct {
	writer        http.ResponseWriter
	code          int
	bytes         int64
	headerWritten bool
}

func NewLoggingWriter(writer http.ResponseWriter) *LoggingWriter {
	return &LoggingWriter{writer: writer}
}

func (lw *LoggingWriter) Write(data []byte) (count int, err error) {
	if !lw.headerWritten {
		lw.WriteHeader(http.StatusOK)
	}

	count, err = lw.writer.Write(data)
	lw.bytes += int64(count)
	return
}

// WriteHeader sends the response headers once, the calls after the first
// one are ignored.
func (lw *LoggingWriter) WriteHeader(code int) {
	if lw.headerWritten {
		return
	}

	if code == 0 {
		code = http.StatusOK
	}

	lw.writer.WriteHeader(code)
	lw.code = code
	lw.headerWritten = true
}

func (lw *LoggingWriter) Header() http.Header {
	return lw.writer.Header()
}

func (lw *LoggingWriter) Flush() {
	if !lw.headerWritten {
		lw.WriteHeader(http.StatusOK)
	}

	if f, ok := lw.writer.(http.Flusher); ok {
		f.Flush()
	}
}

func (lw *LoggingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hij, ok := lw.writer.(http.Hijacker)
	if ok {
		return hij.Hijack()
	}
	return nil, nil, fmt.Errorf("could not hijack connection")
}

// Unwrap is used by http.ResponseController.
func (lw *LoggingWriter) Unwrap() http.ResponseWriter {
	return lw.writer
}

// HeaderWritten reports whether the response headers were already sent.
func (lw *LoggingWriter) HeaderWritten() bool {
	return lw.headerWritten
}

// GetCode returns the status code sent, or zero.
func (lw *LoggingWriter) GetCode() int {
	return lw.code
}

// GetBytes returns the number of body bytes written.
func (lw *LoggingWriter) GetBytes() int64 {
	return lw.bytes
}
