// Package httpd is the minimal HTTP layer riding on the TCP stack.
// It only consumes the application-facing surface: Listen, Accept and
// Write. Framing beyond one request per segment is not attempted.
package httpd

import (
	"fmt"
	"strings"

	"github.com/nissy-dev/tunstack/internal/core"
)

// Request is a parsed HTTP request.
type Request struct {
	Method  string
	URI     string
	Version string
	Headers map[string]string
	Body    []byte
}

// ParseRequest parses one request out of raw. Only the request line
// and headers are interpreted; whatever follows the blank line is the
// body as-is.
func ParseRequest(raw []byte) (*Request, error) {
	text := string(raw)
	head, body, _ := strings.Cut(text, "\r\n\r\n")
	lines := strings.Split(head, "\r\n")
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty request", core.ErrPacketTooShort)
	}

	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid request line: %q", lines[0])
	}

	req := &Request{
		Method:  parts[0],
		URI:     parts[1],
		Version: parts[2],
		Headers: make(map[string]string),
		Body:    []byte(body),
	}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		req.Headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	return req, nil
}

var statusText = map[int]string{
	200: "OK",
	400: "Bad Request",
	404: "Not Found",
}

// FormatResponse renders a minimal HTTP/1.1 response.
func FormatResponse(status int, body []byte) []byte {
	text, ok := statusText[status]
	if !ok {
		text = "Internal Server Error"
	}
	head := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Type: text/html\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		status, text, len(body))
	return append([]byte(head), body...)
}
