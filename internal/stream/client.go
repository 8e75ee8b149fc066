package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// writeTimeout bounds each write on a stream whose server-wide deadline
// has been cleared.
const writeTimeout = 30 * time.Second

// client manages a single SSE connection's write operations.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

func (c *client) extendDeadline() {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
}

// sendJSON marshals v and sends it as an SSE "data:" message.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.sendRaw(data)
}

// sendRaw sends pre-encoded JSON as "data: {json}\n\n".
func (c *client) sendRaw(data []byte) error {
	c.extendDeadline()

	n, err := fmt.Fprintf(c.w, "data: %s\n\n", data)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	c.flusher.Flush()
	c.messagesSent++
	c.bytesSent += int64(n)
	return nil
}

// sendRetry tells the browser how long to wait before reconnecting.
func (c *client) sendRetry(d time.Duration) error {
	c.extendDeadline()
	if _, err := fmt.Fprintf(c.w, "retry: %d\n\n", d.Milliseconds()); err != nil {
		return fmt.Errorf("retry write: %w", err)
	}
	c.flusher.Flush()
	return nil
}

// sendKeepalive sends an SSE comment line to keep the connection alive.
func (c *client) sendKeepalive() error {
	c.extendDeadline()

	n, err := fmt.Fprint(c.w, ":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}

	c.flusher.Flush()
	c.bytesSent += int64(n)
	return nil
}
