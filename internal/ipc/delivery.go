package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"sweetexp/internal/notification"
)

// ErrNoConsumer reports that nothing is listening on the notification socket.
var ErrNoConsumer = errors.New("no notification consumer listening")

const defaultDeliveryTimeout = 2 * time.Second

// Message is the wire form of a notification. Timestamp is Unix seconds.
type Message struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	Priority  int    `json:"priority"`
	Timestamp int64  `json:"timestamp"`
}

// NewMessage converts a notification to its wire form.
func NewMessage(n notification.Notification) Message {
	return Message{
		ID:        n.ID,
		Category:  string(n.Category),
		Message:   n.Message,
		Priority:  n.Priority,
		Timestamp: n.Timestamp.Unix(),
	}
}

// Notification converts a received message back into a notification.
func (m Message) Notification() notification.Notification {
	return notification.Notification{
		ID:        m.ID,
		Message:   m.Message,
		Category:  notification.Category(m.Category),
		Timestamp: time.Unix(m.Timestamp, 0),
		Priority:  m.Priority,
	}
}

// Deliverer ships one notification to the consumer.
type Deliverer interface {
	Deliver(ctx context.Context, n notification.Notification) error
}

var _ Deliverer = (*Client)(nil)

// Client delivers notifications over a Unix socket, one connection each.
type Client struct {
	path    string
	timeout time.Duration
}

// NewClient returns a client for the socket at path. A non-positive timeout
// uses two seconds.
func NewClient(path string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &Client{path: path, timeout: timeout}
}

// Path returns the socket the client dials.
func (c *Client) Path() string { return c.path }

// Deliver dials, writes one JSON line, and closes. Failures are returned to
// the caller; nothing is retried.
func (c *Client) Deliver(ctx context.Context, n notification.Notification) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "unix", c.path)
	if err != nil {
		if isNoConsumer(err) {
			return fmt.Errorf("deliver to %s: %w", c.path, ErrNoConsumer)
		}
		return fmt.Errorf("deliver to %s: %w", c.path, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := json.NewEncoder(conn).Encode(NewMessage(n)); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

func isNoConsumer(err error) bool {
	return errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ECONNREFUSED)
}
