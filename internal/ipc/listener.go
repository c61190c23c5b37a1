package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"sweetexp/internal/logging"
)

// Handler receives each decoded message.
type Handler func(Message)

// Listener accepts delivery connections and decodes their JSON lines.
type Listener struct {
	path     string
	listener net.Listener
	handler  Handler
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewListener binds the socket at path, replacing any stale socket file.
func NewListener(path string, handler Handler, logger *slog.Logger) (*Listener, error) {
	if handler == nil {
		return nil, errors.New("listener requires a handler")
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	return &Listener{
		path:     path,
		listener: ln,
		handler:  handler,
		logger:   logging.NewComponentLogger(logger, "listener"),
		done:     make(chan struct{}),
	}, nil
}

// Serve accepts connections until ctx is canceled or Close is called.
func (l *Listener) Serve(ctx context.Context) {
	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		select {
		case <-ctx.Done():
			_ = l.listener.Close()
		case <-l.done:
		}
	}()
	go func() {
		defer l.wg.Done()
		for {
			conn, err := l.listener.Accept()
			if err != nil {
				if ctx.Err() != nil || l.isClosed() || errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(l.logger, "accept failed", "listener_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "notifications may be missed"),
					logging.String(logging.FieldErrorHint, "check socket permissions"))
				continue
			}
			l.wg.Add(1)
			go func(c net.Conn) {
				defer l.wg.Done()
				l.read(c)
			}(conn)
		}
	}()
}

func (l *Listener) read(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			l.logger.Debug("discarding undecodable message", logging.Error(err))
			continue
		}
		l.handler(msg)
	}
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close stops accepting, waits for readers, and removes the socket file.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()

	_ = l.listener.Close()
	l.wg.Wait()
	if err := os.RemoveAll(l.path); err != nil {
		logging.WarnWithContext(l.logger, "failed to remove socket", "listener_socket_cleanup_failed",
			logging.String("socket", l.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "a stale socket file is left behind"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}
