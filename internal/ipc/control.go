package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"sweetexp/internal/logging"
)

const serviceName = "Sweetexp"

// StatusRequest fetches engine status.
type StatusRequest struct{}

// AchievementStatus is one catalog entry as reported over RPC.
type AchievementStatus struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Progress    int       `json:"progress"`
	Target      int       `json:"target"`
	Unlocked    bool      `json:"unlocked"`
	UnlockTime  time.Time `json:"unlock_time"`
}

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Running       bool                `json:"running"`
	Enabled       bool                `json:"enabled"`
	PID           int                 `json:"pid"`
	SessionID     string              `json:"session_id"`
	QueueLength   int                 `json:"queue_length"`
	QueueCapacity int                 `json:"queue_capacity"`
	StorePath     string              `json:"store_path"`
	LockPath      string              `json:"lock_path"`
	Achievements  []AchievementStatus `json:"achievements"`
}

// NotifyRequest asks the daemon to queue a notification.
type NotifyRequest struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// NotifyResponse reports whether the notification was queued.
type NotifyResponse struct {
	Queued bool   `json:"queued"`
	ID     string `json:"id"`
}

// Controller is the daemon surface the control server exposes.
type Controller interface {
	Status(ctx context.Context) StatusResponse
	Notify(ctx context.Context, req NotifyRequest) (NotifyResponse, error)
}

// Server exposes a Controller via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer binds the control socket at path.
func NewServer(ctx context.Context, path string, ctrl Controller, logger *slog.Logger) (*Server, error) {
	if ctrl == nil {
		return nil, errors.New("control server requires a controller")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	serverCtx, cancel := context.WithCancel(ctx)
	if err := rpcServer.RegisterName(serviceName, &service{ctrl: ctrl, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve accepts RPC connections until the context is canceled or Close is called.
func (s *Server) Serve() {
	s.logger.Debug("control server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "CLI commands may fail to reach the daemon"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale control socket may confuse status checks"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	ctrl   Controller
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.ctrl.Status(s.ctx)
	return nil
}

func (s *service) Notify(req NotifyRequest, resp *NotifyResponse) error {
	out, err := s.ctrl.Notify(s.ctx, req)
	if err != nil {
		return err
	}
	*resp = out
	s.logger.Debug("notification queued via control socket",
		logging.Bool("queued", out.Queued),
		logging.String(logging.FieldNotificationID, out.ID))
	return nil
}

// ControlClient provides RPC access to the daemon.
type ControlClient struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the control server at path.
func Dial(path string) (*ControlClient, error) {
	conn, err := net.DialTimeout("unix", path, defaultDeliveryTimeout)
	if err != nil {
		return nil, err
	}
	return &ControlClient{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *ControlClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *ControlClient) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call(serviceName+".Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Notify queues a notification in the running daemon.
func (c *ControlClient) Notify(req NotifyRequest) (*NotifyResponse, error) {
	var resp NotifyResponse
	if err := c.client.Call(serviceName+".Notify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
