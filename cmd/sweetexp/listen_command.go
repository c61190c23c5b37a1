package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sweetexp/internal/ipc"
	"sweetexp/internal/logging"
)

func newListenCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var socketPath string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print notifications delivered to the notification socket",
		Long: "Bind the notification socket and print each delivered notification until " +
			"interrupted. Useful when no desktop consumer is running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := strings.TrimSpace(socketPath)
			if path == "" {
				path = cfg.Paths.SocketPath
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			handler := func(msg ipc.Message) {
				mu.Lock()
				defer mu.Unlock()
				if jsonOutput {
					data, err := json.Marshal(msg)
					if err == nil {
						fmt.Fprintln(out, string(data))
					}
					return
				}
				fmt.Fprintln(out, formatMessage(msg))
			}

			listener, err := ipc.NewListener(path, handler, logging.NewNop())
			if err != nil {
				return fmt.Errorf("listen on %s: %w", path, err)
			}
			defer listener.Close()
			listener.Serve(runCtx)

			fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s\n", path)
			<-runCtx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print raw JSON lines")
	cmd.Flags().StringVar(&socketPath, "path", "", "Notification socket to bind (defaults to paths.socket_path)")
	return cmd
}

func formatMessage(msg ipc.Message) string {
	ts := time.Unix(msg.Timestamp, 0).Local().Format(time.TimeOnly)
	body := strings.ReplaceAll(msg.Message, "\n", " | ")
	return fmt.Sprintf("%s [%s p%d] %s", ts, msg.Category, msg.Priority, body)
}
