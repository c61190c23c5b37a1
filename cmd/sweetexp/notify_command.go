package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sweetexp/internal/ipc"
	"sweetexp/internal/notification"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	var category string
	var direct bool

	cmd := &cobra.Command{
		Use:   "notify MESSAGE...",
		Short: "Send a notification",
		Long: "Queue a notification on the running engine. Without an engine, or with " +
			"--direct, the notification is written straight to the notification socket.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			message := strings.TrimSpace(strings.Join(args, " "))
			if message == "" {
				return errors.New("notification message is required")
			}
			cat := notification.Category(strings.ToLower(strings.TrimSpace(category)))
			if !cat.Valid() {
				return fmt.Errorf("unknown category %q (use achievement, ambient, or system)", category)
			}
			out := cmd.OutOrStdout()

			if !direct {
				var resp *ipc.NotifyResponse
				err := ctx.withClient(func(client *ipc.ControlClient) error {
					var callErr error
					resp, callErr = client.Notify(ipc.NotifyRequest{Category: string(cat), Message: message})
					return callErr
				})
				switch {
				case err == nil && resp.Queued:
					fmt.Fprintf(out, "Queued notification %s\n", resp.ID)
					return nil
				case err == nil:
					return errors.New("engine queue is full; notification dropped")
				case !errors.Is(err, errEngineUnreachable):
					return err
				}
			}

			client := ipc.NewClient(cfg.Paths.SocketPath, cfg.DeliveryTimeout())
			n := notification.New(cat, message, time.Now())
			if err := client.Deliver(cmd.Context(), n); err != nil {
				if errors.Is(err, ipc.ErrNoConsumer) {
					return fmt.Errorf("no consumer listening on %s", client.Path())
				}
				return err
			}
			fmt.Fprintf(out, "Delivered notification %s\n", n.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", string(notification.CategorySystem), "Notification category")
	cmd.Flags().BoolVar(&direct, "direct", false, "Bypass the engine queue")
	return cmd
}
