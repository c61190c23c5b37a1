package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"sweetexp/internal/config"
	"sweetexp/internal/daemonctl"
	"sweetexp/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var resp *ipc.StatusResponse
			err = ctx.withClient(func(client *ipc.ControlClient) error {
				var callErr error
				resp, callErr = client.Status()
				return callErr
			})
			if err != nil && !errors.Is(err, errEngineUnreachable) {
				return err
			}
			if resp == nil {
				resp = offlineStatus(cfg)
			}

			if jsonOutput {
				return writeJSON(cmd, resp)
			}
			printStatus(cmd, resp)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// offlineStatus reports what can be learned without the control socket: a
// live pid from the pid file means an engine is up but not answering.
func offlineStatus(cfg *config.Config) *ipc.StatusResponse {
	resp := &ipc.StatusResponse{
		Enabled:       cfg.Engine.Enabled,
		QueueCapacity: cfg.Engine.QueueCapacity,
		StorePath:     cfg.StorePath(),
		LockPath:      cfg.LockPath(),
	}
	if pid, err := daemonctl.ReadPIDFile(cfg.PIDPath()); err == nil && daemonctl.Alive(pid) {
		resp.PID = pid
		resp.Running = true
	}
	return resp
}

func printStatus(cmd *cobra.Command, resp *ipc.StatusResponse) {
	unlocked := 0
	for _, a := range resp.Achievements {
		if a.Unlocked {
			unlocked++
		}
	}

	rows := [][]string{
		{"Running", yesNo(resp.Running)},
		{"Enabled", yesNo(resp.Enabled)},
	}
	if resp.PID > 0 {
		rows = append(rows, []string{"PID", strconv.Itoa(resp.PID)})
	}
	if resp.SessionID != "" {
		rows = append(rows, []string{"Session", resp.SessionID})
	}
	rows = append(rows,
		[]string{"Queue", fmt.Sprintf("%d/%d", resp.QueueLength, resp.QueueCapacity)},
		[]string{"Store", resp.StorePath},
		[]string{"Lock", resp.LockPath},
	)
	if len(resp.Achievements) > 0 {
		rows = append(rows, []string{"Achievements", fmt.Sprintf("%d/%d unlocked", unlocked, len(resp.Achievements))})
	}
	if resp.Running && len(resp.Achievements) == 0 && resp.SessionID == "" {
		rows = append(rows, []string{"Note", "engine process found but control socket unavailable"})
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTable("sweetexp", []string{"Field", "Value"}, rows))
}
