package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"sweetexp/internal/achievement"
	"sweetexp/internal/config"
	"sweetexp/internal/ipc"
	"sweetexp/internal/logging"
	"sweetexp/internal/store"
)

func newAchievementsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var offline bool

	cmd := &cobra.Command{
		Use:     "achievements",
		Aliases: []string{"ach"},
		Short:   "List achievements and progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var list []ipc.AchievementStatus
			if !offline {
				err = ctx.withClient(func(client *ipc.ControlClient) error {
					resp, callErr := client.Status()
					if callErr != nil {
						return callErr
					}
					list = resp.Achievements
					return nil
				})
				if err != nil && !errors.Is(err, errEngineUnreachable) {
					return err
				}
			}
			if list == nil {
				list, err = readStoredAchievements(cmd, cfg)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				return writeJSON(cmd, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No achievements recorded yet")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAchievements(list))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Read the data file even when an engine is running")
	return cmd
}

func readStoredAchievements(cmd *cobra.Command, cfg *config.Config) ([]ipc.AchievementStatus, error) {
	st, err := store.Open(cfg, logging.NewNop())
	if err != nil {
		return nil, err
	}
	defer st.Close()

	list, err := st.Load(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", st.Path(), err)
	}
	out := make([]ipc.AchievementStatus, 0, len(list))
	for _, a := range list {
		out = append(out, ipc.AchievementStatus{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Progress:    a.Progress,
			Target:      a.Target,
			Unlocked:    a.Unlocked,
			UnlockTime:  a.UnlockTime,
		})
	}
	return out, nil
}

func renderAchievements(list []ipc.AchievementStatus) string {
	rows := make([][]string, 0, len(list))
	for _, a := range list {
		unlockedAt := ""
		if a.Unlocked && !a.UnlockTime.IsZero() {
			unlockedAt = a.UnlockTime.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			a.Name,
			a.Description,
			fmt.Sprintf("%d/%d", a.Progress, a.Target),
			strconv.Itoa(achievement.Achievement{Progress: a.Progress, Target: a.Target, Unlocked: a.Unlocked}.Percent()) + "%",
			yesNo(a.Unlocked),
			unlockedAt,
		})
	}
	return renderTable("", []string{"Name", "Description", "Progress", "%", "Unlocked", "Unlocked At"}, rows, 2, 3)
}
