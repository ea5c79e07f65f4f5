package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lslunis/ergometer/internal/config"
	"github.com/lslunis/ergometer/internal/ergotime"
	"github.com/lslunis/ergometer/internal/metrics"
	"github.com/lslunis/ergometer/internal/store"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current activity, session, and rest readout",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data")
			jsonOut, _ := cmd.Flags().GetBool("json")
			hosts, _ := cmd.Flags().GetBool("hosts")

			dbPath := filepath.Join(dataDir, "ergometer.db")
			if cfg, err := config.LoadFromFile(filepath.Join(dataDir, "config.yaml")); err == nil {
				dbPath = cfg.Database.Path
			}

			ctx := cmd.Context()
			st, err := store.Open(ctx, dbPath, store.Defaults)
			if err != nil {
				return fmt.Errorf("opening %s: %w", dbPath, err)
			}
			defer st.Close()

			if hosts {
				return printHosts(ctx, st, jsonOut)
			}
			return printReadout(ctx, st, jsonOut)
		},
	}
	cmd.Flags().Bool("hosts", false, "list known hosts and their stored log offsets instead of the metric readout")
	return cmd
}

func printReadout(ctx context.Context, st *store.Store, jsonOut bool) error {
	now := time.Now().Unix()

	dailyTarget, _, err := st.GetSetting(ctx, store.DailyTarget)
	if err != nil {
		return err
	}
	sessionTarget, _, err := st.GetSetting(ctx, store.SessionTarget)
	if err != nil {
		return err
	}
	restTarget, _, err := st.GetSetting(ctx, store.RestTarget)
	if err != nil {
		return err
	}

	dayStart := ergotime.DayStartOf(time.Unix(now, 0))
	dailyTotal, err := metrics.ActivityTotal(ctx, st, dayStart, dayStart+86400)
	if err != nil {
		return err
	}
	sessionStart, err := metrics.SessionStart(ctx, st, restTarget)
	if err != nil {
		return err
	}
	restStart, err := metrics.RestStart(ctx, st)
	if err != nil {
		return err
	}

	restValue := now - restStart
	var sessionValue int64
	if restValue < restTarget {
		sessionValue = now - sessionStart
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]int64{
			"daily_value":    dailyTotal,
			"session_value":  sessionValue,
			"rest_value":     restValue,
			"daily_target":   dailyTarget,
			"session_target": sessionTarget,
			"rest_target":    restTarget,
		})
	}

	fmt.Printf("daily:   %s / %s\n", formatDuration(dailyTotal), formatDuration(dailyTarget))
	fmt.Printf("session: %s / %s\n", formatDuration(sessionValue), formatDuration(sessionTarget))
	fmt.Printf("rest:    %s / %s\n", formatDuration(restValue), formatDuration(restTarget))
	return nil
}

func printHosts(ctx context.Context, st *store.Store, jsonOut bool) error {
	entries, err := st.ListHostPositions(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		out := make(map[string]int64, len(entries))
		for _, e := range entries {
			out[e.Host] = e.Position
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	for _, e := range entries {
		fmt.Printf("%s\t%d\n", e.Host, e.Position)
	}
	return nil
}

func formatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return (time.Duration(seconds) * time.Second).String()
}
