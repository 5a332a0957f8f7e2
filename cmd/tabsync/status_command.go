package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tabsync/internal/api"
	"tabsync/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var daemonStatus *api.StatusResponse
			var resp api.StatusResponse
			err := ctx.getJSON(cmd, "/api/status", &resp)
			switch {
			case err == nil:
				daemonStatus = &resp
			case errors.Is(err, errDaemonUnreachable):
			default:
				return err
			}

			cfg := ctx.configValue()
			checks := preflight.RunAll(cmd.Context(), cfg)

			if jsonOutput {
				payload := map[string]any{"daemon": daemonStatus}
				checkViews := make([]map[string]any, 0, len(checks))
				for _, check := range checks {
					checkViews = append(checkViews, map[string]any{
						"name":     check.Name,
						"passed":   check.Passed,
						"optional": check.Optional,
						"detail":   check.Detail,
					})
				}
				payload["checks"] = checkViews
				return writeJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			if daemonStatus == nil {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "not running; start with `tabsyncd`", colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", daemonStatus.PID), colorize))
				fmt.Fprintln(out, renderStatusLine("Realtime clients", statusInfo, fmt.Sprintf("%d", daemonStatus.RealtimeClients), colorize))
			}
			fmt.Fprintln(out)

			for _, line := range renderSectionHeader("System Checks", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, check := range checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
					if check.Optional {
						kind = statusWarn
					}
				}
				fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			fmt.Fprintln(out)

			for _, line := range renderSectionHeader("Queue", colorize) {
				fmt.Fprintln(out, line)
			}
			health, err := fetchQueueHealth(ctx, cmd)
			if err != nil {
				return err
			}
			headers := []string{"Status", "Count"}
			aligns := []columnAlignment{alignLeft, alignRight}
			fmt.Fprintln(out, renderTable(headers, buildQueueStatusRows(health), aligns))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
