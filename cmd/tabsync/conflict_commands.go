package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tabsync/internal/api"
	"tabsync/internal/orders"
	"tabsync/internal/outbox"
	"tabsync/internal/resolver"
)

func newConflictsCommand(ctx *commandContext) *cobra.Command {
	conflictsCmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Review and resolve sync conflicts",
	}

	conflictsCmd.AddCommand(newConflictsListCommand(ctx))
	conflictsCmd.AddCommand(newConflictsResolveCommand(ctx))

	return conflictsCmd
}

func newConflictsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conflicts awaiting an operator decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			conflicts, err := fetchConflicts(ctx, cmd)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, api.ConflictListResponse{Conflicts: conflicts})
			}

			out := cmd.OutOrStdout()
			if len(conflicts) == 0 {
				fmt.Fprintln(out, "No conflicts")
				return nil
			}
			headers := []string{"Entry", "Local ID", "Table", "Queued Total", "Live Order", "Flagged"}
			aligns := []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft}
			fmt.Fprintln(out, renderTable(headers, buildConflictRows(conflicts), aligns))
			fmt.Fprintln(out, "Resolve with: tabsync conflicts resolve <entry> <merge|keep_local|keep_cloud|cancel_all>")
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConflictsResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <entry> <decision>",
		Short: "Apply a resolution decision to a conflict entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || entryID <= 0 {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			decision, err := resolver.ParseDecision(args[1])
			if err != nil {
				return err
			}

			resp, err := resolveConflict(ctx, cmd, entryID, decision)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Entry %d resolved (%s)\n", resp.EntryID, resp.Decision)
			if resp.Order != nil {
				fmt.Fprintf(out, "Queued order applied as order %d (%s)\n", resp.Order.ID, formatCents(resp.Order.TotalCents))
			}
			return nil
		},
	}
}

func fetchConflicts(ctx *commandContext, cmd *cobra.Command) ([]api.Conflict, error) {
	var resp api.ConflictListResponse
	err := ctx.getJSON(cmd, "/api/conflicts", &resp)
	if err == nil {
		return resp.Conflicts, nil
	}
	if !errors.Is(err, errDaemonUnreachable) {
		return nil, err
	}

	var conflicts []api.Conflict
	err = ctx.withStores(func(queue *outbox.Store, ordersStore *orders.Store) error {
		res := resolver.New(queue, ordersStore, nil, nil, nil)
		list, listErr := res.ListConflicts(cmd.Context())
		if listErr != nil {
			return listErr
		}
		conflicts = api.ConflictsFromResolver(list)
		return nil
	})
	return conflicts, err
}

func resolveConflict(ctx *commandContext, cmd *cobra.Command, entryID int64, decision resolver.Decision) (*api.ResolveResponse, error) {
	path := fmt.Sprintf("/api/conflicts/%d/resolve", entryID)
	var resp api.ResolveResponse
	err := ctx.postJSON(cmd, path, api.ResolveRequest{Decision: string(decision)}, &resp)
	if err == nil {
		return &resp, nil
	}
	if !errors.Is(err, errDaemonUnreachable) {
		return nil, err
	}

	err = ctx.withStores(func(queue *outbox.Store, ordersStore *orders.Store) error {
		res := resolver.New(queue, ordersStore, nil, nil, nil)
		resolution, resolveErr := res.Resolve(cmd.Context(), entryID, decision)
		if resolveErr != nil {
			return resolveErr
		}
		resp = api.ResolveResponseFromResolution(resolution)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
