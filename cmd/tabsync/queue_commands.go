package main

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tabsync/internal/api"
	"tabsync/internal/outbox"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the offline order queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueuePendingCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := fetchQueueEntries(ctx, cmd, statusFilter)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, api.QueueListResponse{Entries: entries})
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}
			headers := []string{"ID", "Local ID", "Entity", "Op", "Status", "Retries", "Created", "Detail"}
			aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}
			fmt.Fprintln(out, renderTable(headers, buildQueueListRows(entries), aligns))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (pending, syncing, failed, conflict, synced)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue status breakdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := fetchQueueHealth(ctx, cmd)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, health)
			}
			headers := []string{"Status", "Count"}
			aligns := []columnAlignment{alignLeft, alignRight}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, buildQueueStatusRows(health), aligns))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newQueuePendingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show the count of entries awaiting sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.PendingResponse
			err := ctx.getJSON(cmd, "/api/queue/pending", &resp)
			if errors.Is(err, errDaemonUnreachable) {
				err = ctx.withOutbox(func(store *outbox.Store) error {
					count, countErr := store.CountPending(cmd.Context())
					resp.Pending = count
					return countErr
				})
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries pending sync\n", resp.Pending)
			return nil
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Reset failed entries to pending for another sync attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}

			var updated int64
			err = ctx.withOutbox(func(store *outbox.Store) error {
				count, retryErr := store.RetryFailed(cmd.Context(), ids...)
				updated = count
				return retryErr
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d entries reset for retry\n", updated)
			if updated > 0 {
				// Best effort; the ticker picks the entries up regardless.
				if kickErr := ctx.postJSON(cmd, "/api/sync", nil, nil); kickErr == nil {
					fmt.Fprintln(out, "Sync triggered")
				}
			}
			return nil
		},
	}
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-synced",
		Short: "Remove terminally synced entries from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			var removed int64
			err := ctx.withOutbox(func(store *outbox.Store) error {
				count, clearErr := store.ClearSynced(cmd.Context())
				removed = count
				return clearErr
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d synced entries removed\n", removed)
			return nil
		},
	}
}

func fetchQueueEntries(ctx *commandContext, cmd *cobra.Command, statusFilter string) ([]api.QueueEntry, error) {
	statusFilter = strings.TrimSpace(statusFilter)
	path := "/api/queue"
	if statusFilter != "" {
		path += "?status=" + url.QueryEscape(statusFilter)
	}

	var resp api.QueueListResponse
	err := ctx.getJSON(cmd, path, &resp)
	if err == nil {
		return resp.Entries, nil
	}
	if !errors.Is(err, errDaemonUnreachable) {
		return nil, err
	}

	var statuses []outbox.Status
	if statusFilter != "" {
		status, ok := outbox.ParseStatus(statusFilter)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", statusFilter)
		}
		statuses = append(statuses, status)
	}

	var entries []api.QueueEntry
	err = ctx.withOutbox(func(store *outbox.Store) error {
		list, listErr := store.List(cmd.Context(), statuses...)
		if listErr != nil {
			return listErr
		}
		entries = api.QueueEntriesFromStore(list)
		return nil
	})
	return entries, err
}

func fetchQueueHealth(ctx *commandContext, cmd *cobra.Command) (api.QueueHealth, error) {
	var status api.StatusResponse
	err := ctx.getJSON(cmd, "/api/status", &status)
	if err == nil {
		return status.Queue, nil
	}
	if !errors.Is(err, errDaemonUnreachable) {
		return api.QueueHealth{}, err
	}

	var health api.QueueHealth
	err = ctx.withOutbox(func(store *outbox.Store) error {
		summary, healthErr := store.Health(cmd.Context())
		if healthErr != nil {
			return healthErr
		}
		health = api.QueueHealthFromSummary(summary)
		return nil
	})
	return health, err
}

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid entry id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
