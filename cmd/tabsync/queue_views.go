package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tabsync/internal/api"
)

var titleCaser = cases.Title(language.English)

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

func formatDisplayTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format("2006-01-02 15:04")
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func formatLocalID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	if len(value) > 8 {
		return value[:8]
	}
	return value
}

func buildQueueListRows(entries []api.QueueEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		detail := entrySummary(entry)
		rows = append(rows, []string{
			fmt.Sprintf("%d", entry.ID),
			formatLocalID(entry.LocalID),
			formatStatusLabel(entry.TargetEntity),
			entry.Operation,
			formatStatusLabel(entry.Status),
			fmt.Sprintf("%d", entry.RetryCount),
			formatDisplayTime(entry.CreatedAt),
			detail,
		})
	}
	return rows
}

func entrySummary(entry api.QueueEntry) string {
	if entry.ErrorMessage != "" {
		return entry.ErrorMessage
	}
	var payload struct {
		TableID    int64 `json:"table_id"`
		TotalCents int64 `json:"total_cents"`
	}
	if err := json.Unmarshal(entry.Payload, &payload); err != nil || payload.TableID == 0 {
		return "-"
	}
	return fmt.Sprintf("table %d, %s", payload.TableID, formatCents(payload.TotalCents))
}

func buildQueueStatusRows(health api.QueueHealth) [][]string {
	return [][]string{
		{"Pending", fmt.Sprintf("%d", health.Pending)},
		{"Syncing", fmt.Sprintf("%d", health.Syncing)},
		{"Failed", fmt.Sprintf("%d", health.Failed)},
		{"Conflict", fmt.Sprintf("%d", health.Conflict)},
		{"Synced", fmt.Sprintf("%d", health.Synced)},
		{"Total", fmt.Sprintf("%d", health.Total)},
	}
}

func buildConflictRows(conflicts []api.Conflict) [][]string {
	rows := make([][]string, 0, len(conflicts))
	for _, conflict := range conflicts {
		live := "none"
		if conflict.Live != nil {
			live = fmt.Sprintf("order %d (%s)", conflict.Live.ID, formatCents(conflict.Live.TotalCents))
		}
		flagged := ""
		if conflict.FlaggedAt != nil {
			flagged = formatDisplayTime(*conflict.FlaggedAt)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", conflict.EntryID),
			formatLocalID(conflict.LocalID),
			fmt.Sprintf("%d", conflict.TableID),
			formatCents(conflict.Queued.TotalCents),
			live,
			flagged,
		})
	}
	return rows
}
