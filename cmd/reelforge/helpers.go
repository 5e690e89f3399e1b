package main

import (
	"time"

	"reelforge/internal/daemon"
)

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func truncate(value string, limit int) string {
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func jobRows(jobs []daemon.JobPayload) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		source := "-"
		if job.InputSpec != nil {
			source = truncate(job.InputSpec.SourceURL, 48)
		}
		rows = append(rows, []string{
			job.ID,
			job.Status,
			dash(job.CurrentStage),
			source,
			formatTimestamp(job.CreatedAt),
		})
	}
	return rows
}
