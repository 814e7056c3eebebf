package engine

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/chatbatch/internal/export"
	"github.com/leapstack-labs/chatbatch/pkg/core"
)

// aggregator is the single owner of the run counters. It exports each
// result as it arrives and keeps only the counts, plus the rows of results
// workbooks not yet complete.
type aggregator struct {
	writer  *export.Writer
	report  *export.Report
	logger  *slog.Logger
	summary core.RunSummary
	done    int
}

// consume drains results until the channel is closed.
func (a *aggregator) consume(results <-chan core.JobResult) {
	for r := range results {
		a.record(r)
	}
}

func (a *aggregator) record(r core.JobResult) {
	if _, err := a.writer.WriteResult(r); err != nil {
		r.Status = core.JobStatusError
		if r.ErrorMessage != "" {
			r.ErrorMessage += "; "
		}
		r.ErrorMessage += err.Error()
	}

	if r.OK() {
		a.summary.JobsOK++
	} else {
		a.summary.JobsError++
	}
	a.done++

	level := slog.LevelInfo
	attrs := []any{
		"run_id", a.summary.RunID,
		"job_id", r.JobID(),
		"user", r.Job.User.Name,
		"status", r.Status,
		"duration_ms", r.Duration.Milliseconds(),
		"completed", a.done,
		"total", a.summary.JobsTotal,
	}
	if !r.OK() {
		level = slog.LevelWarn
		attrs = append(attrs, "error", r.ErrorMessage)
	}
	a.logger.Log(context.Background(), level, "job completed", attrs...)

	if a.report == nil {
		return
	}
	path, err := a.report.Add(r)
	switch {
	case err != nil:
		a.logger.Warn("results workbook failed", "run_id", a.summary.RunID, "user", r.Job.User.Name, "error", err)
	case path != "":
		a.logger.Debug("results workbook written", "run_id", a.summary.RunID, "path", path)
	}
}
