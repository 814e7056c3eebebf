package engine

// run.go - orchestration of one batch run

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/leapstack-labs/chatbatch/internal/chatapi"
	"github.com/leapstack-labs/chatbatch/internal/config"
	"github.com/leapstack-labs/chatbatch/internal/export"
	"github.com/leapstack-labs/chatbatch/internal/input"
	"github.com/leapstack-labs/chatbatch/pkg/core"
)

// Request holds the per-run inputs that may replace configured values.
// Empty fields fall back to the configuration.
type Request struct {
	UsersFile   string
	PromptsFile string
	// Override is a JSON object merged over every request body.
	Override string
}

// caller executes one upstream call.
type caller interface {
	Execute(ctx context.Context, req chatapi.Request) chatapi.Result
}

// Run executes one batch and returns its summary.
//
// Failures to load inputs or configuration, and failure to write the
// summary, are fatal: Run then returns a nil summary and the error. Failures
// of individual jobs are counted in the summary and never returned.
// Cancelling ctx stops new jobs from starting; calls already in flight
// finish and the run still completes with a summary.
func (e *Engine) Run(ctx context.Context, cfg *config.Config, req Request) (*core.RunSummary, error) {
	rc, err := config.Resolve(cfg, req.Override)
	if err != nil {
		return nil, err
	}
	if req.UsersFile != "" {
		rc.UsersFile = req.UsersFile
	}
	if req.PromptsFile != "" {
		rc.PromptsFile = req.PromptsFile
	}

	users, prompts, err := e.loadInputs(rc)
	if err != nil {
		return nil, err
	}

	if err := export.CheckSegments("models", rc.Models); err != nil {
		return nil, &config.Error{Source: "models", Err: err}
	}
	if err := export.CheckSegments("chat_modes", rc.ChatModes); err != nil {
		return nil, &config.Error{Source: "chat_modes", Err: err}
	}

	jobs := BuildJobs(users, prompts, rc.Models, rc.ChatModes)

	root, err := filepath.Abs(rc.ExportDir)
	if err != nil {
		return nil, &config.Error{Source: "export_dir", Err: err}
	}
	runID := NewRunID(e.now())
	writer := export.NewWriter(root, runID)

	client, err := chatapi.New(chatapi.Config{
		URL:          rc.URL,
		Headers:      rc.Headers,
		Timeout:      rc.Timeout,
		MaxRetries:   rc.MaxRetries,
		RetryBackoff: rc.RetryBackoff,
		HTTPClient:   e.httpClient,
		Logger:       e.logger,
	})
	if err != nil {
		return nil, &config.Error{Err: err}
	}

	e.logger.Info("starting run",
		"run_id", runID,
		"users", len(users),
		"prompts", len(prompts),
		"models", len(rc.Models),
		"chat_modes", len(rc.ChatModes),
		"jobs", len(jobs),
		"max_concurrency", rc.MaxConcurrency,
		"export_root", root,
	)

	agg := &aggregator{
		writer: writer,
		report: writer.NewReport(jobs),
		logger: e.logger,
		summary: core.RunSummary{
			RunID:          runID,
			ExportRoot:     root,
			UsersTotal:     len(users),
			ModelsTotal:    len(rc.Models),
			ChatModesTotal: len(rc.ChatModes),
			JobsTotal:      len(jobs),
		},
	}

	results := make(chan core.JobResult, rc.MaxConcurrency)
	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		agg.consume(results)
	}()

	dispatch(ctx, groupByUser(jobs), rc.MaxConcurrency, e.executor(rc, client), results)
	close(results)
	<-aggDone

	summary := agg.summary
	if !summary.Complete() {
		return nil, fmt.Errorf("run %s: %d of %d jobs accounted for", runID, summary.JobsOK+summary.JobsError, summary.JobsTotal)
	}

	path, err := writer.WriteSummary(summary)
	if err != nil {
		e.logger.Error("summary write failed", "run_id", runID, "error", err)
		return nil, err
	}

	if ctx.Err() != nil {
		e.logger.Warn("run cancelled", "run_id", runID, "jobs_error", summary.JobsError)
	}
	e.logger.Info("run completed",
		"run_id", runID,
		"jobs_total", summary.JobsTotal,
		"jobs_ok", summary.JobsOK,
		"jobs_error", summary.JobsError,
		"summary", path,
	)
	return &summary, nil
}

// loadInputs reads the users (or generates them) and the prompts.
func (e *Engine) loadInputs(rc *config.RunConfig) ([]core.User, []core.Prompt, error) {
	var users []core.User
	if rc.UsersFile != "" {
		var err error
		users, err = input.LoadUsers(rc.UsersFile)
		if err != nil {
			return nil, nil, err
		}
		names := make([]string, len(users))
		for i, u := range users {
			names[i] = u.Name
		}
		if err := export.CheckUserDirs(names); err != nil {
			return nil, nil, &input.ParseError{Path: rc.UsersFile, Err: err}
		}
	} else {
		users = input.GenerateUsers(rc.UserCount, 1)
		e.logger.Debug("no users file, using generated users", "count", len(users))
	}

	if rc.PromptsFile == "" {
		return nil, nil, &config.Error{Source: "prompts_file", Err: errors.New("a prompts file is required")}
	}
	prompts, err := input.LoadPrompts(rc.PromptsFile, rc.PromptSheet)
	if err != nil {
		return nil, nil, err
	}

	e.logger.Debug("loaded inputs", "users", len(users), "prompts", len(prompts))
	return users, prompts, nil
}

// executor adapts c into an execFunc producing JobResults.
func (e *Engine) executor(rc *config.RunConfig, c caller) execFunc {
	return func(ctx context.Context, job core.Job) core.JobResult {
		res := c.Execute(ctx, BuildRequest(rc, job, e.newUID()))
		r := core.JobResult{
			Job:          job,
			Status:       core.JobStatusOK,
			StatusCode:   res.StatusCode,
			Attempts:     res.Attempts,
			ResponseBody: res.Body,
			Content:      res.Content,
			Duration:     res.Duration,
		}
		if res.Err != nil {
			r.Status = core.JobStatusError
			r.ErrorMessage = res.Err.Error()
		}
		return r
	}
}
