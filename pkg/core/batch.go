package core

import (
	"encoding/json"
	"time"
)

// User is one row of the user list. Name is unique within a run and is used
// as the export directory segment.
type User struct {
	Name string
	// ID is sent as the user-id header; defaults to Name.
	ID string
	// Sheet restricts the user to prompts from one sheet. Empty means all.
	Sheet string
	// Row holds every non-empty cell of the source row keyed by header.
	Row map[string]string
}

// Prompt is one prompt loaded from the prompt set.
type Prompt struct {
	Text string
	// SourceRowIndex is the 1-based row number within its sheet.
	SourceRowIndex int
	// Sheet is the worksheet name for XLSX input, empty for CSV.
	Sheet    string
	PromptID string
}

// Job is one (user, prompt, model, chat mode) unit of work.
type Job struct {
	ID string
	// Seq is the position of the job in build order, starting at 0.
	Seq         int
	User        User
	Prompt      Prompt
	PromptIndex int // 1-based position among the user's prompts
	Model       string
	ChatMode    string
}

// JobStatus is the terminal status of a job.
type JobStatus string

// Job status constants.
const (
	JobStatusOK    JobStatus = "ok"
	JobStatusError JobStatus = "error"
)

// JobResult is the outcome of exactly one Job.
type JobResult struct {
	Job          Job
	Status       JobStatus
	StatusCode   int
	Attempts     int
	ResponseBody []byte
	// Content is the assistant message extracted from ResponseBody, if any.
	Content      string
	ErrorMessage string
	Duration     time.Duration
}

// JobID returns the id of the job that produced the result.
func (r JobResult) JobID() string {
	return r.Job.ID
}

// OK reports whether the job succeeded.
func (r JobResult) OK() bool {
	return r.Status == JobStatusOK
}

// RunSummary is the machine-readable outcome of a run.
type RunSummary struct {
	RunID          string `json:"run_id"`
	ExportRoot     string `json:"export_root"`
	UsersTotal     int    `json:"users_total"`
	ModelsTotal    int    `json:"models_total"`
	ChatModesTotal int    `json:"chat_modes_total"`
	JobsTotal      int    `json:"jobs_total"`
	JobsOK         int    `json:"jobs_ok"`
	JobsError      int    `json:"jobs_error"`
}

// Complete reports whether every job has been accounted for.
func (s RunSummary) Complete() bool {
	return s.JobsOK+s.JobsError == s.JobsTotal
}

// MarshalIndent renders the summary as indented JSON with a trailing newline.
func (s RunSummary) MarshalIndent() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
