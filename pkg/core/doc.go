// Package core defines the shared vocabulary of a batch run.
//
// This package contains:
//   - Input records (User, Prompt)
//   - Units of work and their outcomes (Job, JobResult)
//   - The run outcome (RunSummary)
//
// The Golden Rule: pkg/core imports ONLY the standard library.
// All other packages depend on core, not the reverse.
package core
