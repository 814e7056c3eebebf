// Package export persists job results and run summaries.
//
// Layout under the export root:
//
//	<root>/<user>/<run_id>/<model>/<mode>/p0001.json
//	<root>/<user>/<run_id>/<model>/<mode>/<prompt id prefix>.xlsx
//	<root>/<run_id>_summary.json
//
// Model and mode segments are escaped so distinct names never share a
// directory. Every file is written once through a temp file and a rename,
// and an existing file is never replaced.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/chatbatch/pkg/core"
)

// Error is a failed export write.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrExists is returned when the target file is already present.
var ErrExists = errors.New("file already exists")

// Artifact is the on-disk record of one job.
type Artifact struct {
	JobID       string          `json:"job_id"`
	User        string          `json:"user"`
	UserID      string          `json:"user_id"`
	PromptIndex int             `json:"prompt_index"`
	SourceRow   int             `json:"source_row"`
	Sheet       string          `json:"sheet"`
	PromptID    string          `json:"prompt_id"`
	Prompt      string          `json:"prompt"`
	Model       string          `json:"model"`
	ChatMode    string          `json:"chat_mode"`
	Status      core.JobStatus  `json:"status"`
	HTTPStatus  int             `json:"http_status"`
	Attempts    int             `json:"attempts"`
	DurationMS  int64           `json:"duration_ms"`
	Content     string          `json:"content"`
	Error       string          `json:"error"`
	Response    json.RawMessage `json:"response"`
}

// NewArtifact builds the artifact of r. A JSON response body is embedded as
// JSON, anything else as a string.
func NewArtifact(r core.JobResult) Artifact {
	j := r.Job
	return Artifact{
		JobID:       j.ID,
		User:        j.User.Name,
		UserID:      j.User.ID,
		PromptIndex: j.PromptIndex,
		SourceRow:   j.Prompt.SourceRowIndex,
		Sheet:       j.Prompt.Sheet,
		PromptID:    j.Prompt.PromptID,
		Prompt:      j.Prompt.Text,
		Model:       j.Model,
		ChatMode:    j.ChatMode,
		Status:      r.Status,
		HTTPStatus:  r.StatusCode,
		Attempts:    r.Attempts,
		DurationMS:  r.Duration.Milliseconds(),
		Content:     r.Content,
		Error:       r.ErrorMessage,
		Response:    responseJSON(r.ResponseBody),
	}
}

func responseJSON(body []byte) json.RawMessage {
	if len(body) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	s, _ := json.Marshal(string(body))
	return s
}

// Writer writes the files of one run.
type Writer struct {
	root  string
	runID string
}

// NewWriter returns a Writer for run runID under root.
func NewWriter(root, runID string) *Writer {
	return &Writer{root: root, runID: runID}
}

// Root returns the export root.
func (w *Writer) Root() string {
	return w.root
}

// RunDir returns the directory holding user's artifacts for this run.
func (w *Writer) RunDir(user string) string {
	return filepath.Join(w.root, SafeSegment(user), w.runID)
}

// JobDir returns the directory holding the files of one user, model and
// chat mode.
func (w *Writer) JobDir(user, model, chatMode string) string {
	return filepath.Join(w.RunDir(user), EscapeSegment(model), EscapeSegment(chatMode))
}

// ArtifactPath returns where the result of job is written.
func (w *Writer) ArtifactPath(job core.Job) string {
	name := fmt.Sprintf("p%04d.json", job.PromptIndex)
	return filepath.Join(w.JobDir(job.User.Name, job.Model, job.ChatMode), name)
}

// SummaryPath returns where the run summary is written.
func (w *Writer) SummaryPath() string {
	return filepath.Join(w.root, w.runID+"_summary.json")
}

// WriteResult writes the artifact of r and returns its path.
func (w *Writer) WriteResult(r core.JobResult) (string, error) {
	path := w.ArtifactPath(r.Job)
	data, err := json.MarshalIndent(NewArtifact(r), "", "  ")
	if err != nil {
		return "", &Error{Path: path, Err: fmt.Errorf("marshal artifact: %w", err)}
	}
	if err := writeOnce(path, append(data, '\n')); err != nil {
		return "", &Error{Path: path, Err: err}
	}
	return path, nil
}

// WriteSummary writes s as the run summary and returns its path.
func (w *Writer) WriteSummary(s core.RunSummary) (string, error) {
	path := w.SummaryPath()
	data, err := s.MarshalIndent()
	if err != nil {
		return "", &Error{Path: path, Err: fmt.Errorf("marshal summary: %w", err)}
	}
	if err := writeOnce(path, data); err != nil {
		return "", &Error{Path: path, Err: err}
	}
	return path, nil
}

// writeOnce writes data to path via a temp file in the same directory.
// Parent directories are created as needed; an existing path is left alone
// and reported as ErrExists.
func writeOnce(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if _, err := os.Lstat(path); err == nil {
		return ErrExists
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".chatbatch-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// SafeSegment makes s usable as a single path segment: the characters
// <>:"/\|?* and control characters become '_', surrounding whitespace and
// dots are dropped, and an empty result becomes "user".
func SafeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, s)
	s = strings.Trim(s, " .")
	if s == "" {
		return "user"
	}
	return s
}

// EscapeSegment encodes s as one path segment without losing information:
// '%', the characters <>:"/\|?*, control characters, and leading or
// trailing dots and spaces become %XX. Distinct inputs always give distinct
// segments. The empty string becomes "%".
func EscapeSegment(s string) string {
	if s == "" {
		return "%"
	}
	lead := len(s) - len(strings.TrimLeft(s, " ."))
	trail := len(strings.TrimRight(s, " ."))

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == 0x7f || c == '%' || strings.IndexByte(`<>:"/\|?*`, c) >= 0 || i < lead || i >= trail {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// CheckUserDirs reports an error when two user names map to the same
// directory segment.
func CheckUserDirs(names []string) error {
	seen := make(map[string]string, len(names))
	for _, n := range names {
		seg := SafeSegment(n)
		key := strings.ToLower(seg)
		if prev, ok := seen[key]; ok && prev != n {
			return fmt.Errorf("users %q and %q share export directory %q", prev, n, seg)
		}
		seen[key] = n
	}
	return nil
}

// CheckSegments reports an error when two names of kind escape to segments
// that differ only in case, which case-insensitive file systems would merge.
func CheckSegments(kind string, names []string) error {
	seen := make(map[string]string, len(names))
	for _, n := range names {
		key := strings.ToLower(EscapeSegment(n))
		if prev, ok := seen[key]; ok && prev != n {
			return fmt.Errorf("%s %q and %q share export directory %q", kind, prev, n, EscapeSegment(n))
		}
		seen[key] = n
	}
	return nil
}
