package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/chatbatch/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() core.JobResult {
	return core.JobResult{
		Job: core.Job{
			ID:          "alice:p0002:gpt/4o:chat_normal",
			User:        core.User{Name: "alice", ID: "id-1"},
			Prompt:      core.Prompt{Text: "total sales", SourceRowIndex: 3, Sheet: "Sales", PromptID: "P-7"},
			PromptIndex: 2,
			Model:       "gpt/4o",
			ChatMode:    "chat_normal",
		},
		Status:       core.JobStatusOK,
		StatusCode:   200,
		Attempts:     1,
		ResponseBody: []byte(`{"choices":[{"message":{"content":"42"}}]}`),
		Content:      "42",
		Duration:     1500 * time.Millisecond,
	}
}

func TestSafeSegment(t *testing.T) {
	tests := map[string]string{
		"alice":        "alice",
		`a<b>c:d"e`:    "a_b_c_d_e",
		`x/y\z|q?w*`:   "x_y_z_q_w_",
		"  ..  ":       "user",
		"":             "user",
		"tab\there":    "tab_here",
		" spaced out ": "spaced out",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeSegment(in), "input %q", in)
	}
}

func TestEscapeSegment(t *testing.T) {
	tests := map[string]string{
		"gpt-4o":      "gpt-4o",
		"gpt_4":       "gpt_4",
		"gpt/4o":      "gpt%2F4o",
		"a:b":         "a%3Ab",
		"100%":        "100%25",
		"..":          "%2E%2E",
		" x. ":        "%20x%2E%20",
		"v1.5":        "v1.5",
		"tab\there":   "tab%09here",
		"":            "%",
		"qwen2 large": "qwen2 large",
	}
	for in, want := range tests {
		assert.Equal(t, want, EscapeSegment(in), "input %q", in)
	}
}

func TestArtifactPath_Distinct(t *testing.T) {
	w := NewWriter(t.TempDir(), "run")
	user := core.User{Name: "u1"}

	seen := make(map[string]string)
	for _, model := range []string{"gpt", "gpt_4", "gpt/4", "gpt:4", "gpt%2F4"} {
		for _, mode := range []string{"4_x", "x", "_x"} {
			job := core.Job{User: user, PromptIndex: 1, Model: model, ChatMode: mode}
			path := w.ArtifactPath(job)
			key := model + "|" + mode
			if prev, ok := seen[path]; ok {
				t.Fatalf("%s and %s share artifact path %s", prev, key, path)
			}
			seen[path] = key

			_, err := w.WriteResult(core.JobResult{Job: job, Status: core.JobStatusOK})
			require.NoError(t, err, "job %s", key)
		}
	}
}

func TestCheckSegments(t *testing.T) {
	require.NoError(t, CheckSegments("models", []string{"gpt", "gpt_4", "gpt/4"}))
	err := CheckSegments("models", []string{"GPT-4o", "gpt-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "models")
}

func TestWriteResult(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, "batch_20260101_120000_abcdef12")

	path, err := w.WriteResult(sampleResult())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "alice", "batch_20260101_120000_abcdef12", "gpt%2F4o", "chat_normal", "p0002.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "alice:p0002:gpt/4o:chat_normal", got["job_id"])
	assert.Equal(t, "id-1", got["user_id"])
	assert.Equal(t, "P-7", got["prompt_id"])
	assert.Equal(t, "ok", got["status"])
	assert.EqualValues(t, 1500, got["duration_ms"])
	assert.EqualValues(t, 3, got["source_row"])
	assert.Equal(t, "42", got["content"])

	resp, ok := got["response"].(map[string]any)
	require.True(t, ok, "JSON response is embedded as an object")
	assert.Contains(t, resp, "choices")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestWriteResult_NonJSONResponse(t *testing.T) {
	r := sampleResult()
	r.Status = core.JobStatusError
	r.StatusCode = 502
	r.ResponseBody = []byte("<html>bad gateway</html>")
	r.ErrorMessage = "chat api call failed: HTTP 502 Bad Gateway"

	path, err := NewWriter(t.TempDir(), "run").WriteResult(r)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Artifact
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.JSONEq(t, `"<html>bad gateway</html>"`, string(got.Response))
	assert.Equal(t, core.JobStatusError, got.Status)
	assert.Equal(t, r.ErrorMessage, got.Error)

	r.ResponseBody = nil
	assert.Equal(t, "null", string(NewArtifact(r).Response))
}

func TestWriteResult_NeverOverwrites(t *testing.T) {
	w := NewWriter(t.TempDir(), "run")
	_, err := w.WriteResult(sampleResult())
	require.NoError(t, err)

	_, err = w.WriteResult(sampleResult())
	var eerr *Error
	require.ErrorAs(t, err, &eerr)
	assert.ErrorIs(t, err, ErrExists)
}

func TestWriteResult_Unwritable(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "alice")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0o644))

	_, err := NewWriter(root, "run").WriteResult(sampleResult())
	var eerr *Error
	require.ErrorAs(t, err, &eerr)
	assert.Contains(t, eerr.Path, "alice")
}

func TestWriteSummary(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, "batch_x")
	s := core.RunSummary{RunID: "batch_x", ExportRoot: root, UsersTotal: 2, ModelsTotal: 1, ChatModesTotal: 2, JobsTotal: 4, JobsOK: 3, JobsError: 1}

	path, err := w.WriteSummary(s)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "batch_x_summary.json"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Len(t, got, 8)
	assert.EqualValues(t, 3, got["jobs_ok"])
}

func TestCheckUserDirs(t *testing.T) {
	require.NoError(t, CheckUserDirs([]string{"alice", "bob"}))
	assert.Error(t, CheckUserDirs([]string{"a/b", "a_b"}))
	assert.Error(t, CheckUserDirs([]string{"Alice", "alice"}))
}
