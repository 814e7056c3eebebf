package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/chatbatch/internal/config"
	"github.com/leapstack-labs/chatbatch/internal/export"
	"github.com/leapstack-labs/chatbatch/internal/input"
	"github.com/leapstack-labs/chatbatch/internal/testutil"
	"github.com/leapstack-labs/chatbatch/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// upstream is a fake chat-completion API that records what it receives.
type upstream struct {
	srv *httptest.Server

	mu       sync.Mutex
	bodies   []map[string]any
	byUser   map[string][]string
	userIDs  map[string]string
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32

	delay time.Duration
	// slow prompts never answer within the client timeout.
	slow string
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{byUser: map[string][]string{}, userIDs: map[string]string{}}
	u.srv = httptest.NewServer(http.HandlerFunc(u.handle))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) handle(w http.ResponseWriter, r *http.Request) {
	u.calls.Add(1)
	n := u.inFlight.Add(1)
	defer u.inFlight.Add(-1)
	for {
		p := u.peak.Load()
		if n <= p || u.peak.CompareAndSwap(p, n) {
			break
		}
	}

	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	user, _ := body["user_name"].(string)
	prompt, _ := body["user_input"].(string)

	u.mu.Lock()
	u.bodies = append(u.bodies, body)
	u.byUser[user] = append(u.byUser[user], prompt)
	u.userIDs[user] = r.Header.Get("user-id")
	u.mu.Unlock()

	if u.slow != "" && prompt == u.slow {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		return
	}
	if u.delay > 0 {
		time.Sleep(u.delay)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": "echo: " + prompt}}},
	})
}

func testConfig(url, exportDir string) *config.Config {
	return &config.Config{
		BaseURL:        url,
		Endpoint:       config.DefaultEndpoint,
		Timeout:        2 * time.Second,
		RetryBackoff:   time.Millisecond,
		MaxConcurrency: 8,
		UserCount:      3,
		ExportDir:      exportDir,
		Models:         []string{"m1", "m2"},
		ChatModes:      []string{"chat_normal"},
		Body:           map[string]any{"temperature": 0.1, "select_param": "default"},
	}
}

func writePrompts(t *testing.T, dir string, prompts ...string) string {
	t.Helper()
	rows := [][]any{{"Prompt_ID", "Prompt"}}
	for i, p := range prompts {
		rows = append(rows, []any{fmt.Sprintf("P%02d", i+1), p})
	}
	return testutil.WriteXLSX(t, dir, "prompts.csv", testutil.Sheet{Name: "Prompts", Rows: rows})
}

func newTestEngine(t *testing.T) *Engine {
	return New(Config{Logger: testutil.NewTestLogger(t)})
}

func TestRun_EndToEnd(t *testing.T) {
	up := newUpstream(t)
	dir := t.TempDir()
	exportDir := filepath.Join(dir, "export")
	users := testutil.WriteFile(t, dir, "users.csv", "user_name,user_id,region\nalice,a-1,emea\nbob,b-2,apac\n")
	prompts := writePrompts(t, dir, "first question", "second question")

	summary, err := newTestEngine(t).Run(context.Background(), testConfig(up.srv.URL, exportDir), Request{
		UsersFile:   users,
		PromptsFile: prompts,
	})
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Regexp(t, `^batch_\d{8}_\d{6}_[0-9a-f]{8}$`, summary.RunID)
	assert.Equal(t, exportDir, summary.ExportRoot)
	assert.Equal(t, 2, summary.UsersTotal)
	assert.Equal(t, 2, summary.ModelsTotal)
	assert.Equal(t, 1, summary.ChatModesTotal)
	assert.Equal(t, 8, summary.JobsTotal)
	assert.Equal(t, 8, summary.JobsOK)
	assert.Equal(t, 0, summary.JobsError)
	assert.True(t, summary.Complete())

	// Summary file matches the returned summary.
	raw, err := os.ReadFile(filepath.Join(exportDir, summary.RunID+"_summary.json"))
	require.NoError(t, err)
	var onDisk core.RunSummary
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, *summary, onDisk)

	// One artifact per job and one workbook per prompt id group, under the
	// user's run directory, per model and chat mode.
	for _, user := range []string{"alice", "bob"} {
		for _, model := range []string{"m1", "m2"} {
			entries, err := os.ReadDir(filepath.Join(exportDir, user, summary.RunID, model, "chat_normal"))
			require.NoError(t, err)
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			assert.ElementsMatch(t, []string{"p0001.json", "p0002.json", "P01.xlsx", "P02.xlsx"}, names)
		}
	}

	wb, err := excelize.OpenFile(filepath.Join(exportDir, "bob", summary.RunID, "m2", "chat_normal", "P02.xlsx"))
	require.NoError(t, err)
	rows, err := wb.GetRows(export.ReportSheet)
	require.NoError(t, err)
	_ = wb.Close()
	assert.Equal(t, [][]string{
		{"prompt_id", "prompt", "content"},
		{"P02", "second question", "echo: second question"},
	}, rows)

	raw, err = os.ReadFile(filepath.Join(exportDir, "alice", summary.RunID, "m1", "chat_normal", "p0002.json"))
	require.NoError(t, err)
	var art export.Artifact
	require.NoError(t, json.Unmarshal(raw, &art))
	assert.Equal(t, "alice:p0002:m1:chat_normal", art.JobID)
	assert.Equal(t, "P02", art.PromptID)
	assert.Equal(t, 3, art.SourceRow)
	assert.Equal(t, "echo: second question", art.Content)
	assert.Equal(t, core.JobStatusOK, art.Status)

	// Request bodies carry template, row and job fields.
	up.mu.Lock()
	defer up.mu.Unlock()
	require.Len(t, up.bodies, 8)
	for _, b := range up.bodies {
		assert.Equal(t, 0.1, b["temperature"])
		assert.Equal(t, false, b["stream"])
		assert.NotEmpty(t, b["conv_uid"])
		assert.Contains(t, []any{"emea", "apac"}, b["region"])
	}
	assert.Equal(t, "a-1", up.userIDs["alice"])
	assert.Equal(t, []string{"first question", "first question", "second question", "second question"}, up.byUser["bob"])
}

func TestRun_GeneratedUsers(t *testing.T) {
	up := newUpstream(t)
	dir := t.TempDir()
	cfg := testConfig(up.srv.URL, filepath.Join(dir, "export"))
	cfg.Models = []string{"m1"}

	summary, err := newTestEngine(t).Run(context.Background(), cfg, Request{PromptsFile: writePrompts(t, dir, "q")})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.UsersTotal)
	assert.Equal(t, 3, summary.JobsOK)

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, "userid-002", up.userIDs["user-002"])
}

func TestRun_ConcurrencyCapAndUserOrder(t *testing.T) {
	up := newUpstream(t)
	up.delay = 10 * time.Millisecond
	dir := t.TempDir()
	cfg := testConfig(up.srv.URL, filepath.Join(dir, "export"))
	cfg.UserCount = 20
	cfg.Models = []string{"m1"}

	summary, err := newTestEngine(t).Run(context.Background(), cfg, Request{
		PromptsFile: writePrompts(t, dir, "p1", "p2", "p3"),
	})
	require.NoError(t, err)
	assert.Equal(t, 60, summary.JobsTotal)
	assert.Equal(t, 60, summary.JobsOK)

	assert.LessOrEqual(t, up.peak.Load(), int32(8))
	up.mu.Lock()
	defer up.mu.Unlock()
	require.Len(t, up.byUser, 20)
	for user, seq := range up.byUser {
		assert.Equal(t, []string{"p1", "p2", "p3"}, seq, "user %s", user)
	}
}

func TestRun_ConcurrencyIsClamped(t *testing.T) {
	up := newUpstream(t)
	up.delay = 10 * time.Millisecond
	dir := t.TempDir()
	cfg := testConfig(up.srv.URL, filepath.Join(dir, "export"))
	cfg.UserCount = 12
	cfg.MaxConcurrency = 50
	cfg.Models = []string{"m1"}

	_, err := newTestEngine(t).Run(context.Background(), cfg, Request{PromptsFile: writePrompts(t, dir, "p1", "p2")})
	require.NoError(t, err)
	assert.LessOrEqual(t, up.peak.Load(), int32(config.MaxConcurrency))
}

func TestRun_TimeoutIsIsolated(t *testing.T) {
	up := newUpstream(t)
	up.slow = "hangs"
	dir := t.TempDir()
	cfg := testConfig(up.srv.URL, filepath.Join(dir, "export"))
	cfg.Timeout = 100 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.UserCount = 2
	cfg.Models = []string{"m1"}

	summary, err := newTestEngine(t).Run(context.Background(), cfg, Request{
		PromptsFile: writePrompts(t, dir, "before", "hangs", "after"),
	})
	require.NoError(t, err)
	assert.Equal(t, 6, summary.JobsTotal)
	assert.Equal(t, 4, summary.JobsOK)
	assert.Equal(t, 2, summary.JobsError)
	assert.True(t, summary.Complete())

	raw, err := os.ReadFile(filepath.Join(summary.ExportRoot, "user-001", summary.RunID, "m1", "chat_normal", "p0002.json"))
	require.NoError(t, err)
	var art export.Artifact
	require.NoError(t, json.Unmarshal(raw, &art))
	assert.Equal(t, core.JobStatusError, art.Status)
	assert.Equal(t, 3, art.Attempts)
	assert.Contains(t, art.Error, "timeout")
}

func TestRun_OverrideApplied(t *testing.T) {
	up := newUpstream(t)
	dir := t.TempDir()
	cfg := testConfig(up.srv.URL, filepath.Join(dir, "export"))
	cfg.Body = map[string]any{"model_name": "file-model", "temperature": 0.2}

	_, err := newTestEngine(t).Run(context.Background(), cfg, Request{
		PromptsFile: writePrompts(t, dir, "q1", "q2"),
		Override:    `{"model_name":"x","temperature":0.6}`,
	})
	require.NoError(t, err)

	up.mu.Lock()
	defer up.mu.Unlock()
	require.NotEmpty(t, up.bodies)
	for _, b := range up.bodies {
		assert.Equal(t, "x", b["model_name"])
		assert.Equal(t, 0.6, b["temperature"])
	}
}

func TestRun_RerunUsesNewDirectory(t *testing.T) {
	up := newUpstream(t)
	dir := t.TempDir()
	cfg := testConfig(up.srv.URL, filepath.Join(dir, "export"))
	prompts := writePrompts(t, dir, "q")
	eng := newTestEngine(t)

	first, err := eng.Run(context.Background(), cfg, Request{PromptsFile: prompts})
	require.NoError(t, err)
	firstArtifact := filepath.Join(first.ExportRoot, "user-001", first.RunID, "m1", "chat_normal", "p0001.json")
	before, err := os.ReadFile(firstArtifact)
	require.NoError(t, err)

	second, err := eng.Run(context.Background(), cfg, Request{PromptsFile: prompts})
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)

	after, err := os.ReadFile(firstArtifact)
	require.NoError(t, err)
	assert.Equal(t, before, after, "earlier run is untouched")
	assert.FileExists(t, filepath.Join(first.ExportRoot, first.RunID+"_summary.json"))
	assert.FileExists(t, filepath.Join(second.ExportRoot, second.RunID+"_summary.json"))
	assert.DirExists(t, filepath.Join(second.ExportRoot, "user-001", second.RunID))
}

func TestRun_EmptyModelsCompleteTrivially(t *testing.T) {
	up := newUpstream(t)
	dir := t.TempDir()
	cfg := testConfig(up.srv.URL, filepath.Join(dir, "export"))
	cfg.Models = nil

	summary, err := newTestEngine(t).Run(context.Background(), cfg, Request{PromptsFile: writePrompts(t, dir, "q")})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.JobsTotal)
	assert.Equal(t, 0, summary.ModelsTotal)
	assert.FileExists(t, filepath.Join(summary.ExportRoot, summary.RunID+"_summary.json"))
	assert.Equal(t, int32(0), up.calls.Load())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	up := newUpstream(t)
	dir := t.TempDir()
	cfg := testConfig(up.srv.URL, filepath.Join(dir, "export"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := newTestEngine(t).Run(ctx, cfg, Request{PromptsFile: writePrompts(t, dir, "q1", "q2")})
	require.NoError(t, err)
	assert.Equal(t, 12, summary.JobsTotal)
	assert.Equal(t, 12, summary.JobsError)
	assert.Equal(t, int32(0), up.calls.Load())
}

func TestRun_ExportFailureIsPerJob(t *testing.T) {
	up := newUpstream(t)
	dir := t.TempDir()
	exportDir := filepath.Join(dir, "export")
	testutil.WriteFile(t, exportDir, "user-001", "blocks the user directory")
	cfg := testConfig(up.srv.URL, exportDir)
	cfg.UserCount = 2
	cfg.Models = []string{"m1"}

	summary, err := newTestEngine(t).Run(context.Background(), cfg, Request{PromptsFile: writePrompts(t, dir, "q")})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.JobsTotal)
	assert.Equal(t, 1, summary.JobsOK)
	assert.Equal(t, 1, summary.JobsError)
}

func TestRun_SimilarModelAndModeNamesDoNotCollide(t *testing.T) {
	up := newUpstream(t)
	dir := t.TempDir()
	cfg := testConfig(up.srv.URL, filepath.Join(dir, "export"))
	cfg.UserCount = 1
	cfg.Models = []string{"gpt", "gpt_4", "gpt/4"}
	cfg.ChatModes = []string{"4_x", "x"}

	summary, err := newTestEngine(t).Run(context.Background(), cfg, Request{PromptsFile: writePrompts(t, dir, "q")})
	require.NoError(t, err)
	assert.Equal(t, 6, summary.JobsTotal)
	assert.Equal(t, 6, summary.JobsOK)
	assert.Zero(t, summary.JobsError)

	runDir := filepath.Join(summary.ExportRoot, "user-001", summary.RunID)
	assert.FileExists(t, filepath.Join(runDir, "gpt", "4_x", "p0001.json"))
	assert.FileExists(t, filepath.Join(runDir, "gpt_4", "x", "p0001.json"))
	assert.FileExists(t, filepath.Join(runDir, "gpt%2F4", "x", "p0001.json"))
}

func TestRun_FatalErrors(t *testing.T) {
	up := newUpstream(t)
	dir := t.TempDir()
	goodPrompts := writePrompts(t, dir, "q")
	noColumn := testutil.WriteFile(t, dir, "bad_prompts.csv", "question\nwhat\n")
	dupUsers := testutil.WriteFile(t, dir, "dup_users.csv", "user_name\na/b\na_b\n")

	tests := []struct {
		name   string
		mutate func(*config.Config)
		req    Request
		check  func(t *testing.T, err error)
	}{
		{
			name: "malformed override",
			req:  Request{PromptsFile: goodPrompts, Override: `{"model_name": `},
			check: func(t *testing.T, err error) {
				var cerr *config.Error
				assert.ErrorAs(t, err, &cerr)
			},
		},
		{
			name: "missing prompt column",
			req:  Request{PromptsFile: noColumn},
			check: func(t *testing.T, err error) {
				var merr *input.MissingColumnError
				assert.ErrorAs(t, err, &merr)
			},
		},
		{
			name: "unreadable users file",
			req:  Request{PromptsFile: goodPrompts, UsersFile: filepath.Join(dir, "nope.xlsx")},
			check: func(t *testing.T, err error) {
				var perr *input.ParseError
				assert.ErrorAs(t, err, &perr)
			},
		},
		{
			name: "colliding user directories",
			req:  Request{PromptsFile: goodPrompts, UsersFile: dupUsers},
			check: func(t *testing.T, err error) {
				var perr *input.ParseError
				assert.ErrorAs(t, err, &perr)
			},
		},
		{
			name: "no prompts file",
			req:  Request{},
			check: func(t *testing.T, err error) {
				var cerr *config.Error
				assert.ErrorAs(t, err, &cerr)
			},
		},
		{
			name:   "models differing only in case",
			mutate: func(c *config.Config) { c.Models = []string{"GPT-4o", "gpt-4o"} },
			req:    Request{PromptsFile: goodPrompts},
			check: func(t *testing.T, err error) {
				var cerr *config.Error
				require.ErrorAs(t, err, &cerr)
				assert.Equal(t, "models", cerr.Source)
			},
		},
		{
			name:   "no base url",
			mutate: func(c *config.Config) { c.BaseURL = "" },
			req:    Request{PromptsFile: goodPrompts},
			check: func(t *testing.T, err error) {
				var cerr *config.Error
				assert.ErrorAs(t, err, &cerr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exportDir := filepath.Join(t.TempDir(), "export")
			cfg := testConfig(up.srv.URL, exportDir)
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			summary, err := newTestEngine(t).Run(context.Background(), cfg, tt.req)
			require.Error(t, err)
			assert.Nil(t, summary)
			tt.check(t, err)
			assert.NoDirExists(t, exportDir, "nothing is exported on a fatal error")
		})
	}
	assert.Equal(t, int32(0), up.calls.Load())
}

func TestNewRunID(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	a, b := NewRunID(now), NewRunID(now)
	assert.Regexp(t, `^batch_20260304_050607_[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}
