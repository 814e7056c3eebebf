package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"

	"github.com/leapstack-labs/chatbatch/internal/config"
	"github.com/leapstack-labs/chatbatch/pkg/core"
)

// OutputMode selects how results are printed.
type OutputMode string

// Output modes.
const (
	OutputAuto OutputMode = "auto" // text on a terminal, JSON otherwise
	OutputText OutputMode = "text"
	OutputJSON OutputMode = "json"
)

// ParseOutputMode validates s. An empty string means auto.
func ParseOutputMode(s string) (OutputMode, error) {
	switch m := OutputMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return OutputAuto, nil
	case OutputAuto, OutputText, OutputJSON:
		return m, nil
	default:
		return "", fmt.Errorf("invalid output format %q (want auto, text or json)", s)
	}
}

// resolve turns auto into text or JSON depending on whether w is a terminal.
func (m OutputMode) resolve(w io.Writer) OutputMode {
	if m != OutputAuto && m != "" {
		return m
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return OutputText
	}
	return OutputJSON
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderSummary(w io.Writer, mode OutputMode, s *core.RunSummary) error {
	if mode.resolve(w) == OutputJSON {
		return writeIndentedJSON(w, s)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Run " + s.RunID)
	t.AppendRows([]table.Row{
		{"export root", s.ExportRoot},
		{"users", s.UsersTotal},
		{"models", s.ModelsTotal},
		{"chat modes", s.ChatModesTotal},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"jobs", s.JobsTotal},
		{"ok", s.JobsOK},
		{"error", s.JobsError},
	})
	t.Render()
	return nil
}

// configView is the printable form of the effective configuration.
type configView struct {
	*config.Config
	URL string `json:"url,omitempty"`
}

func renderConfig(w io.Writer, mode OutputMode, cfg *config.Config, url string) error {
	cfg = cfg.Redacted()
	if mode.resolve(w) == OutputJSON {
		return writeIndentedJSON(w, configView{Config: cfg, URL: url})
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Key", "Value"})

	file := cfg.File
	if file == "" {
		file = "(none)"
	}
	t.AppendRows([]table.Row{
		{"config_file", file},
		{"base_url", cfg.BaseURL},
		{"endpoint", cfg.Endpoint},
		{"url", url},
		{"timeout", cfg.Timeout},
		{"max_retries", cfg.MaxRetries},
		{"retry_backoff", cfg.RetryBackoff},
		{"max_concurrency", fmt.Sprintf("%d (effective %d)", cfg.MaxConcurrency, config.ClampConcurrency(cfg.MaxConcurrency))},
		{"users_file", orDash(cfg.UsersFile)},
		{"user_count", cfg.UserCount},
		{"prompts_file", orDash(cfg.PromptsFile)},
		{"prompt_sheet", orDash(cfg.PromptSheet)},
		{"export_dir", cfg.ExportDir},
		{"log_dir", orDash(cfg.LogDir)},
		{"models", orDash(strings.Join(cfg.Models, ", "))},
		{"chat_modes", orDash(strings.Join(cfg.ChatModes, ", "))},
		{"headers", orDash(formatHeaders(cfg.Headers))},
		{"body", orDash(formatBody(cfg.Body))},
	})
	t.Render()
	return nil
}

func formatHeaders(h map[string]string) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + ": " + h[k]
	}
	return strings.Join(lines, "\n")
}

func formatBody(b map[string]any) string {
	if len(b) == 0 {
		return ""
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Sprint(b)
	}
	return string(data)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
