package export

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/leapstack-labs/chatbatch/pkg/core"
)

// ReportSheet is the worksheet name of a results workbook.
const ReportSheet = "Result"

// reportHeader is the first row of every results workbook.
var reportHeader = []any{"prompt_id", "prompt", "content"}

// PromptIDPrefix returns the group of a prompt id: its first two
// dash-separated parts ("P01-1-03" -> "P01-1"). Ids with fewer parts are
// their own group and an empty id is "unknown".
func PromptIDPrefix(id string) string {
	id = strings.TrimSpace(id)
	parts := strings.Split(id, "-")
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	if id == "" {
		return "unknown"
	}
	return id
}

type groupKey struct {
	user, model, mode, prefix string
}

type reportRow struct {
	seq      int
	promptID string
	prompt   string
	content  string
}

// Report builds the human-readable results workbooks of a run: one per
// user, model, chat mode and prompt id prefix, with a row per prompt. A
// workbook is written as soon as the last result of its group is added.
//
// Report is not safe for concurrent use.
type Report struct {
	w        *Writer
	expected map[groupKey]int
	rows     map[groupKey][]reportRow
}

// NewReport returns a Report for the given jobs of the run.
func (w *Writer) NewReport(jobs []core.Job) *Report {
	expected := make(map[groupKey]int)
	for _, j := range jobs {
		expected[keyOf(j)]++
	}
	return &Report{
		w:        w,
		expected: expected,
		rows:     make(map[groupKey][]reportRow),
	}
}

func keyOf(j core.Job) groupKey {
	return groupKey{
		user:   j.User.Name,
		model:  j.Model,
		mode:   j.ChatMode,
		prefix: PromptIDPrefix(j.Prompt.PromptID),
	}
}

// WorkbookPath returns where the workbook of one group is written.
func (w *Writer) WorkbookPath(user, model, chatMode, prefix string) string {
	return filepath.Join(w.JobDir(user, model, chatMode), EscapeSegment(prefix)+".xlsx")
}

// Add records r. When r completes its group the group's workbook is
// written and its path returned; otherwise the path is empty.
func (rp *Report) Add(r core.JobResult) (string, error) {
	key := keyOf(r.Job)
	want, ok := rp.expected[key]
	if !ok {
		return "", nil
	}

	rows := append(rp.rows[key], reportRow{
		seq:      r.Job.Seq,
		promptID: r.Job.Prompt.PromptID,
		prompt:   r.Job.Prompt.Text,
		content:  r.Content,
	})
	if len(rows) < want {
		rp.rows[key] = rows
		return "", nil
	}
	delete(rp.rows, key)
	delete(rp.expected, key)

	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	path := rp.w.WorkbookPath(key.user, key.model, key.mode, key.prefix)
	if err := writeWorkbook(path, rows); err != nil {
		return "", &Error{Path: path, Err: err}
	}
	return path, nil
}

// Pending returns the number of groups still waiting for results.
func (rp *Report) Pending() int {
	return len(rp.expected)
}

func writeWorkbook(path string, rows []reportRow) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), ReportSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	header := reportHeader
	if err := f.SetSheetRow(ReportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{r.promptID, r.prompt, r.content}
		if err := f.SetSheetRow(ReportSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}
	return writeOnce(path, buf.Bytes())
}
