package input

import (
	"strings"

	"github.com/leapstack-labs/chatbatch/pkg/core"
)

// Column candidates for prompt sets, in preference order. When both prompt
// columns are present, Prompt wins.
var (
	PromptColumns   = []string{"Prompt", "user_input"}
	PromptIDColumns = []string{"Prompt_ID", "Prompt-ID", "Prompt ID", "PromptID", "Type ID", "TypeID", "type_id", "Type ID New"}
)

// LoadPrompts reads the prompt set at path in sheet order, then row order.
// When sheet is non-empty only that worksheet is read. Sheets without a
// prompt column are skipped; a file where no sheet has one is an error.
func LoadPrompts(path, sheet string) ([]core.Prompt, error) {
	tables, err := ReadTables(path)
	if err != nil {
		return nil, err
	}

	var prompts []core.Prompt
	matched := false
	for _, t := range tables {
		if sheet != "" && !strings.EqualFold(t.Sheet, sheet) {
			continue
		}
		textIdx := column(t.Header, PromptColumns)
		if textIdx < 0 {
			continue
		}
		matched = true
		idIdx := column(t.Header, PromptIDColumns)

		for _, r := range t.Rows {
			text := r.Cell(textIdx)
			if text == "" {
				continue
			}
			prompts = append(prompts, core.Prompt{
				Text:           text,
				SourceRowIndex: r.Index,
				Sheet:          t.Sheet,
				PromptID:       r.Cell(idIdx),
			})
		}
	}

	if !matched {
		return nil, &MissingColumnError{Path: path, Candidates: PromptColumns}
	}
	return prompts, nil
}

// PromptsFor returns the prompts assigned to u: those of u's sheet when it
// has one, otherwise all of them.
func PromptsFor(u core.User, prompts []core.Prompt) []core.Prompt {
	if u.Sheet == "" {
		return prompts
	}
	var out []core.Prompt
	for _, p := range prompts {
		if strings.EqualFold(p.Sheet, u.Sheet) {
			out = append(out, p)
		}
	}
	return out
}
