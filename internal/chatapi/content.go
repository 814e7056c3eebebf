package chatapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
)

type completion struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Data json.RawMessage `json:"data"`
}

// ExtractContent returns the assistant message of a chat-completion body,
// or "" when none is found.
//
// Two shapes are understood. A server-sent event stream yields the content of
// the last "data:" chunk that carries one; "[DONE]" and unparsable chunks are
// skipped. A plain JSON object yields choices[0].message.content, looking
// inside a top-level "data" object when the outer one has no choices.
func ExtractContent(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	if trimmed[0] == '{' {
		if s, ok := fromJSON(trimmed); ok {
			return s
		}
	}
	return fromEvents(trimmed)
}

func fromEvents(body []byte) string {
	var last string
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64<<10), 8<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}
		if s, ok := fromJSON([]byte(data)); ok {
			last = s
		}
	}
	return last
}

func fromJSON(raw []byte) (string, bool) {
	var c completion
	if err := json.Unmarshal(raw, &c); err != nil {
		return "", false
	}
	if len(c.Choices) > 0 && c.Choices[0].Message.Content != nil {
		return *c.Choices[0].Message.Content, true
	}
	if len(c.Data) > 0 && c.Data[0] == '{' {
		return fromJSON(c.Data)
	}
	return "", false
}
