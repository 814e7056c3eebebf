package input

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const peekSize = 64 << 10

// delimiters are tried when sniffing the header line, in tie-break order.
var delimiters = []rune{',', ';', '\t', '|'}

func readCSV(path string) ([]Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	// Strip a UTF-8 BOM (and decode UTF-16 when a BOM says so).
	decoded := transform.NewReader(fh, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	br := bufio.NewReaderSize(decoded, peekSize)

	comma, err := sniffDelimiter(br)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(br)
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var raw []Row
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := r.FieldPos(0)
		raw = append(raw, Row{Index: line, Cells: rec})
	}
	return []Table{newTable("", raw)}, nil
}

// sniffDelimiter picks the most frequent delimiter on the first non-blank
// line without consuming input.
func sniffDelimiter(br *bufio.Reader) (rune, error) {
	peek, err := br.Peek(peekSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return 0, fmt.Errorf("read csv: %w", err)
	}

	var line string
	for _, l := range strings.Split(string(peek), "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}

	best, bestCount := ',', 0
	for _, d := range delimiters {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best, nil
}
