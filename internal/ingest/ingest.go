// Package ingest turns uploaded spreadsheets into normalized destination numbers.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"
)

var (
	ErrNoValidNumbersFound = errors.New("ingest: no valid numbers found")
	ErrEmptyFile           = errors.New("ingest: empty file")
	// ErrUnreadableFile wraps a corrupt workbook or malformed delimited text.
	ErrUnreadableFile = errors.New("ingest: unreadable file")
)

// HeaderNames are the accepted column headers, in priority order.
var HeaderNames = []string{"number", "Number", "phone", "Phone"}

var scientific = regexp.MustCompile(`(?i)e\+`)

// Extract parses an xlsx workbook (first sheet) or delimited text and returns
// the normalized numbers in row order.
func Extract(data []byte) ([]string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	var (
		rows [][]string
		err  error
	)
	if isZip(data) {
		rows, err = readWorkbook(data)
	} else {
		rows, err = readDelimited(data)
	}
	if err != nil {
		return nil, err
	}

	numbers := fromRows(rows)
	if len(numbers) == 0 {
		return nil, ErrNoValidNumbersFound
	}
	return numbers, nil
}

// Normalize strips whitespace, expands scientific notation and prefixes "+".
func Normalize(raw string) string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if s == "" {
		return ""
	}
	if scientific.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			s = strconv.FormatFloat(f, 'f', 0, 64)
		}
	}
	if !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	return s
}

func fromRows(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	header := map[string]int{}
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if _, seen := header[h]; !seen {
			header[h] = i
		}
	}
	var cols []int
	for _, name := range HeaderNames {
		if i, ok := header[name]; ok {
			cols = append(cols, i)
		}
	}
	if len(cols) == 0 {
		return nil
	}

	var out []string
	for _, row := range rows[1:] {
		for _, i := range cols {
			if i >= len(row) {
				continue
			}
			if n := Normalize(row[i]); n != "" {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

func isZip(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte("PK\x03\x04"))
}

func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %w", ErrUnreadableFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoValidNumbersFound
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %w", ErrUnreadableFile, sheets[0], err)
	}
	return rows, nil
}

func readDelimited(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = detectDelimiter(data)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read delimited text: %w", ErrUnreadableFile, err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
