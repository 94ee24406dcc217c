package relay

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// dataPrefix marks event lines that carry a JSON fragment.
const dataPrefix = "data: "

// maxLineSize bounds a single event line; answer fragments are small
// but code-heavy answers can produce long lines.
const maxLineSize = 1024 * 1024

// fragmentScanner iterates over an event stream, yielding answer
// fragments in arrival order. It is consumed exactly once and is not
// restartable. Lines without the data prefix, fragments that fail to
// parse and fragments without an answer field are skipped; a bad
// fragment never aborts the stream.
type fragmentScanner struct {
	scanner *bufio.Scanner
	skipped int
}

func newFragmentScanner(r io.Reader) *fragmentScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &fragmentScanner{scanner: scanner}
}

// Next returns the next answer fragment. ok is false once the stream
// is exhausted.
func (f *fragmentScanner) Next() (fragment string, ok bool) {
	for f.scanner.Scan() {
		line := f.scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		data := strings.TrimSpace(line[len(dataPrefix):])
		if data == "" {
			continue
		}

		var event struct {
			Answer *string `json:"answer"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			f.skipped++
			continue
		}
		if event.Answer == nil {
			f.skipped++
			continue
		}

		return *event.Answer, true
	}
	return "", false
}

// Skipped returns how many malformed or answer-less fragments were
// dropped so far.
func (f *fragmentScanner) Skipped() int {
	return f.skipped
}

// Err returns the first error hit while reading the stream, if any.
func (f *fragmentScanner) Err() error {
	return f.scanner.Err()
}
