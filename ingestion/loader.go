package ingestion

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/poiesic/lexgraph/core"
)

// maxRecordSize bounds a single JSON line. Some provisions carry long schedules.
const maxRecordSize = 16 << 20

// Records returns an iterator over the provisions in a JSON Lines stream.
// Blank lines are skipped. Iteration stops after the first error.
func Records(r io.Reader) iter.Seq2[*core.Provision, error] {
	return func(yield func(*core.Provision, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
		line := 0
		for scanner.Scan() {
			line++
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}
			var p core.Provision
			if err := json.Unmarshal(raw, &p); err != nil {
				yield(nil, fmt.Errorf("%w: line %d: %w", ErrInvalidInput, line, err))
				return
			}
			if !yield(&p, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("%w: after line %d: %w", ErrInvalidInput, line, err))
		}
	}
}

// ReadProvisions reads every provision from a JSON Lines stream.
func ReadProvisions(r io.Reader) ([]*core.Provision, error) {
	var out []*core.Provision
	for p, err := range Records(r) {
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadFile reads every provision from a JSON Lines file.
func LoadFile(path string) ([]*core.Provision, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	provisions, err := ReadProvisions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return provisions, nil
}
