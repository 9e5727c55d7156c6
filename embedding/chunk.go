package embedding

import (
	"fmt"
	"strings"
)

const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 40
)

// Chunker splits text into fixed-size overlapping windows of words.
type Chunker struct {
	Size    int
	Overlap int
}

// DefaultChunker returns a chunker with the default window.
func DefaultChunker() Chunker {
	return Chunker{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap}
}

// Validate checks that the window advances.
func (c Chunker) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("%w: chunk overlap must be in [0, size)", ErrInvalidConfig)
	}
	return nil
}

// Split returns the chunks of text. Whitespace is collapsed.
// Text with no words yields no chunks.
func (c Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= c.Size {
		return []string{strings.Join(words, " ")}
	}
	step := c.Size - c.Overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := min(start+c.Size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
