package textsplit

import (
	"fmt"

	"spacey/pkg/domain"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 100
)

// Chunker splits text into overlapping fixed-size character windows.
// Sizes are counted in runes so multi-byte text is never cut mid-character.
type Chunker struct {
	size    int
	overlap int
}

// New validates the window parameters. overlap must satisfy 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be > 0, got %d", domain.ErrConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", domain.ErrConfiguration, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of characters shared by consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns text[start:start+size] for start = 0, step, 2*step, ...
// and stops at the first window that reaches the end of the text, so no
// trailing window is fully contained in its predecessor. The last window
// may be shorter than size.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := c.size - c.overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
