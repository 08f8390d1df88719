// Package chunker splits extracted text into overlapping fixed-size
// windows, the unit the rest of the pipeline embeds and stores.
package chunker

import (
	"fmt"

	"ragbase/internal/rag/schema"
)

// Chunker produces overlapping character windows. It is a pure function
// over its inputs: the same text always yields the same chunk sequence.
type Chunker struct {
	// Size is the target chunk length in characters.
	Size int
	// Overlap is how many characters consecutive chunks share.
	Overlap int
	// MaxChunks caps how many chunks one document may produce. Text
	// beyond the cap is silently not indexed, bounding the work an
	// oversized upload can cause.
	MaxChunks int
}

// New validates the window parameters and returns a Chunker.
func New(size, overlap, maxChunks int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must satisfy 0 <= overlap < size, got %d", overlap)
	}
	if maxChunks <= 0 {
		return nil, fmt.Errorf("max chunks must be positive, got %d", maxChunks)
	}
	return &Chunker{Size: size, Overlap: overlap, MaxChunks: maxChunks}, nil
}

// Split cuts text into chunks for the named file. Chunk i starts at
// offset i*(Size-Overlap) and spans min(Size, remaining text). Empty text
// yields no chunks; text shorter than Size yields exactly one chunk
// holding the whole text.
func (c *Chunker) Split(fileName, text string) []*schema.Chunk {
	// Offsets are in characters, not bytes, so a window never cuts a
	// multi-byte rune in half.
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.Size - c.Overlap
	var chunks []*schema.Chunk

	for start := 0; start < len(runes); start += step {
		if len(chunks) == c.MaxChunks {
			break
		}
		end := start + c.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, schema.NewChunk(fileName, len(chunks), string(runes[start:end])))
		if end == len(runes) {
			break
		}
	}

	return chunks
}
