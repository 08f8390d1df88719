package chunker

import (
	"strings"
	"testing"
)

func mustChunker(t *testing.T, size, overlap, maxChunks int) *Chunker {
	t.Helper()
	c, err := New(size, overlap, maxChunks)
	if err != nil {
		t.Fatalf("New(%d, %d, %d) error = %v", size, overlap, maxChunks, err)
	}
	return c
}

func TestSplit_EmptyText(t *testing.T) {
	c := mustChunker(t, 500, 100, 1000)
	if chunks := c.Split("a.txt", ""); len(chunks) != 0 {
		t.Errorf("Expected zero chunks for empty text, got %d", len(chunks))
	}
}

func TestSplit_ShortText(t *testing.T) {
	c := mustChunker(t, 500, 100, 1000)
	text := "short document"

	chunks := c.Split("a.txt", text)
	if len(chunks) != 1 {
		t.Fatalf("Expected exactly one chunk, got %d", len(chunks))
	}
	if chunks[0].Text != text {
		t.Errorf("Expected the single chunk to hold the whole text, got %q", chunks[0].Text)
	}
	if chunks[0].Index != 0 {
		t.Errorf("Expected chunk index 0, got %d", chunks[0].Index)
	}
}

func TestSplit_OffsetsAndOverlap(t *testing.T) {
	// 1200 characters with S=500, O=100 must produce exactly 3 chunks
	// at offsets 0-500, 400-900, 800-1200.
	c := mustChunker(t, 500, 100, 1000)
	text := strings.Repeat("abcdefghij", 120)

	chunks := c.Split("a.txt", text)
	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}

	wantSpans := [][2]int{{0, 500}, {400, 900}, {800, 1200}}
	for i, span := range wantSpans {
		want := text[span[0]:span[1]]
		if chunks[i].Text != want {
			t.Errorf("Chunk %d: expected text[%d:%d], got a different window", i, span[0], span[1])
		}
		if chunks[i].Index != i {
			t.Errorf("Chunk %d: expected index %d, got %d", i, i, chunks[i].Index)
		}
	}

	// Adjacent chunks share exactly the overlap.
	for i := 0; i+1 < len(chunks); i++ {
		tail := chunks[i].Text[len(chunks[i].Text)-100:]
		head := chunks[i+1].Text[:100]
		if tail != head {
			t.Errorf("Chunks %d and %d do not overlap by 100 characters", i, i+1)
		}
	}
}

func TestSplit_ChunkCountFormula(t *testing.T) {
	// ceil(L / (S-O)) chunks, adjusted when the last window would start
	// inside the previous chunk's tail.
	c := mustChunker(t, 500, 100, 1000)
	for _, length := range []int{1, 400, 401, 500, 900, 1200, 1300, 4000} {
		text := strings.Repeat("x", length)
		chunks := c.Split("a.txt", text)

		// Reconstruct the expected walk.
		want := 0
		for start := 0; start < length; start += 400 {
			want++
			if start+500 >= length {
				break
			}
		}
		if len(chunks) != want {
			t.Errorf("Length %d: expected %d chunks, got %d", length, want, len(chunks))
		}
	}
}

func TestSplit_MaxChunksTruncates(t *testing.T) {
	c := mustChunker(t, 500, 100, 2)
	text := strings.Repeat("x", 5000)

	chunks := c.Split("a.txt", text)
	if len(chunks) != 2 {
		t.Errorf("Expected truncation at 2 chunks, got %d", len(chunks))
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c := mustChunker(t, 500, 100, 1000)
	text := strings.Repeat("deterministic ", 200)

	first := c.Split("a.txt", text)
	second := c.Split("a.txt", text)
	if len(first) != len(second) {
		t.Fatalf("Chunk counts differ between runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Text != second[i].Text {
			t.Errorf("Chunk %d differs between identical runs", i)
		}
	}
}

func TestSplit_MultiByteRunesNotCut(t *testing.T) {
	c := mustChunker(t, 10, 2, 1000)
	text := strings.Repeat("日本語テキスト分割", 10)

	for i, chunk := range c.Split("a.txt", text) {
		for _, r := range chunk.Text {
			if r == '�' {
				t.Fatalf("Chunk %d contains a replacement rune, a window cut a character", i)
			}
		}
	}
}

func TestNew_RejectsBadParameters(t *testing.T) {
	cases := []struct {
		name                     string
		size, overlap, maxChunks int
	}{
		{"zero size", 0, 0, 10},
		{"overlap equals size", 100, 100, 10},
		{"negative overlap", 100, -1, 10},
		{"zero max chunks", 100, 10, 0},
	}
	for _, tc := range cases {
		if _, err := New(tc.size, tc.overlap, tc.maxChunks); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}
