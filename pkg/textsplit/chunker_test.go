package textsplit

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"spacey/pkg/domain"
)

func TestNewRejectsInvalidWindow(t *testing.T) {
	cases := []struct{ size, overlap int }{
		{0, 0},
		{-1, 0},
		{10, 10},
		{10, 11},
		{10, -1},
	}
	for _, tc := range cases {
		if _, err := New(tc.size, tc.overlap); !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("New(%d, %d) error = %v, want ErrConfiguration", tc.size, tc.overlap, err)
		}
	}
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	c, err := New(1000, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text := "The sky is blue. Grass is green."
	chunks := c.Split(text)
	if len(chunks) != 1 || chunks[0] != text {
		t.Fatalf("Split() = %q, want single chunk equal to input", chunks)
	}
}

func TestSplitEmptyText(t *testing.T) {
	c, _ := New(10, 2)
	if chunks := c.Split(""); len(chunks) != 0 {
		t.Fatalf("Split(\"\") = %q, want none", chunks)
	}
}

func TestSplitWindows(t *testing.T) {
	c, _ := New(4, 2)
	got := c.Split("abcdefghij")
	want := []string{"abcd", "cdef", "efgh", "ghij"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Split() = %q, want %q", got, want)
	}
}

func TestSplitCoverageAndBounds(t *testing.T) {
	texts := []string{
		"a",
		"abcdefghijklmnopqrstuvwxyz",
		strings.Repeat("lorem ipsum dolor sit amet ", 40),
		"héllo wörld, 你好世界, ünïcödé text that spans several windows",
	}
	windows := []struct{ size, overlap int }{
		{1, 0}, {3, 1}, {5, 0}, {7, 6}, {16, 4}, {100, 10},
	}
	for _, text := range texts {
		n := utf8.RuneCountInString(text)
		for _, w := range windows {
			c, err := New(w.size, w.overlap)
			if err != nil {
				t.Fatalf("New(%d, %d): %v", w.size, w.overlap, err)
			}
			chunks := c.Split(text)

			var rebuilt strings.Builder
			for i, chunk := range chunks {
				if utf8.RuneCountInString(chunk) > w.size {
					t.Fatalf("chunk %d has %d runes, size %d", i, utf8.RuneCountInString(chunk), w.size)
				}
				if i == 0 {
					rebuilt.WriteString(chunk)
					continue
				}
				rebuilt.WriteString(string([]rune(chunk)[w.overlap:]))
			}
			if rebuilt.String() != text {
				t.Fatalf("size=%d overlap=%d: rebuilt %q, want %q", w.size, w.overlap, rebuilt.String(), text)
			}

			want := 1
			if n > w.size {
				step := w.size - w.overlap
				want = (n - w.overlap + step - 1) / step
			}
			if len(chunks) != want {
				t.Fatalf("size=%d overlap=%d len=%d: %d chunks, want %d", w.size, w.overlap, n, len(chunks), want)
			}
		}
	}
}
