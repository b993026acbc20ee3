package text

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBinary(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"empty", nil, false},
		{"plain text", []byte("package main\n"), false},
		{"nul in first byte", []byte("\x00abc"), true},
		{"nul later", []byte("abc\x00def"), true},
		{"nul beyond sniff window ignored", append([]byte(strings.Repeat("a", 1024)), 0), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsBinary(tc.data))
		})
	}
}

func TestExtractTrigrams(t *testing.T) {
	assert.Empty(t, ExtractTrigrams(nil))
	assert.Empty(t, ExtractTrigrams([]byte("ab")))

	got := ExtractTrigrams([]byte("abcabc"))
	want := []Trigram{{'a', 'b', 'c'}, {'b', 'c', 'a'}, {'c', 'a', 'b'}}
	assert.ElementsMatch(t, want, got)
	assert.Len(t, got, 3, "overlapping repeats of the same trigram must dedupe")
}

func TestExtractTrigramsSorted(t *testing.T) {
	got := ExtractTrigrams([]byte("zyxabc"))
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, string(got[i-1][:]), string(got[i][:]))
	}
}

func TestCanonicalizeExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.go")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	got, err := Canonicalize(path)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestCanonicalizeDeletedFileMatchesPriorUpsert(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.go")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	before, err := Canonicalize(path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	after, err := Canonicalize(path)
	require.NoError(t, err)

	assert.Equal(t, before, after, "canonicalization must agree before and after deletion while the parent still exists")
}

func TestExtractSnippetFirstMatchWithContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.go")
	content := "l1\nl2\nl3 calculateSum\nl4\nl5\nl6\ncalculateSum again\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	snippet, ok, err := ExtractSnippet(path, "calculateSum")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, snippet.LineNumber)
	require.Len(t, snippet.Lines, 5)
	assert.Equal(t, "l1", snippet.Lines[0].Text)
	assert.Equal(t, "l2", snippet.Lines[1].Text)
	assert.Equal(t, "l3 calculateSum", snippet.Lines[2].Text)
	assert.Equal(t, "l4", snippet.Lines[3].Text)
	assert.Equal(t, "l5", snippet.Lines[4].Text)
}

func TestExtractSnippetNoMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.go")
	require.NoError(t, os.WriteFile(path, []byte("nothing here\n"), 0o644))

	_, ok, err := ExtractSnippet(path, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractSnippetEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.go")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, ok, err := ExtractSnippet(path, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}
