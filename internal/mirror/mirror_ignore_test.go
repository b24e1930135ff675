package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreList_NothingIgnoredWithoutRules(t *testing.T) {
	base := t.TempDir()
	ignore := NewIgnoreList(base)
	ignore.Load()

	paths := []string{
		"notes.txt",
		".notes.txt.swp",
		"dir/draft.md~",
		".DS_Store",
		"photos/Thumbs.db",
		"dir/.#lock",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			assert.False(t, ignore.ShouldIgnore(path))
			assert.False(t, ignore.ShouldIgnore(filepath.Join(base, filepath.FromSlash(path))))
		})
	}
}

func TestIgnoreList_EditorRulesAreOptIn(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, IgnoreFileName), []byte("*.swp\n*~\n"), 0o644))

	ignore := NewIgnoreList(base)
	ignore.Load()

	assert.True(t, ignore.ShouldIgnore(".notes.txt.swp"))
	assert.True(t, ignore.ShouldIgnore("dir/draft.md~"))
	assert.False(t, ignore.ShouldIgnore(".DS_Store"))
}

func TestIgnoreList_LoadsIgnoreFile(t *testing.T) {
	base := t.TempDir()
	rules := "# build output\n\nbuild/\n*.tmp\n"
	require.NoError(t, os.WriteFile(filepath.Join(base, IgnoreFileName), []byte(rules), 0o644))

	ignore := NewIgnoreList(base)
	ignore.Load()

	assert.True(t, ignore.ShouldIgnore(filepath.Join(base, "build", "out.bin")))
	assert.True(t, ignore.ShouldIgnore(filepath.Join(base, "src", "scratch.tmp")))
	assert.False(t, ignore.ShouldIgnore(filepath.Join(base, "src", "main.go")))
}

func TestIgnoreList_OutsideBaseAndRoot(t *testing.T) {
	base := t.TempDir()
	ignore := NewIgnoreList(base)
	require.NoError(t, ignore.AddExcludes(".DS_Store", "**"))
	ignore.Load()

	assert.False(t, ignore.ShouldIgnore(base))
	assert.False(t, ignore.ShouldIgnore(filepath.Join(filepath.Dir(base), ".DS_Store")))
}

func TestIgnoreList_NotLoaded(t *testing.T) {
	var nilList *IgnoreList
	assert.False(t, nilList.ShouldIgnore(".DS_Store"))
	assert.False(t, NewIgnoreList(t.TempDir()).ShouldIgnore(".DS_Store"))
}

func TestIgnoreList_Excludes(t *testing.T) {
	base := t.TempDir()
	ignore := NewIgnoreList(base)
	require.NoError(t, ignore.AddExcludes("build/**", "/**/*.log", "./cache/*"))
	ignore.Load()

	tests := []struct {
		path     string
		expected bool
	}{
		{"build/out.bin", true},
		{"build/nested/out.bin", true},
		{"src/build.go", false},
		{"app.log", true},
		{"logs/today.log", true},
		{"cache/a", true},
		{"cache/deep/a", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, ignore.ShouldIgnore(filepath.Join(base, filepath.FromSlash(tt.path))))
		})
	}
}

func TestIgnoreList_InvalidExclude(t *testing.T) {
	ignore := NewIgnoreList(t.TempDir())
	err := ignore.AddExcludes("ok/**", "broken[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken[")
	assert.Empty(t, ignore.excludes)
}
