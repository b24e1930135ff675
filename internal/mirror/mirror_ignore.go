package mirror

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/syftmirror/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is the optional gitignore-style file read from the source root
const IgnoreFileName = ".mirrorignore"

// IgnoreList decides which paths are left out of change classification.
// Only rules from IgnoreFileName and AddExcludes apply; with neither, nothing
// is ignored. Ignored paths are still replicated by the periodic mirror pass.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
	// doublestar globs relative to baseDir, e.g. "**/node_modules/**"
	excludes []string
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir}
}

// AddExcludes registers extra glob patterns. Invalid patterns are rejected as a whole.
func (s *IgnoreList) AddExcludes(patterns ...string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(normalizeGlob(pattern)) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	for _, pattern := range patterns {
		s.excludes = append(s.excludes, normalizeGlob(pattern))
	}
	return nil
}

func (s *IgnoreList) Load() {
	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)
	var ignoreLines []string

	if utils.FileExists(ignorePath) {
		rules := 0
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Info("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	s.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// ShouldIgnore accepts absolute paths under baseDir or paths relative to it
func (s *IgnoreList) ShouldIgnore(path string) bool {
	if s == nil || s.ignore == nil {
		return false
	}

	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return false
		}
		path = rel
	}

	path = filepath.ToSlash(path)
	if s.ignore.MatchesPath(path) {
		return true
	}

	for _, pattern := range s.excludes {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

func normalizeGlob(pattern string) string {
	pattern = strings.ReplaceAll(pattern, "\\", "/")
	return strings.TrimPrefix(strings.TrimLeft(pattern, "/"), "./")
}
