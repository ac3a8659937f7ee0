package internal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreFilename lists, in gitignore syntax, photos that are never
// captioned. It lives in the images directory.
const IgnoreFilename = ".memassistignore"

type IgnoreList struct {
	root     string
	patterns []gitignore.Pattern
}

// LoadIgnoreList reads root/.memassistignore. A missing file ignores nothing.
func LoadIgnoreList(root string) (*IgnoreList, error) {
	l := &IgnoreList{root: root}

	f, err := os.Open(filepath.Join(root, IgnoreFilename))
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ignore file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l.patterns = append(l.patterns, gitignore.ParsePattern(line, nil))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file: %w", err)
	}
	return l, nil
}

// Ignored reports whether path, below root, is excluded.
func (l *IgnoreList) Ignored(path string) bool {
	if l == nil || len(l.patterns) == 0 {
		return false
	}
	rel, err := filepath.Rel(l.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return gitignore.NewMatcher(l.patterns).Match(strings.Split(rel, string(filepath.Separator)), false)
}
