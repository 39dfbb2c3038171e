package dirsummary

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// alwaysSkip names are never walked, hidden or not.
var alwaysSkip = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// ignoreSet collects .gitignore patterns as the walk descends. Patterns
// from a nested file are scoped to its directory and, being appended
// later, take precedence over those from its parents.
type ignoreSet struct {
	patterns []gitignore.Pattern
}

// load reads dir/.gitignore, if any. domain is dir relative to the walk
// root, split on "/"; nil for the root itself.
func (s *ignoreSet) load(dir string, domain []string) {
	f, err := os.Open(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s.patterns = append(s.patterns, gitignore.ParsePattern(line, domain))
	}
}

// match reports whether rel (slash-separated, relative to the walk root)
// is ignored. The last matching pattern wins, so "!pat" re-includes.
func (s *ignoreSet) match(rel string, isDir bool) bool {
	if len(s.patterns) == 0 {
		return false
	}
	return gitignore.NewMatcher(s.patterns).Match(splitRel(rel), isDir)
}

func splitRel(rel string) []string {
	if rel == "" || rel == "." {
		return nil
	}
	return strings.Split(rel, "/")
}
