package scan

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// ignoreMatcher evaluates paths against a .gitignore-style pattern set for
// the full-filesystem-walk strategy, where no git index is
// available to ask instead.
type ignoreMatcher struct {
	patterns []ignorePattern

	regexCache sync.Map
}

type ignorePattern struct {
	pattern  string
	negate   bool
	dir      bool
	absolute bool
	compiled *regexp.Regexp
}

func newIgnoreMatcher() *ignoreMatcher {
	return &ignoreMatcher{}
}

// loadGitignore merges patterns from root/.gitignore, if present. A missing
// file is not an error: it simply contributes no patterns.
func (m *ignoreMatcher) loadGitignore(root string) error {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.patterns = append(m.patterns, m.parsePattern(line))
	}
	return scanner.Err()
}

func (m *ignoreMatcher) parsePattern(line string) ignorePattern {
	p := ignorePattern{}
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dir = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.absolute = true
		line = line[1:]
	}
	p.pattern = line

	if strings.ContainsAny(line, "*?[") {
		regex := m.globToRegex(line)
		if cached, ok := m.regexCache.Load(regex); ok {
			p.compiled = cached.(*regexp.Regexp)
		} else if compiled, err := regexp.Compile(regex); err == nil {
			m.regexCache.Store(regex, compiled)
			p.compiled = compiled
		}
	}
	return p
}

func (m *ignoreMatcher) globToRegex(pattern string) string {
	r := regexp.QuoteMeta(pattern)
	r = strings.ReplaceAll(r, `\*`, `.*`)
	r = strings.ReplaceAll(r, `\?`, `.`)
	r = strings.ReplaceAll(r, `\[`, `[`)
	r = strings.ReplaceAll(r, `\]`, `]`)
	return "^" + r + "$"
}

// shouldIgnore reports whether path (relative to root, forward-slashed)
// matches the loaded pattern set. Later patterns override earlier ones, and
// a negated match un-ignores a path, matching gitignore semantics.
func (m *ignoreMatcher) shouldIgnore(path string, isDir bool) bool {
	path = filepath.ToSlash(path)
	ignored := false
	for _, p := range m.patterns {
		if m.matches(p, path, isDir) {
			ignored = !p.negate
		}
	}
	return ignored
}

func (m *ignoreMatcher) matches(p ignorePattern, path string, isDir bool) bool {
	if p.dir {
		if isDir {
			return m.matchOne(p, path)
		}
		return strings.HasPrefix(path, p.pattern+"/")
	}

	if p.absolute {
		return m.matchOne(p, path)
	}

	if m.matchOne(p, path) {
		return true
	}
	parts := strings.Split(path, "/")
	for i := range parts {
		if m.matchOne(p, strings.Join(parts[i:], "/")) {
			return true
		}
	}
	return false
}

func (m *ignoreMatcher) matchOne(p ignorePattern, path string) bool {
	if p.compiled != nil {
		return p.compiled.MatchString(path)
	}
	return p.pattern == path
}
