// Package fsview gives the decision engine read-only access to a
// checked-out repository: file reads with line numbers, a directory
// tree, text search and glob lookup. All paths are confined to the
// view's root.
package fsview

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// View is a read-only window onto one directory tree.
type View struct {
	root string
}

// New returns a view rooted at dir.
func New(dir string) *View {
	return &View{root: dir}
}

// Root returns the directory the view is confined to.
func (v *View) Root() string {
	return v.root
}

// resolve joins path onto the root and rejects escapes.
func (v *View) resolve(path string) (string, error) {
	full := filepath.Join(v.root, path)
	if full != v.root && !strings.HasPrefix(full, v.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes the repository", path)
	}
	return full, nil
}

// ReadFile returns the file's contents with each line prefixed by its
// 0-indexed line number as "N->line". startLine and endLine select an
// inclusive range; endLine < 0 reads to the end of the file.
func (v *View) ReadFile(path string, startLine, endLine int) (string, error) {
	full, err := v.resolve(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("error reading file %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return "", nil
	}

	if endLine < 0 || endLine > len(lines)-1 {
		endLine = len(lines) - 1
	}
	if startLine < 0 {
		startLine = 0
	}
	if startLine > endLine {
		return "", nil
	}

	var sb strings.Builder
	for i := startLine; i <= endLine; i++ {
		fmt.Fprintf(&sb, "%d->%s\n", i, lines[i])
	}
	return sb.String(), nil
}

// Tree returns an indented listing of the whole tree, including hidden
// entries. The .git directory is omitted; its contents are never useful
// to a reviewer.
func (v *View) Tree() (string, error) {
	var sb strings.Builder
	err := filepath.WalkDir(v.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == v.root {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(v.root, path)
		if err != nil {
			return err
		}
		depth := strings.Count(rel, string(filepath.Separator))
		name := d.Name()
		if d.IsDir() {
			name += "/"
		}
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(name)
		sb.WriteString("\n")
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("error listing directory tree: %w", err)
	}
	return sb.String(), nil
}

// SearchOptions controls Search behavior.
type SearchOptions struct {
	FileGlob      string // match against base names, "" or "*" matches all
	CaseSensitive bool
	ContextLines  int
}

// Search scans every file in the view for a regular-expression pattern
// and returns matches as "path:line: text" with optional context lines.
func (v *View) Search(pattern string, opts SearchOptions) (string, error) {
	expr := pattern
	if !opts.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return "", fmt.Errorf("invalid search pattern %q: %w", pattern, err)
	}

	glob := opts.FileGlob
	if glob == "" {
		glob = "*"
	}

	var sb strings.Builder
	matches := 0
	err = filepath.WalkDir(v.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(glob, d.Name()); !ok {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, _ := filepath.Rel(v.root, path)

		lines := strings.Split(string(data), "\n")
		for i, line := range lines {
			if !re.MatchString(line) {
				continue
			}
			matches++
			from := i - opts.ContextLines
			if from < 0 {
				from = 0
			}
			to := i + opts.ContextLines
			if to > len(lines)-1 {
				to = len(lines) - 1
			}
			for j := from; j <= to; j++ {
				sep := "-"
				if j == i {
					sep = ":"
				}
				fmt.Fprintf(&sb, "%s:%d%s %s\n", rel, j+1, sep, lines[j])
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("error searching for %q: %w", pattern, err)
	}

	if matches == 0 {
		return fmt.Sprintf("No matches found for pattern %q", pattern), nil
	}
	return sb.String(), nil
}

// FindFiles returns the relative paths of files whose base name matches
// the glob, sorted for stable output.
func (v *View) FindFiles(glob string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(v.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(glob, d.Name()); ok {
			rel, _ := filepath.Rel(v.root, path)
			found = append(found, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error finding files matching %q: %w", glob, err)
	}
	sort.Strings(found)
	return found, nil
}
