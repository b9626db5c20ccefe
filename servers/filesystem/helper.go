package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/MegaGrindStone/go-jsonrpc"
)

var errAccessDenied = errors.New("access denied")

// resolve validates a caller supplied path and turns a rejection into an invalid params error.
func (s Server) resolve(requested string) (string, error) {
	p, err := validatePath(requested, s.roots)
	if err != nil {
		if errors.Is(err, errAccessDenied) {
			return "", jsonrpc.InvalidParamsError(err.Error(), nil)
		}
		return "", err
	}
	return p, nil
}

// validatePath returns the real location of requested if it lies inside one of roots. A path that
// does not exist yet is accepted when its parent directory does and is inside roots.
func validatePath(requested string, roots []string) (string, error) {
	p := filepath.FromSlash(requested)
	if !filepath.IsAbs(p) {
		p = filepath.Join(roots[0], p)
	}
	p = filepath.Clean(p)

	if !withinRoots(p, roots) {
		return "", fmt.Errorf("%w: path %s is outside allowed directories %s",
			errAccessDenied, requested, strings.Join(roots, ", "))
	}

	realPath, err := filepath.EvalSymlinks(p)
	if err == nil {
		if !withinRoots(realPath, roots) {
			return "", fmt.Errorf("%w: real path %s is outside allowed directories %s",
				errAccessDenied, realPath, strings.Join(roots, ", "))
		}
		return realPath, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to resolve path %s: %w", requested, err)
	}

	parent := filepath.Dir(p)
	realParent, err := filepath.EvalSymlinks(parent)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("parent directory %s does not exist", parent)
		}
		return "", fmt.Errorf("failed to resolve parent directory %s: %w", parent, err)
	}
	if !withinRoots(realParent, roots) {
		return "", fmt.Errorf("%w: parent directory %s is outside allowed directories %s",
			errAccessDenied, parent, strings.Join(roots, ", "))
	}
	return filepath.Join(realParent, filepath.Base(p)), nil
}

func withinRoots(path string, roots []string) bool {
	return slices.ContainsFunc(roots, func(root string) bool { return isSubpath(path, root) })
}

func isSubpath(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func normalizeLineEndings(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

func unifiedDiff(original, modified, name string) string {
	dmp := diffmatchpatch.New()

	original = normalizeLineEndings(original)
	modified = normalizeLineEndings(modified)
	patches := dmp.PatchMake(original, dmp.DiffMain(original, modified, true))

	var diff strings.Builder
	fmt.Fprintf(&diff, "--- %s (original)\n", name)
	fmt.Fprintf(&diff, "+++ %s (modified)\n", name)
	diff.WriteString(dmp.PatchToText(patches))
	return diff.String()
}

// applyEdits applies edits in order. Each edit first looks for an exact match of OldText and then
// for a block of lines equal to it once surrounding whitespace is ignored, in which case the
// replacement is re-indented to the matched block.
func applyEdits(content string, edits []EditOperation) (string, error) {
	modified := normalizeLineEndings(content)

	for i, edit := range edits {
		oldText := normalizeLineEndings(edit.OldText)
		newText := normalizeLineEndings(edit.NewText)

		if oldText != "" && strings.Contains(modified, oldText) {
			modified = strings.Replace(modified, oldText, newText, 1)
			continue
		}

		next, ok := replaceLineBlock(modified, oldText, newText)
		if !ok {
			return "", fmt.Errorf("edit %d: could not find a match for:\n%s", i, edit.OldText)
		}
		modified = next
	}

	return modified, nil
}

func replaceLineBlock(content, oldText, newText string) (string, bool) {
	if strings.TrimSpace(oldText) == "" {
		return content, false
	}

	oldLines := strings.Split(oldText, "\n")
	lines := strings.Split(content, "\n")

	for start := 0; start+len(oldLines) <= len(lines); start++ {
		if !linesMatch(lines[start:start+len(oldLines)], oldLines) {
			continue
		}
		indent := leadingWhitespace(lines[start])
		replacement := reindent(indent, oldLines, strings.Split(newText, "\n"))

		result := make([]string, 0, len(lines)-len(oldLines)+len(replacement))
		result = append(result, lines[:start]...)
		result = append(result, replacement...)
		result = append(result, lines[start+len(oldLines):]...)
		return strings.Join(result, "\n"), true
	}

	return content, false
}

func linesMatch(block, oldLines []string) bool {
	for i, line := range oldLines {
		if strings.TrimSpace(line) != strings.TrimSpace(block[i]) {
			return false
		}
	}
	return true
}

// reindent shifts newLines so the first one starts at indent and the rest keep their indentation
// relative to the matching old line.
func reindent(indent string, oldLines, newLines []string) []string {
	result := make([]string, 0, len(newLines))

	for i, line := range newLines {
		trimmed := strings.TrimLeft(line, " \t")
		switch {
		case i == 0:
			result = append(result, indent+trimmed)
		case strings.TrimSpace(line) == "":
			result = append(result, indent)
		default:
			oldIndent := ""
			if i < len(oldLines) {
				oldIndent = leadingWhitespace(oldLines[i])
			}
			extra := max(0, len(leadingWhitespace(line))-len(oldIndent))
			result = append(result, indent+strings.Repeat(" ", extra)+trimmed)
		}
	}

	return result
}

func leadingWhitespace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

func (s Server) buildTree(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	tree := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}

		node := Entry{Name: entry.Name(), Type: entryTypeFile}
		if entry.IsDir() {
			sub, err := validatePath(filepath.Join(dir, entry.Name()), s.roots)
			if err != nil {
				continue
			}
			children, err := s.buildTree(ctx, sub)
			if err != nil {
				return nil, err
			}
			node.Type = entryTypeDirectory
			node.Children = children
		}
		tree = append(tree, node)
	}

	return tree, nil
}

// compileExcludes turns exclude patterns into matchers. A pattern without glob syntax excludes any
// entry of that name, at any depth.
func compileExcludes(patterns []string) ([]glob.Glob, error) {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[{") {
			pattern = "{" + pattern + ",**/" + pattern + "}"
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		matchers = append(matchers, g)
	}
	return matchers, nil
}

// search walks root and returns every entry whose name contains pattern, case-insensitively.
// Excluded directories are not descended into.
func (s Server) search(ctx context.Context, root, pattern string, excludes []glob.Glob) ([]string, error) {
	needle := strings.ToLower(pattern)
	var results []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if slices.ContainsFunc(excludes, func(g glob.Glob) bool { return g.Match(rel) }) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if _, err := validatePath(path, s.roots); err != nil {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.Contains(strings.ToLower(d.Name()), needle) {
			results = append(results, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}
