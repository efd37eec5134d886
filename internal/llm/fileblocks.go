package llm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/forgecrew/ralph/internal/workspace"
)

// fileBlockPattern matches "### FILE: path" followed by a fenced code
// block, non-overlapping and left-to-right. The (?s) flag lets "." span
// newlines; both capture groups are lazy so adjacent blocks in the same
// response don't merge into one match.
var fileBlockPattern = regexp.MustCompile("(?s)### FILE: (.*?)\n+```[^\n]*\n(.*?)```")

// FileBlock is one extracted "### FILE: path" block.
type FileBlock struct {
	Path    string
	Content string
}

// ExtractFileBlocks finds every file block in response, in order of
// appearance, regardless of role.
func ExtractFileBlocks(response string) []FileBlock {
	matches := fileBlockPattern.FindAllStringSubmatch(response, -1)
	blocks := make([]FileBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, FileBlock{Path: m[1], Content: m[2]})
	}
	return blocks
}

// ApplyFileBlocks extracts every file block in response and writes each
// one under root, refusing (and logging) any path that escapes root after
// containment resolution. It returns the paths actually written, relative
// to root, in order.
func ApplyFileBlocks(root, response string) ([]string, error) {
	var applied []string
	for _, block := range ExtractFileBlocks(response) {
		abs, err := workspace.Resolve(root, block.Path)
		if err != nil {
			slog.Warn("refusing file block outside root", "path", block.Path, "error", err)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return applied, fmt.Errorf("creating parent directory for %s: %w", block.Path, err)
		}
		if err := os.WriteFile(abs, []byte(block.Content), 0o644); err != nil {
			return applied, fmt.Errorf("writing %s: %w", block.Path, err)
		}
		applied = append(applied, block.Path)
	}
	return applied, nil
}
