package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forgecrew/ralph/internal/store"
)

// agentsLogMaxChars is the tail-truncation window for agents.md.
const agentsLogMaxChars = 3000

const truncationPrefix = "... [Truncated] ...\n"

// maxCodeExcerpts and maxExcerptChars bound how much source ralph inlines
// into the developer prompt.
const maxCodeExcerpts = 15
const maxExcerptChars = 5000

var excerptExtensions = map[string]bool{
	".ts": true, ".js": true, ".css": true, ".html": true,
}

// promptContext is everything prepareContext gathers for the developer and
// reviewer prompts.
type promptContext struct {
	ManualChangeNote string
	AgentsLog        string
	ProgressLog      string
	Tree             string
	CodeExcerpts     string
	Lessons          []store.Lesson
	Strategy         string
}

// prepareContext gathers everything the developer and reviewer prompts
// need: reconcile manual changes, load logs, render the tree, inline a
// bounded sample of source files, reload recent lessons, and pick a
// strategy.
func (p *Pipeline) prepareContext(ctx context.Context) (*promptContext, error) {
	if err := p.reconcileManualChanges(ctx); err != nil {
		return nil, err
	}

	agentsRaw, _ := p.deps.Workspace.ReadFile("agents.md")
	progress, _ := p.deps.Workspace.ReadFile("progress.txt")

	tree, err := p.deps.Workspace.Tree()
	if err != nil {
		return nil, fmt.Errorf("rendering tree: %w", err)
	}

	excerpts, err := p.collectCodeExcerpts()
	if err != nil {
		return nil, fmt.Errorf("collecting code excerpts: %w", err)
	}

	lessons, err := p.deps.Store.GetLessons(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading lessons: %w", err)
	}
	if len(lessons) > 3 {
		lessons = lessons[len(lessons)-3:]
	}

	strategy := "PATCH"
	if p.retryCount > 2 {
		strategy = "REWRITE"
	}

	manualNote := ""
	if p.manualChangeLog != "" {
		manualNote = "User modified: " + p.manualChangeLog
	}

	return &promptContext{
		ManualChangeNote: manualNote,
		AgentsLog:        truncateAgentsLog(agentsRaw),
		ProgressLog:      progress,
		Tree:             tree,
		CodeExcerpts:     excerpts,
		Lessons:          lessons,
		Strategy:         strategy,
	}, nil
}

func truncateAgentsLog(s string) string {
	if len(s) <= agentsLogMaxChars {
		return s
	}
	return truncationPrefix + s[len(s)-agentsLogMaxChars:]
}

// reconcileManualChanges detects and commits edits made to the workspace
// outside the Pipeline between iterations.
func (p *Pipeline) reconcileManualChanges(ctx context.Context) error {
	has, err := p.deps.VCS.HasUncommittedChanges(ctx)
	if err != nil {
		return fmt.Errorf("checking for manual changes: %w", err)
	}
	if !has {
		p.manualChangeLog = ""
		return nil
	}

	status, err := p.deps.VCS.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading status for manual changes: %w", err)
	}
	changed := status.ChangedFiles()

	if err := p.deps.VCS.CommitManualChanges(ctx); err != nil {
		return fmt.Errorf("committing manual changes: %w", err)
	}
	p.manualChangeLog = strings.Join(changed, ", ")

	if containsPackageJSON(changed) {
		go installDependencies(p.deps.Workspace.Root)
	}

	return nil
}

func containsPackageJSON(paths []string) bool {
	for _, path := range paths {
		if filepath.Base(path) == "package.json" {
			return true
		}
	}
	return false
}

// installDependencies is a fire-and-forget best effort; its outcome is
// never observed by the loop.
func installDependencies(root string) {
	if _, err := exec.LookPath("npm"); err != nil {
		return
	}
	cmd := exec.Command("npm", "install")
	cmd.Dir = root
	_ = cmd.Run()
}

// collectCodeExcerpts inlines up to maxCodeExcerpts source files under
// src/ or the project root, skipping test files, each truncated to
// maxExcerptChars.
func (p *Pipeline) collectCodeExcerpts() (string, error) {
	files, err := p.deps.Workspace.ListFiles()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	count := 0
	for _, rel := range files {
		if count >= maxCodeExcerpts {
			break
		}
		if !eligibleForExcerpt(rel) {
			continue
		}
		content, err := p.deps.Workspace.ReadFile(rel)
		if err != nil {
			continue
		}
		if len(content) > maxExcerptChars {
			content = content[:maxExcerptChars]
		}
		fmt.Fprintf(&b, "### %s\n%s\n\n", rel, content)
		count++
	}
	return b.String(), nil
}

func eligibleForExcerpt(rel string) bool {
	if strings.Contains(rel, ".test.") {
		return false
	}
	ext := filepath.Ext(rel)
	if !excerptExtensions[ext] {
		return false
	}
	first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
	return first == "src" || !strings.Contains(rel, string(filepath.Separator))
}
