package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forgecrew/ralph/internal/llm"
	"github.com/forgecrew/ralph/internal/plan"
	"github.com/forgecrew/ralph/internal/telemetry"
)

// developerResult is what runDeveloper hands back to the rest of the
// iteration: the raw response text (reviewer and PROMISE_MET checks both
// need it) and the paths the LLM Client actually wrote.
type developerResult struct {
	Prompt  string
	Raw     string
	Applied []string
}

// buildDeveloperPrompt assembles the role=DEVELOPER prompt: mission, task,
// priority, strategy, manual-change note, last-3 lessons as "FAILURES TO
// AVOID", the agent log, the collected code excerpts, and the tree.
// enrich() in internal/llm appends the file-block/PROMISE_MET contract on
// top of this.
func buildDeveloperPrompt(stage *plan.Stage, story *plan.Story, pc *promptContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "MISSION: %s\n", stage.Mission)
	fmt.Fprintf(&b, "TASK: %s\n", story.Title)
	fmt.Fprintf(&b, "DESCRIPTION: %s\n", story.Description)
	fmt.Fprintf(&b, "PRIORITY: %s\n", story.Priority)
	fmt.Fprintf(&b, "STRATEGY: %s\n\n", pc.Strategy)

	if pc.ManualChangeNote != "" {
		fmt.Fprintf(&b, "%s\n\n", pc.ManualChangeNote)
	}

	if len(pc.Lessons) > 0 {
		b.WriteString("FAILURES TO AVOID:\n")
		for _, lesson := range pc.Lessons {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", lesson.Stage, lesson.Task, lesson.Error)
		}
		b.WriteString("\n")
	}

	if pc.AgentsLog != "" {
		fmt.Fprintf(&b, "AGENT LOG:\n%s\n\n", pc.AgentsLog)
	}

	if pc.CodeExcerpts != "" {
		fmt.Fprintf(&b, "CODE:\n%s\n", pc.CodeExcerpts)
	}

	fmt.Fprintf(&b, "WORKSPACE TREE:\n%s\n", pc.Tree)

	return b.String()
}

// runDeveloper invokes the LLM Client with the developer prompt, applies
// any file blocks in the response, writes the raw response under
// .ralph/logs/, and appends a summary-only entry to agents.md.
func (p *Pipeline) runDeveloper(ctx context.Context, prompt string) (*developerResult, error) {
	resp, err := p.deps.LLM.Complete(ctx, llm.RoleDeveloper, prompt)
	if err != nil {
		return nil, fmt.Errorf("developer call: %w", err)
	}
	p.recordUsage(resp.Usage)

	applied, err := llm.ApplyFileBlocks(p.deps.Workspace.Root, resp.Text)
	if err != nil {
		return nil, fmt.Errorf("applying developer file blocks: %w", err)
	}

	logPath := p.writeRawLog("developer", resp.Text)
	p.appendAgentsLog("developer", logPath, resp.Text)

	return &developerResult{Prompt: prompt, Raw: resp.Text, Applied: applied}, nil
}

// runSelfHeal re-invokes the developer once after a syntax-gate failure:
// the original prompt plus a SELF-HEALING block naming the offending file
// and error. This does not consume the retry budget.
func (p *Pipeline) runSelfHeal(ctx context.Context, originalPrompt, file, syntaxErr string) (*developerResult, error) {
	prompt := fmt.Sprintf("%s\n\nSELF-HEALING: syntax check failed for %s:\n%s\nFix this file and resubmit it.\n", originalPrompt, file, syntaxErr)

	resp, err := p.deps.LLM.Complete(ctx, llm.RoleDeveloper, prompt)
	if err != nil {
		return nil, fmt.Errorf("self-heal call: %w", err)
	}
	p.recordUsage(resp.Usage)

	applied, err := llm.ApplyFileBlocks(p.deps.Workspace.Root, resp.Text)
	if err != nil {
		return nil, fmt.Errorf("applying self-heal file blocks: %w", err)
	}

	logPath := p.writeRawLog("self-heal", resp.Text)
	p.appendAgentsLog("self-heal", logPath, resp.Text)

	return &developerResult{Prompt: prompt, Raw: resp.Text, Applied: applied}, nil
}

var logCounter int64

// writeRawLog writes raw under .ralph/logs/ with a monotonically-unique
// timestamp+role filename, returning the path written.
func (p *Pipeline) writeRawLog(role, raw string) string {
	logCounter++
	rel := fmt.Sprintf(".ralph/logs/%d-%d-%s.log", time.Now().UnixNano(), logCounter, role)
	if err := p.deps.Workspace.WriteFile(rel, raw); err != nil {
		return ""
	}
	return rel
}

// appendAgentsLog appends a summary-only entry plus a pointer to the raw
// log rather than the full response text, keeping agents.md compact.
func (p *Pipeline) appendAgentsLog(role, logPath, raw string) {
	summary := extractSummary(raw)

	existing, _ := p.deps.Workspace.ReadFile("agents.md")
	var entry strings.Builder
	if existing != "" {
		entry.WriteString(existing)
		entry.WriteString("\n")
	}
	fmt.Fprintf(&entry, "## %s\n%s\n", role, summary)
	if logPath != "" {
		fmt.Fprintf(&entry, "(see %s)\n", logPath)
	}

	_ = p.deps.Workspace.WriteFile("agents.md", entry.String())
}

func (p *Pipeline) recordUsage(u llm.Usage) {
	if p.deps.Telemetry == nil {
		return
	}
	p.deps.Telemetry.RecordUsage(p.projectID, telemetry.Usage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		Latency:      u.Latency,
	})
}
