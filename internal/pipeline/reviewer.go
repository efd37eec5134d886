package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgecrew/ralph/internal/llm"
	"github.com/forgecrew/ralph/internal/plan"
)

const reviewerTreeMaxChars = 1000

// buildReviewerPrompt assembles the role=REVIEWER prompt: mission, story
// title, the developer's raw result, and a compact tree.
func buildReviewerPrompt(stage *plan.Stage, story *plan.Story, devResult string, tree string) string {
	compactTree := tree
	if len(compactTree) > reviewerTreeMaxChars {
		compactTree = truncationPrefix + compactTree[len(compactTree)-reviewerTreeMaxChars:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MISSION: %s\n", stage.Mission)
	fmt.Fprintf(&b, "TASK: %s\n\n", story.Title)
	fmt.Fprintf(&b, "DEVELOPER RESULT:\n%s\n\n", devResult)
	fmt.Fprintf(&b, "WORKSPACE TREE:\n%s\n", compactTree)
	return b.String()
}

// runReviewer invokes the LLM Client with the reviewer prompt when
// useReviewerAgent is set; otherwise validity falls back to whether the
// developer's own response carries PROMISE_MET.
func (p *Pipeline) runReviewer(ctx context.Context, stage *plan.Stage, story *plan.Story, dev *developerResult, tree string) (bool, string, error) {
	if !p.cfg.UseReviewerAgent {
		return strings.Contains(dev.Raw, "PROMISE_MET"), dev.Raw, nil
	}

	prompt := buildReviewerPrompt(stage, story, dev.Raw, tree)
	resp, err := p.deps.LLM.Complete(ctx, llm.RoleReviewer, prompt)
	if err != nil {
		return false, fmt.Sprintf("reviewer call failed: %v", err), nil
	}
	p.recordUsage(resp.Usage)

	applied, err := llm.ApplyFileBlocks(p.deps.Workspace.Root, resp.Text)
	if err == nil && len(applied) > 0 {
		p.writeRawLog("reviewer", resp.Text)
	}

	isValid := strings.Contains(resp.Text, "REVIEW_PASSED")
	return isValid, resp.Text, nil
}
