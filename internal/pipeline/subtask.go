package pipeline

import (
	"context"
	"fmt"

	"github.com/forgecrew/ralph/internal/llm"
	"github.com/forgecrew/ralph/internal/plan"
)

// subtaskSplitThreshold is the description length that triggers a subtask
// split before execution.
const subtaskSplitThreshold = 300

type subtaskSpec struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// needsSplit reports whether story should be split into subtasks before
// execution.
func needsSplit(story *plan.Story) bool {
	return len(story.Description) > subtaskSplitThreshold && !story.IsSubtasked
}

// splitStory asks the LLM Client for 3-5 sequential subtasks for story and
// converts them into plan.Story values. On any failure it returns a nil
// slice; the caller falls through to executing the original story.
func (p *Pipeline) splitStory(ctx context.Context, stage *plan.Stage, story *plan.Story) []plan.Story {
	prompt := fmt.Sprintf(
		"Split the following task into 3 to 5 sequential subtasks. Respond with a JSON array of objects with fields title, description, priority.\n\nMISSION: %s\nTASK: %s\nDESCRIPTION: %s\nPRIORITY: %s\n",
		stage.Mission, story.Title, story.Description, story.Priority,
	)

	resp, err := p.deps.LLM.Complete(ctx, llm.RoleJSON, prompt)
	if err != nil {
		return nil
	}
	p.recordUsage(resp.Usage)

	specs, err := llm.ParseJSON[[]subtaskSpec](resp.Text)
	if err != nil || len(specs) < 3 || len(specs) > 5 {
		return nil
	}

	subtasks := make([]plan.Story, 0, len(specs))
	for _, s := range specs {
		priority := plan.PriorityStandard
		if s.Priority == string(plan.PriorityCritical) {
			priority = plan.PriorityCritical
		}
		subtasks = append(subtasks, plan.Story{
			Title:       s.Title,
			Description: s.Description,
			Priority:    priority,
			IsSubtasked: true,
		})
	}
	return subtasks
}
