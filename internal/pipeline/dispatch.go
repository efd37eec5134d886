package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/forgecrew/ralph/internal/plan"
	"github.com/forgecrew/ralph/internal/store"
)

// dispatch runs one pass of pick_task and, if a story was picked, executes
// it to completion (success, skip, or rollback). It returns cont=true when
// an iteration slot was consumed (the caller should sleep and increment
// iteration), and terminal=true when the run loop should exit entirely
// (plan done, or a critical rollback/fatal error).
func (p *Pipeline) dispatch(ctx context.Context) (cont bool, terminal bool) {
	pl, err := p.readPlan(ctx)
	if err != nil {
		p.fail(ctx, fmt.Sprintf("reading plan: %v", err))
		return false, true
	}

	stage := plan.ActiveStage(pl)
	if stage == nil {
		p.mu.Lock()
		p.status = StatusCompleted
		p.mu.Unlock()
		_ = p.deps.Store.SaveProject(ctx, p.snapshotProject(store.StatusCompleted))
		p.emit(ctx, "completed", map[string]any{"status": StatusCompleted, "iteration": p.iteration})
		return false, true
	}

	story := plan.ActiveStory(stage)
	if story == nil {
		plan.MarkStageCompleteIfDone(stage)
		if err := p.writePlan(ctx, pl); err != nil {
			p.fail(ctx, fmt.Sprintf("persisting stage completion: %v", err))
			return false, true
		}
		return false, false
	}

	if needsSplit(story) {
		if subtasks := p.splitStory(ctx, stage, story); subtasks != nil {
			idx := plan.IndexOfStory(stage, story)
			if err := plan.ReplaceStory(stage, idx, subtasks); err == nil {
				if err := p.writePlan(ctx, pl); err != nil {
					p.fail(ctx, fmt.Sprintf("persisting subtask split: %v", err))
					return false, true
				}
				return false, false
			}
		}
		// split failed or was rejected: fall through and run the original story
	}

	return p.executeStory(ctx, pl, stage, story)
}

// executeStory runs context preparation through the success/failure
// disposition for one story.
func (p *Pipeline) executeStory(ctx context.Context, pl *plan.Plan, stage *plan.Stage, story *plan.Story) (cont bool, terminal bool) {
	p.emit(ctx, "dispatch", map[string]any{"status": StatusRunning, "iteration": p.iteration, "currentTask": story.Title})

	pc, err := p.prepareContext(ctx)
	if err != nil {
		p.fail(ctx, fmt.Sprintf("preparing context: %v", err))
		return false, true
	}

	prompt := buildDeveloperPrompt(stage, story, pc)
	dev, err := p.runDeveloper(ctx, prompt)
	if err != nil {
		p.fail(ctx, fmt.Sprintf("running developer: %v", err))
		return false, true
	}

	dev = p.runSyntaxGate(ctx, prompt, dev)

	isValid, feedback, err := p.runReviewer(ctx, stage, story, dev, pc.Tree)
	if err != nil {
		p.fail(ctx, fmt.Sprintf("running reviewer: %v", err))
		return false, true
	}

	if isValid && p.cfg.ChatEnabled && p.cfg.UseHumanReview {
		approved, err := p.deps.Oracle.Ask(ctx, stage.Name, story.Title)
		if err != nil {
			isValid = false
			feedback = fmt.Sprintf("approval request failed: %v", err)
		} else if !approved {
			isValid = false
			feedback = "USER REJECTED via Telegram Mobile."
		}
	}

	if isValid {
		return p.onStorySuccess(ctx, pl, stage, story)
	}
	return p.onStoryFailure(ctx, pl, stage, story, feedback)
}

// runSyntaxGate runs the syntax gate and, on failure, self-heals once. The
// self-heal's result replaces dev for the remainder of the iteration and
// is not counted against the retry budget.
func (p *Pipeline) runSyntaxGate(ctx context.Context, prompt string, dev *developerResult) *developerResult {
	if p.deps.Syntax == nil {
		return dev
	}

	result, err := p.deps.Syntax.Validate(ctx, p.deps.Workspace.Root)
	if err != nil || result == nil || result.Valid {
		return dev
	}

	healed, healErr := p.runSelfHeal(ctx, prompt, result.File, result.Error)
	if healErr != nil {
		return dev
	}
	return healed
}

func (p *Pipeline) onStorySuccess(ctx context.Context, pl *plan.Plan, stage *plan.Stage, story *plan.Story) (cont bool, terminal bool) {
	plan.MarkStoryPassed(story)
	plan.MarkStageCompleteIfDone(stage)

	p.retryCount = 0
	p.lastError = ""
	p.lastFeedbacks = nil

	if err := p.writePlan(ctx, pl); err != nil {
		p.fail(ctx, fmt.Sprintf("persisting successful story: %v", err))
		return false, true
	}

	message := fmt.Sprintf("Completed: %s - %s", stage.Name, story.Title)
	if err := p.deps.VCS.AddAndCommit(ctx, message); err != nil {
		p.fail(ctx, fmt.Sprintf("committing completed story: %v", err))
		return false, true
	}

	p.emit(ctx, "story_completed", map[string]any{
		"status":      StatusRunning,
		"iteration":   p.iteration,
		"currentTask": story.Title,
		"message":     message,
	})
	return true, false
}

func (p *Pipeline) onStoryFailure(ctx context.Context, pl *plan.Plan, stage *plan.Stage, story *plan.Story, feedback string) (cont bool, terminal bool) {
	p.retryCount++
	p.lastError = feedback
	p.recordFeedback(feedback)

	if len(feedback) > 20 {
		_, err := p.deps.Store.SaveLesson(ctx, store.Lesson{
			Project: p.projectID,
			Stage:   stage.Name,
			Task:    story.Title,
			Error:   feedback,
		})
		if err != nil {
			p.fail(ctx, fmt.Sprintf("saving lesson: %v", err))
			return false, true
		}
	}

	payload := map[string]any{
		"status":      StatusRunning,
		"iteration":   p.iteration,
		"currentTask": story.Title,
		"message":     feedback,
	}
	if p.isConverging() {
		payload["isConverging"] = true
	}

	if p.retryCount >= p.cfg.MaxRetriesPerTask {
		if story.Priority != plan.PriorityCritical {
			plan.MarkStorySkipped(story, feedback)
			p.retryCount = 0
			p.lastFeedbacks = nil
			if err := p.writePlan(ctx, pl); err != nil {
				p.fail(ctx, fmt.Sprintf("persisting skip: %v", err))
				return false, true
			}
			p.emit(ctx, "story_skipped", payload)
			return true, false
		}

		_ = p.deps.VCS.RollbackToLastCommit(ctx)
		p.mu.Lock()
		p.status = StatusError
		p.mu.Unlock()
		_ = p.deps.Store.SaveProject(ctx, p.snapshotProject(store.StatusError))
		p.emit(ctx, "rolled_back", payload)
		return false, true
	}

	p.emit(ctx, "story_retry", payload)

	wait := backoffDuration(p.cfg.BaseSleepTime, p.cfg.BackoffMultiplier, p.retryCount)
	if err := p.deps.Sleeper.Sleep(ctx, wait); err != nil {
		return false, true
	}
	return true, false
}

// backoffDuration computes baseSleepTime × backoffMultiplier^(retryCount-1).
func backoffDuration(base time.Duration, multiplier float64, retryCount int) time.Duration {
	return time.Duration(float64(base) * pow(multiplier, retryCount-1))
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
