package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgecrew/ralph/internal/plan"
)

// PRDFile is the on-disk path of the plan, the per-project source of truth
// for the active run. The project init handler materialises it before the
// first commit; if it is still missing when the pipeline loads the plan,
// readPlan seeds it from the Store's copy.
const PRDFile = "plans/prd.json"

// readPlan reads the plan from disk, seeding it from the Store's copy on
// first run if no plans/prd.json exists yet.
func (p *Pipeline) readPlan(ctx context.Context) (*plan.Plan, error) {
	raw, err := p.deps.Workspace.ReadFile(PRDFile)
	if err != nil {
		proj, projErr := p.deps.Store.GetProject(ctx, p.projectID)
		if projErr != nil {
			return nil, fmt.Errorf("reading plan: no %s and no stored project: %w", PRDFile, projErr)
		}
		pl := proj.Plan
		if writeErr := p.writePlan(ctx, &pl); writeErr != nil {
			return nil, writeErr
		}
		return &pl, nil
	}

	var pl plan.Plan
	if err := json.Unmarshal([]byte(raw), &pl); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", PRDFile, err)
	}
	return &pl, nil
}

// writePlan persists pl to both PRDFile and the Store in the same call, so
// the two never observe different values across a checkpoint.
func (p *Pipeline) writePlan(ctx context.Context, pl *plan.Plan) error {
	data, err := json.MarshalIndent(pl, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	if err := p.deps.Workspace.WriteFile(PRDFile, string(data)); err != nil {
		return fmt.Errorf("writing %s: %w", PRDFile, err)
	}
	if err := p.deps.Store.UpdatePlan(ctx, p.projectID, *pl); err != nil {
		return fmt.Errorf("persisting plan to store: %w", err)
	}
	return nil
}

func (p *Pipeline) loadPlan(ctx context.Context) error {
	_, err := p.readPlan(ctx)
	return err
}
