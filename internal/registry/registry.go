// Package registry owns the process-wide map from project id to running
// Pipeline, one Pipeline per project sharing a Store, an LLM Client, and a
// broadcast Hub.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forgecrew/ralph/internal/approval"
	"github.com/forgecrew/ralph/internal/broadcast"
	"github.com/forgecrew/ralph/internal/llm"
	"github.com/forgecrew/ralph/internal/pipeline"
	"github.com/forgecrew/ralph/internal/store"
	"github.com/forgecrew/ralph/internal/syntax"
	"github.com/forgecrew/ralph/internal/telemetry"
	"github.com/forgecrew/ralph/internal/vcs"
	"github.com/forgecrew/ralph/internal/workspace"
)

// oracleBinder is implemented by Bridges that need a callback path into the
// Oracle waiting on their decisions (chatbridge.PollBridge). Detected with a
// type assertion so Factory.Bridge can stay typed as the narrower
// approval.Bridge.
type oracleBinder interface {
	BindOracle(*approval.Oracle)
}

// Factory bundles the process-wide collaborators every Pipeline the
// Registry creates shares. Fields scoped to a single project (workspace,
// VCS, approval oracle) are built fresh per project inside GetOrCreate.
type Factory struct {
	Store     *store.Store
	Hub       *broadcast.Hub
	LLM       *llm.Client
	Syntax    syntax.Validator
	Bridge    approval.Bridge
	Telemetry *telemetry.Tracker
}

// Registry is the process-wide map[string]*pipeline.Pipeline, guarded by a
// mutex.
type Registry struct {
	mu        sync.Mutex
	pipelines map[string]*pipeline.Pipeline
	factory   Factory
}

// New returns an empty Registry.
func New(factory Factory) *Registry {
	return &Registry{
		pipelines: make(map[string]*pipeline.Pipeline),
		factory:   factory,
	}
}

// GetOrCreate returns the Pipeline for projectID, constructing one (and its
// project-scoped Workspace/VCS/Oracle) from the Store's copy of the project
// and current Settings if none exists yet.
func (r *Registry) GetOrCreate(ctx context.Context, projectID string) (*pipeline.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pipelines[projectID]; ok {
		return p, nil
	}

	proj, err := r.factory.Store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", projectID, err)
	}

	settings, err := r.factory.Store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	ws := workspace.New(proj.RootPath)
	vcsClient, err := vcs.New(ctx, proj.RootPath)
	if err != nil {
		return nil, fmt.Errorf("opening vcs for %s: %w", projectID, err)
	}
	if err := vcsClient.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing vcs for %s: %w", projectID, err)
	}

	oracle := approval.New(r.factory.Bridge)
	if binder, ok := r.factory.Bridge.(oracleBinder); ok {
		binder.BindOracle(oracle)
	}

	cfg := pipeline.Config{
		MaxIterations:     settings.MaxIterations,
		MaxRetriesPerTask: settings.MaxRetriesPerTask,
		BaseSleepTime:     time.Duration(settings.BaseSleepTime) * time.Millisecond,
		BackoffMultiplier: settings.BackoffMultiplier,
		UseReviewerAgent:  settings.UseReviewerAgent,
		UseHumanReview:    proj.UseHumanReview,
		ChatEnabled:       settings.Chat.Enabled,
	}

	deps := pipeline.Deps{
		Store:     r.factory.Store,
		Publisher: r.factory.Hub,
		LLM:       r.factory.LLM,
		Syntax:    r.factory.Syntax,
		Oracle:    oracle,
		VCS:       vcsClient,
		Workspace: ws,
		Telemetry: r.factory.Telemetry,
	}

	p := pipeline.New(projectID, cfg, deps)
	r.pipelines[projectID] = p
	return p, nil
}

// SetBridge swaps the approval.Bridge future Pipelines are built with,
// letting a settings replace re-init the chat bridge without restarting
// the process. Pipelines already running keep the Oracle (and Bridge)
// they were created with.
func (r *Registry) SetBridge(bridge approval.Bridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory.Bridge = bridge
}

// Get returns the Pipeline for projectID if one has already been created,
// without constructing it.
func (r *Registry) Get(projectID string) (*pipeline.Pipeline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipelines[projectID]
	return p, ok
}

// ResumeOnStart scans the Store for projects left in running status by a
// prior process and restarts their Pipelines, cleaning up orphaned running
// state left behind by an unclean shutdown.
func (r *Registry) ResumeOnStart(ctx context.Context) error {
	projects, err := r.factory.Store.GetProjects(ctx)
	if err != nil {
		return fmt.Errorf("listing projects to resume: %w", err)
	}

	for _, proj := range projects {
		if proj.Status != store.StatusRunning {
			continue
		}

		p, err := r.GetOrCreate(ctx, proj.ID)
		if err != nil {
			continue
		}
		_ = p.Start(ctx)
	}
	return nil
}
