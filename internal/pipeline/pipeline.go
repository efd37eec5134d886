// Package pipeline implements the per-project build state machine: run one
// deterministic stage/story plan to completion for one project, owned
// exclusively by this Pipeline while running.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forgecrew/ralph/internal/llm"
	"github.com/forgecrew/ralph/internal/store"
	"github.com/forgecrew/ralph/internal/syntax"
	"github.com/forgecrew/ralph/internal/telemetry"
	"github.com/forgecrew/ralph/internal/vcs"
	"github.com/forgecrew/ralph/internal/workspace"
)

// Status is the coarse lifecycle state broadcast alongside every event.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// LLMCompleter is the subset of llm.Client the Pipeline depends on,
// narrowed to an interface so tests can substitute a fake.
type LLMCompleter interface {
	Complete(ctx context.Context, role llm.Role, prompt string) (*llm.Response, error)
}

// VCSOps is the subset of vcs.VCS the Pipeline depends on.
type VCSOps interface {
	HasUncommittedChanges(ctx context.Context) (bool, error)
	CommitManualChanges(ctx context.Context) error
	AddAndCommit(ctx context.Context, message string) error
	RollbackToLastCommit(ctx context.Context) error
	GetStatus(ctx context.Context) (*vcs.Status, error)
}

// ApprovalAsker is the subset of approval.Oracle the Pipeline depends on.
type ApprovalAsker interface {
	Ask(ctx context.Context, stage, task string) (bool, error)
}

// Publisher is the subset of broadcast.Hub the Pipeline depends on.
type Publisher interface {
	Publish(envelope Envelope)
}

// Envelope is one broadcast event: a type, the project it belongs to, and
// a payload carrying whatever fields that event type needs. The payload
// holds no timestamp; broadcast.Hub stamps one on each Message it delivers.
type Envelope struct {
	Type      string
	ProjectID string
	Payload   map[string]any
}

// Sleeper abstracts the pipeline's two suspension points that are pure time
// delay (retry backoff, inter-iteration pause) so tests can run them
// instantly while still observing the requested durations.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper sleeps for real, honoring ctx cancellation.
type RealSleeper struct{}

func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config is the set of per-project tunables snapshotted at Start.
type Config struct {
	MaxIterations     int
	MaxRetriesPerTask int
	BaseSleepTime     time.Duration
	BackoffMultiplier float64
	UseReviewerAgent  bool
	UseHumanReview    bool
	ChatEnabled       bool
}

// Deps bundles every collaborator the Pipeline calls out to. Store and
// Publisher are process-wide and shared across every Pipeline; the rest are
// scoped to this project's workspace.
type Deps struct {
	Store     *store.Store
	Publisher Publisher
	LLM       LLMCompleter
	Syntax    syntax.Validator
	Oracle    ApprovalAsker
	VCS       VCSOps
	Workspace *workspace.Workspace
	Telemetry *telemetry.Tracker
	Sleeper   Sleeper
}

// Pipeline runs one project's plan to completion. A Pipeline is created via
// New, exclusively owns its project's workspace while running, and is
// addressed by the Registry by project id.
type Pipeline struct {
	projectID string
	cfg       Config
	deps      Deps

	mu         sync.Mutex
	running    bool
	status     Status
	iteration  int
	retryCount int
	lastError  string

	manualChangeLog string
	lastFeedbacks   []string // last normalized feedback strings, for convergence detection

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Pipeline for projectID. It does not start the loop.
func New(projectID string, cfg Config, deps Deps) *Pipeline {
	if deps.Sleeper == nil {
		deps.Sleeper = RealSleeper{}
	}
	return &Pipeline{
		projectID: projectID,
		cfg:       cfg,
		deps:      deps,
		status:    StatusIdle,
	}
}

// IsRunning reports whether the loop goroutine is currently active.
func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Status returns the current coarse lifecycle status.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Start launches the run loop in its own goroutine and returns immediately.
// It is an error to Start a Pipeline that is already running.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("pipeline %s: already running", p.projectID)
	}
	p.running = true
	p.status = StatusRunning
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.run(ctx)
	return nil
}

// Stop signals the loop to stop at its next checkpoint and waits for it to
// exit or for ctx to expire. Any pending Approval Oracle rendezvous is
// resolved to reject.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("pipeline %s: not running", p.projectID)
	}
	stopCh := p.stopCh
	doneCh := p.doneCh
	p.mu.Unlock()

	close(stopCh)

	if stopper, ok := p.deps.Oracle.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main loop: it drives the pick_task/prepare_context/
// run_developer/syntax_gate/run_reviewer/human_approval/commit cycle until
// the plan is done, a critical task exhausts its retries, an unconditional
// stop is requested, or maxIterations is reached.
func (p *Pipeline) run(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.running = false
		close(p.doneCh)
		p.mu.Unlock()
	}()

	if err := p.loadPlan(ctx); err != nil {
		p.fail(ctx, fmt.Sprintf("loading plan: %v", err))
		return
	}

	for {
		if p.stopRequested() {
			p.transitionPaused(ctx)
			return
		}
		if p.cfg.MaxIterations > 0 && p.iteration >= p.cfg.MaxIterations {
			p.transitionPaused(ctx)
			return
		}

		cont, terminal := p.dispatch(ctx)
		if terminal {
			return
		}
		if !cont {
			continue // subtask split consumed no iteration slot
		}

		p.iteration++

		if err := p.deps.Sleeper.Sleep(ctx, p.cfg.BaseSleepTime); err != nil {
			p.transitionPaused(ctx)
			return
		}
	}
}

func (p *Pipeline) stopRequested() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

func (p *Pipeline) transitionPaused(ctx context.Context) {
	p.mu.Lock()
	p.status = StatusPaused
	p.mu.Unlock()
	p.emit(ctx, "paused", map[string]any{"status": StatusPaused, "iteration": p.iteration})
}

func (p *Pipeline) fail(ctx context.Context, message string) {
	p.mu.Lock()
	p.status = StatusError
	p.lastError = message
	p.mu.Unlock()
	_ = p.deps.Store.SaveProject(ctx, p.snapshotProject(store.StatusError))
	p.emit(ctx, "error", map[string]any{"status": StatusError, "message": message})
}

func (p *Pipeline) emit(ctx context.Context, eventType string, payload map[string]any) {
	if p.deps.Publisher == nil {
		return
	}
	p.deps.Publisher.Publish(Envelope{Type: eventType, ProjectID: p.projectID, Payload: payload})
}

func (p *Pipeline) snapshotProject(status store.ProjectStatus) store.Project {
	proj, err := p.deps.Store.GetProject(context.Background(), p.projectID)
	if err != nil {
		proj = store.Project{ID: p.projectID}
	}
	proj.Status = status
	proj.Iteration = p.iteration
	proj.LastError = p.lastError
	return proj
}

func normalizeFeedback(feedback string) string {
	fields := make([]byte, 0, len(feedback))
	prevSpace := false
	for i := 0; i < len(feedback); i++ {
		c := feedback[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			if !prevSpace {
				fields = append(fields, ' ')
				prevSpace = true
			}
			continue
		}
		fields = append(fields, c)
		prevSpace = false
	}
	s := string(fields)
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}

// isConverging reports whether the last three recorded failures carry the
// same normalized feedback, an advisory signal only — it never overrides
// the retry/skip/rollback disposition.
func (p *Pipeline) isConverging() bool {
	if len(p.lastFeedbacks) < 3 {
		return false
	}
	n := len(p.lastFeedbacks)
	a, b, c := p.lastFeedbacks[n-3], p.lastFeedbacks[n-2], p.lastFeedbacks[n-1]
	return a == b && b == c
}

func (p *Pipeline) recordFeedback(feedback string) {
	p.lastFeedbacks = append(p.lastFeedbacks, normalizeFeedback(feedback))
	if len(p.lastFeedbacks) > 3 {
		p.lastFeedbacks = p.lastFeedbacks[len(p.lastFeedbacks)-3:]
	}
}
