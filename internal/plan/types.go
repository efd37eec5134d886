// Package plan provides the staged-plan data model and the pure logic for
// walking and mutating it: active-stage/active-story selection, terminal
// transitions, and the invariants that must hold after every mutation.
package plan

// Priority is the relative importance of a Story.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityStandard Priority = "standard"
)

// Story is an atomic unit of work within a Stage. It has no stable id:
// identity is positional within its Stage's Stories slice (see
// ReplaceStory); Title is a display label, not a mutation handle.
type Story struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Priority     Priority `json:"priority"`
	Passes       bool     `json:"passes"`
	IsSkipped    bool     `json:"isSkipped"`
	SkipReason   string   `json:"skipReason,omitempty"`
	IsSubtasked  bool     `json:"isSubtasked,omitempty"`
}

// Terminal reports whether the story has reached a terminal state.
func (s *Story) Terminal() bool {
	return s.Passes || s.IsSkipped
}

// Stage is a named grouping of Stories with a mission statement.
type Stage struct {
	Name        string  `json:"name"`
	Mission     string  `json:"mission"`
	IsCompleted bool    `json:"isCompleted"`
	Stories     []Story `json:"stories"`
}

// Plan is an ordered sequence of Stages.
type Plan struct {
	Stages []Stage `json:"stages"`
}
