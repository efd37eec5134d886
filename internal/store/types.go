// Package store provides a durable, atomic JSON document store for
// projects, global settings, and the lessons-learned log.
package store

import (
	"time"

	"github.com/forgecrew/ralph/internal/plan"
)

// ProjectStatus is the lifecycle state of a Project.
type ProjectStatus string

const (
	StatusCreated     ProjectStatus = "created"
	StatusInitialized ProjectStatus = "initialized"
	StatusRunning     ProjectStatus = "running"
	StatusPaused      ProjectStatus = "paused"
	StatusCompleted   ProjectStatus = "completed"
	StatusError       ProjectStatus = "error"
)

// Project is a single orchestrated build, identified by a human-chosen id.
type Project struct {
	ID             string        `json:"id"`
	RootPath       string        `json:"rootPath"`
	Plan           plan.Plan     `json:"plan"`
	Status         ProjectStatus `json:"status"`
	Iteration      int           `json:"iteration"`
	UseHumanReview bool          `json:"useHumanReview"`
	LastError      string        `json:"lastError,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Lesson is a record of a past failure, fed back into future prompts.
type Lesson struct {
	ID        int64     `json:"id"`
	Project   string    `json:"project"`
	Stage     string    `json:"stage"`
	Task      string    `json:"task"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// MaxLessonLen is the cap on a Lesson's Error field.
const MaxLessonLen = 500

// LessonFIFOCap is the maximum number of lessons retained globally.
const LessonFIFOCap = 50

// ChatSettings configures the optional chat-bridge integration.
type ChatSettings struct {
	Enabled        bool   `json:"enabled"`
	Token          string `json:"token"`
	ChatID         string `json:"chatId"`
	UseHumanReview bool   `json:"useHumanReview"`
}

// LLMInfo is an informational snapshot of the LLM Client's active
// configuration, taken once from environment variables at process start
// and surfaced on Settings for dashboards. APIKey is redacted to its last
// four characters; the full key never leaves the process.
type LLMInfo struct {
	Provider  string            `json:"provider"`
	Model     string            `json:"model"`
	APIKey    string            `json:"apiKey"`
	Endpoints map[string]string `json:"endpoints"`
}

// Settings holds process-wide tunables, overridable via /api/settings.
type Settings struct {
	MaxIterations     int          `json:"maxIterations"`
	MaxRetriesPerTask int          `json:"maxRetriesPerTask"`
	BaseSleepTime     int          `json:"baseSleepTime"` // milliseconds
	BackoffMultiplier float64      `json:"backoffMultiplier"`
	UseReviewerAgent  bool         `json:"useReviewerAgent"`
	AutoTest          bool         `json:"autoTest"`
	Chat              ChatSettings `json:"chat"`

	// LLM is set once at startup via SetLLMInfo and never accepted from a
	// client; UpdateSettings preserves whatever value is already stored.
	LLM LLMInfo `json:"llm"`

	// CodexPath is a legacy setting normalised on load (see migrate in store.go).
	CodexPath string `json:"codexPath,omitempty"`
}

// DefaultSettings returns the built-in defaults applied to a fresh store.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:     0, // 0 = unlimited
		MaxRetriesPerTask: 3,
		BaseSleepTime:     5000,
		BackoffMultiplier: 2.0,
		UseReviewerAgent:  true,
		AutoTest:          true,
		Chat: ChatSettings{
			Enabled:        false,
			UseHumanReview: false,
		},
	}
}

// Document is the single JSON document persisted at data/db.json.
type Document struct {
	Projects  []Project `json:"projects"`
	Lessons   []Lesson  `json:"lessons"`
	Settings  Settings  `json:"settings"`
	NextLesID int64     `json:"nextLessonId"`
}

// allowedSettingsKeys is the closed set of keys accepted by UpdateSettings'
// partial-update helper. Unknown keys are rejected (spec §3).
var allowedSettingsKeys = map[string]struct{}{
	"maxIterations":     {},
	"maxRetriesPerTask": {},
	"baseSleepTime":     {},
	"backoffMultiplier": {},
	"useReviewerAgent":  {},
	"autoTest":          {},
	"chat":              {},
}
