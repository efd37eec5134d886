package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/forgecrew/ralph/internal/plan"
)

// Store is the atomic JSON document store for everything ralph persists:
// projects, settings, and the lessons-learned log. All mutations are
// serialized through a single writer goroutine so concurrent Pipelines
// never interleave a read-modify-write cycle against the same file.
type Store struct {
	path string

	mu  sync.RWMutex
	doc Document

	ops chan func()
	wg  sync.WaitGroup
}

// Open loads the document at path, creating it with defaults if it does not
// yet exist, and starts the store's single writer goroutine.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		ops:  make(chan func()),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

func (s *Store) run() {
	defer s.wg.Done()
	for op := range s.ops {
		op()
	}
}

// Close stops the writer goroutine. Pending operations are drained first.
func (s *Store) Close() {
	close(s.ops)
	s.wg.Wait()
}

// submit runs fn on the single writer goroutine and waits for it to finish,
// propagating any error it returns.
func (s *Store) submit(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	op := func() {
		done <- fn()
	}
	select {
	case s.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.doc = Document{Settings: DefaultSettings(), NextLesID: 1}
		return s.persist()
	}
	if err != nil {
		return fmt.Errorf("reading store file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing store file: %w", err)
	}
	migrate(&doc)
	s.doc = doc
	return nil
}

// migrate normalizes documents written by older versions of ralph.
func migrate(doc *Document) {
	if doc.Settings.CodexPath == "npx codex-cli" {
		doc.Settings.CodexPath = "codex"
	}
	if doc.NextLesID == 0 {
		var max int64
		for _, l := range doc.Lessons {
			if l.ID > max {
				max = l.ID
			}
		}
		doc.NextLesID = max + 1
	}
}

// persist writes the in-memory document to disk atomically via a temp file
// plus rename, so a crash mid-write never corrupts the previous document.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing store document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("committing store file: %w", err)
	}

	return nil
}

// GetProjects returns a snapshot of every project, ordered by ID.
func (s *Store) GetProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	err := s.submit(ctx, func() error {
		out = make([]Project, len(s.doc.Projects))
		copy(out, s.doc.Projects)
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

// GetProject returns a snapshot of the project with the given id.
func (s *Store) GetProject(ctx context.Context, id string) (Project, error) {
	var out Project
	err := s.submit(ctx, func() error {
		for _, p := range s.doc.Projects {
			if p.ID == id {
				out = p
				return nil
			}
		}
		return fmt.Errorf("project %q not found", id)
	})
	return out, err
}

// SaveProject inserts p if no project with its ID exists yet, or otherwise
// replaces the existing project with p, keeping only the stored CreatedAt;
// fields left zero in p are not filled in from the stored project.
// UpdatedAt is always bumped.
func (s *Store) SaveProject(ctx context.Context, p Project) error {
	return s.submit(ctx, func() error {
		now := time.Now()
		for i := range s.doc.Projects {
			if s.doc.Projects[i].ID == p.ID {
				p.CreatedAt = s.doc.Projects[i].CreatedAt
				p.UpdatedAt = now
				s.doc.Projects[i] = p
				return s.persist()
			}
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		s.doc.Projects = append(s.doc.Projects, p)
		return s.persist()
	})
}

// UpdatePlan replaces the plan for project id and bumps its UpdatedAt.
func (s *Store) UpdatePlan(ctx context.Context, id string, p plan.Plan) error {
	return s.submit(ctx, func() error {
		for i := range s.doc.Projects {
			if s.doc.Projects[i].ID == id {
				s.doc.Projects[i].Plan = p
				s.doc.Projects[i].UpdatedAt = time.Now()
				return s.persist()
			}
		}
		return fmt.Errorf("project %q not found", id)
	})
}

// GetSettings returns a snapshot of the current settings.
func (s *Store) GetSettings(ctx context.Context) (Settings, error) {
	var out Settings
	err := s.submit(ctx, func() error {
		out = s.doc.Settings
		return nil
	})
	return out, err
}

// UpdateSettings replaces the settings document wholesale. Unlike a partial
// patch, the caller is expected to have read-modify-written a full Settings
// value; this persists it as given, without validating any field. LLM is never taken from the
// incoming value: it can only change via SetLLMInfo at startup.
func (s *Store) UpdateSettings(ctx context.Context, settings Settings) error {
	return s.submit(ctx, func() error {
		settings.LLM = s.doc.Settings.LLM
		s.doc.Settings = settings
		return s.persist()
	})
}

// SetLLMInfo records the LLM Client's active configuration for display,
// called once at startup after the environment snapshot is loaded. It
// never runs as part of an /api/settings request.
func (s *Store) SetLLMInfo(ctx context.Context, info LLMInfo) error {
	return s.submit(ctx, func() error {
		s.doc.Settings.LLM = info
		return s.persist()
	})
}

// UpdateSettingsPatch applies a partial update described by raw JSON keys,
// rejecting any key outside the closed allowedSettingsKeys set.
func (s *Store) UpdateSettingsPatch(ctx context.Context, patch map[string]json.RawMessage) error {
	for key := range patch {
		if _, ok := allowedSettingsKeys[key]; !ok {
			return fmt.Errorf("unknown settings key %q", key)
		}
	}

	return s.submit(ctx, func() error {
		data, err := json.Marshal(s.doc.Settings)
		if err != nil {
			return fmt.Errorf("re-marshaling settings: %w", err)
		}

		var merged map[string]json.RawMessage
		if err := json.Unmarshal(data, &merged); err != nil {
			return fmt.Errorf("re-unmarshaling settings: %w", err)
		}
		for k, v := range patch {
			merged[k] = v
		}

		mergedData, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("marshaling merged settings: %w", err)
		}

		var updated Settings
		if err := json.Unmarshal(mergedData, &updated); err != nil {
			return fmt.Errorf("unmarshaling merged settings: %w", err)
		}

		s.doc.Settings = updated
		return s.persist()
	})
}

// GetLessons returns a snapshot of every recorded lesson, oldest first.
func (s *Store) GetLessons(ctx context.Context) ([]Lesson, error) {
	var out []Lesson
	err := s.submit(ctx, func() error {
		out = make([]Lesson, len(s.doc.Lessons))
		copy(out, s.doc.Lessons)
		return nil
	})
	return out, err
}

// SaveLesson appends a lesson, truncating its Error field to MaxLessonLen and
// evicting the oldest entries once LessonFIFOCap is exceeded.
func (s *Store) SaveLesson(ctx context.Context, l Lesson) (Lesson, error) {
	err := s.submit(ctx, func() error {
		if len(l.Error) > MaxLessonLen {
			l.Error = l.Error[:MaxLessonLen]
		}
		l.ID = s.doc.NextLesID
		s.doc.NextLesID++
		if l.Timestamp.IsZero() {
			l.Timestamp = time.Now()
		}

		s.doc.Lessons = append(s.doc.Lessons, l)
		if len(s.doc.Lessons) > LessonFIFOCap {
			s.doc.Lessons = s.doc.Lessons[len(s.doc.Lessons)-LessonFIFOCap:]
		}
		return s.persist()
	})
	return l, err
}

// DeleteLesson removes the lesson with the given id, if present.
func (s *Store) DeleteLesson(ctx context.Context, id int64) error {
	return s.submit(ctx, func() error {
		for i, l := range s.doc.Lessons {
			if l.ID == id {
				s.doc.Lessons = append(s.doc.Lessons[:i], s.doc.Lessons[i+1:]...)
				return s.persist()
			}
		}
		return fmt.Errorf("lesson %d not found", id)
	})
}
