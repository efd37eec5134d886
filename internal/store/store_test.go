package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "db.json"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestOpenCreatesDefaultsWhenMissing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	settings, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)

	projects, err := s.GetProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestSaveProjectInsertsThenMerges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.SaveProject(ctx, Project{ID: "p1", Status: StatusCreated})
	require.NoError(t, err)

	got, err := s.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, got.Status)
	createdAt := got.CreatedAt
	require.False(t, createdAt.IsZero())

	err = s.SaveProject(ctx, Project{ID: "p1", Status: StatusRunning})
	require.NoError(t, err)

	got, err = s.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, createdAt, got.CreatedAt, "CreatedAt must survive a merge")
}

func TestGetProjectNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetProject(context.Background(), "nope")
	assert.Error(t, err)
}

func TestPersistenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveProject(context.Background(), Project{ID: "p1"}))
	s.Close()

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
}

func TestPersistLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveProject(context.Background(), Project{ID: "p1"}))
	s.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file: %s", e.Name())
	}
}

func TestUpdateSettingsPatchRejectsUnknownKey(t *testing.T) {
	s := openTestStore(t)
	patch := map[string]json.RawMessage{"notAKey": json.RawMessage(`true`)}
	err := s.UpdateSettingsPatch(context.Background(), patch)
	assert.Error(t, err)
}

func TestUpdateSettingsPatchMergesPartial(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	patch := map[string]json.RawMessage{"autoTest": json.RawMessage(`false`)}
	require.NoError(t, s.UpdateSettingsPatch(ctx, patch))

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.False(t, got.AutoTest)
	assert.Equal(t, DefaultSettings().MaxRetriesPerTask, got.MaxRetriesPerTask, "unrelated fields must survive a partial patch")
}

func TestUpdateSettingsPreservesLLMInfo(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	info := LLMInfo{Provider: "openai", Model: "gpt-4", APIKey: "****abcd", Endpoints: map[string]string{"openai": "https://api.openai.com/v1"}}
	require.NoError(t, s.SetLLMInfo(ctx, info))

	replacement := DefaultSettings()
	replacement.MaxRetriesPerTask = 7
	replacement.LLM = LLMInfo{Provider: "attacker-supplied", Model: "whatever"}
	require.NoError(t, s.UpdateSettings(ctx, replacement))

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, got.MaxRetriesPerTask)
	assert.Equal(t, info, got.LLM, "LLM snapshot must survive a full settings replace untouched")
}

func TestSaveLessonTruncatesAndCaps(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	longErr := strings.Repeat("x", MaxLessonLen+100)
	saved, err := s.SaveLesson(ctx, Lesson{Project: "p1", Error: longErr})
	require.NoError(t, err)
	assert.Len(t, saved.Error, MaxLessonLen)
	assert.Equal(t, int64(1), saved.ID)

	for i := 0; i < LessonFIFOCap+10; i++ {
		_, err := s.SaveLesson(ctx, Lesson{Project: "p1", Error: "e"})
		require.NoError(t, err)
	}

	lessons, err := s.GetLessons(ctx)
	require.NoError(t, err)
	assert.Len(t, lessons, LessonFIFOCap)
}

func TestSaveLessonIDsAreMonotonicAcrossCap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var lastID int64
	for i := 0; i < LessonFIFOCap+5; i++ {
		l, err := s.SaveLesson(ctx, Lesson{Project: "p1", Error: "e"})
		require.NoError(t, err)
		assert.Greater(t, l.ID, lastID)
		lastID = l.ID
	}
}

func TestDeleteLesson(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	l, err := s.SaveLesson(ctx, Lesson{Project: "p1", Error: "e"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteLesson(ctx, l.ID))

	lessons, err := s.GetLessons(ctx)
	require.NoError(t, err)
	assert.Empty(t, lessons)

	assert.Error(t, s.DeleteLesson(ctx, l.ID))
}

func TestMigrateNormalisesLegacyCodexPath(t *testing.T) {
	doc := Document{Settings: Settings{CodexPath: "npx codex-cli"}}
	migrate(&doc)
	assert.Equal(t, "codex", doc.Settings.CodexPath)
}
