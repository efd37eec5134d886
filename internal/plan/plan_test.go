package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePlan() Plan {
	return Plan{
		Stages: []Stage{
			{
				Name:    "S1",
				Mission: "m1",
				Stories: []Story{
					{Title: "t1", Priority: PriorityStandard, Passes: true},
					{Title: "t2", Priority: PriorityStandard},
				},
			},
			{
				Name:    "S2",
				Mission: "m2",
				Stories: []Story{
					{Title: "t3", Priority: PriorityCritical},
				},
			},
		},
	}
}

func TestActiveStageAndStory(t *testing.T) {
	p := samplePlan()
	stage := ActiveStage(&p)
	require.NotNil(t, stage)
	assert.Equal(t, "S1", stage.Name)

	story := ActiveStory(stage)
	require.NotNil(t, story)
	assert.Equal(t, "t2", story.Title)
}

func TestActiveStageDeterminism(t *testing.T) {
	p := samplePlan()
	first := ActiveStage(&p)
	second := ActiveStage(&p)
	assert.Same(t, first, second)
}

func TestMarkStoryPassedIsMonotonic(t *testing.T) {
	s := Story{Title: "t", IsSkipped: true, SkipReason: "boom"}
	MarkStoryPassed(&s)
	assert.False(t, s.Passes, "passing a skipped story must be a no-op")
	assert.True(t, s.IsSkipped)
}

func TestMarkStageCompleteIfDone(t *testing.T) {
	stage := &Stage{
		Stories: []Story{
			{Passes: true},
			{IsSkipped: true, SkipReason: "x"},
		},
	}
	MarkStageCompleteIfDone(stage)
	assert.True(t, stage.IsCompleted)

	stage.Stories = append(stage.Stories, Story{})
	MarkStageCompleteIfDone(stage)
	assert.False(t, stage.IsCompleted)
}

func TestReplaceStoryPreservesOrder(t *testing.T) {
	stage := &Stage{
		Stories: []Story{
			{Title: "a"},
			{Title: "b"},
			{Title: "c"},
		},
	}
	subtasks := []Story{
		{Title: "b-1", IsSubtasked: true},
		{Title: "b-2", IsSubtasked: true},
	}
	err := ReplaceStory(stage, 1, subtasks)
	require.NoError(t, err)

	titles := make([]string, len(stage.Stories))
	for i, s := range stage.Stories {
		titles[i] = s.Title
	}
	assert.Equal(t, []string{"a", "b-1", "b-2", "c"}, titles)
}

func TestReplaceStoryRejectsBadIndex(t *testing.T) {
	stage := &Stage{Stories: []Story{{Title: "a"}}}
	err := ReplaceStory(stage, 5, []Story{{Title: "x"}})
	assert.Error(t, err)
}

func TestIsDone(t *testing.T) {
	p := samplePlan()
	assert.False(t, IsDone(&p))

	for si := range p.Stages {
		for ti := range p.Stages[si].Stories {
			p.Stages[si].Stories[ti].Passes = true
		}
		MarkStageCompleteIfDone(&p.Stages[si])
	}
	assert.True(t, IsDone(&p))
}

func TestValidateMonotonicRejectsBothFlags(t *testing.T) {
	p := Plan{Stages: []Stage{{Stories: []Story{{Passes: true, IsSkipped: true, SkipReason: "x"}}}}}
	assert.Error(t, ValidateMonotonic(&p))
}

func TestValidateCompletionDetectsMismatch(t *testing.T) {
	p := Plan{Stages: []Stage{{IsCompleted: true, Stories: []Story{{}}}}}
	assert.Error(t, ValidateCompletion(&p))
}

func TestValidateOrderDetectsOutOfTurnCompletion(t *testing.T) {
	p := Plan{
		Stages: []Stage{
			{IsCompleted: false, Stories: []Story{{}}},
			{IsCompleted: true, Stories: []Story{{Passes: true}}},
		},
	}
	assert.Error(t, ValidateOrder(&p))
}
