package plan

// ActiveStage returns a pointer to the first non-completed stage, or nil if
// every stage is complete. Running this twice with no intervening writes
// returns the same stage (pick-task determinism, spec §8).
func ActiveStage(p *Plan) *Stage {
	for i := range p.Stages {
		if !p.Stages[i].IsCompleted {
			return &p.Stages[i]
		}
	}
	return nil
}

// ActiveStory returns a pointer to the first story in the stage with
// neither terminal flag set, or nil if the stage is fully terminal.
func ActiveStory(s *Stage) *Story {
	for i := range s.Stories {
		if !s.Stories[i].Terminal() {
			return &s.Stories[i]
		}
	}
	return nil
}

// IsDone reports whether every stage in the plan is completed.
func IsDone(p *Plan) bool {
	return ActiveStage(p) == nil
}
