package plan

import "fmt"

// ValidateCompletion checks invariant §3(i): Stage.IsCompleted holds iff
// every contained story is terminal.
func ValidateCompletion(p *Plan) error {
	for si, stage := range p.Stages {
		allTerminal := true
		for _, story := range stage.Stories {
			if !story.Terminal() {
				allTerminal = false
				break
			}
		}
		if stage.IsCompleted != allTerminal {
			return fmt.Errorf("plan invariant violated: stage %d (%q) isCompleted=%v but all-terminal=%v",
				si, stage.Name, stage.IsCompleted, allTerminal)
		}
	}
	return nil
}

// ValidateOrder checks invariant (ii): stages are processed strictly in
// order — no stage after the active one may be complete while the active
// one is not (that would mean a later stage finished "out of turn").
func ValidateOrder(p *Plan) error {
	seenIncomplete := false
	for si, stage := range p.Stages {
		if !stage.IsCompleted {
			seenIncomplete = true
			continue
		}
		if seenIncomplete {
			return fmt.Errorf("plan invariant violated: stage %d (%q) is completed after an earlier incomplete stage", si, stage.Name)
		}
	}
	return nil
}

// Validate runs every invariant check and returns the first violation.
func Validate(p *Plan) error {
	if err := ValidateMonotonic(p); err != nil {
		return err
	}
	if err := ValidateCompletion(p); err != nil {
		return err
	}
	if err := ValidateOrder(p); err != nil {
		return err
	}
	return nil
}
