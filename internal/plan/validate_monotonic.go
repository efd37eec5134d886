package plan

import "fmt"

// ValidateMonotonic checks invariant §3(iv): a story never carries both
// terminal flags at once, and a skipped story always has a SkipReason.
func ValidateMonotonic(p *Plan) error {
	for si, stage := range p.Stages {
		for ti, story := range stage.Stories {
			if story.Passes && story.IsSkipped {
				return fmt.Errorf("plan invariant violated: stage %d story %d has both passes and isSkipped set", si, ti)
			}
			if story.IsSkipped && story.SkipReason == "" {
				return fmt.Errorf("plan invariant violated: stage %d story %d is skipped with no reason", si, ti)
			}
		}
	}
	return nil
}
