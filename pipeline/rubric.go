package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// dimension is one scored axis of a stage rubric. Weights within a stage
// sum to 1.0.
type dimension struct {
	name   string
	weight float64
	met    bool
}

// scoreDimensions folds a rubric into a [0,1] score plus the names of the
// failing dimensions, which become retry feedback.
func scoreDimensions(dims []dimension) (float64, []string) {
	var score float64
	var failing []string
	for _, d := range dims {
		if d.met {
			score += d.weight
		} else {
			failing = append(failing, d.name)
		}
	}
	// clamp rounding noise
	if score > 1 {
		score = 1
	}
	return score, failing
}

var storyFormatRe = regexp.MustCompile(`(?i)\bas an? .+?,? i want\b`)

// hasStoryFormat reports whether text follows the user story convention.
func hasStoryFormat(text string) bool {
	return storyFormatRe.MatchString(text)
}

// hasBusinessValue looks for the "so that" benefit clause.
func hasBusinessValue(text string) bool {
	return strings.Contains(strings.ToLower(text), "so that")
}

// hasGherkinShape reports whether a scenario reads as given/when/then.
func hasGherkinShape(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "given") &&
		strings.Contains(lower, "when") &&
		strings.Contains(lower, "then")
}

// describeFailing renders failing dimensions with their scores for feedback
// and logging.
func describeFailing(stage string, failing []string) []string {
	out := make([]string, 0, len(failing))
	for _, f := range failing {
		out = append(out, fmt.Sprintf("%s: %s", stage, f))
	}
	return out
}
