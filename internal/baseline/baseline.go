// Package baseline implements the deterministic template engine; the
// generation path that needs no AI service and never fails.
//
// It derives stories from features and test cases from stories using fixed
// heuristics. Output is a pure function of the input: identical artifacts
// in produce byte-identical artifacts out, which is what makes the engine
// usable both standalone (no credentials) and as the orchestrator's
// fallback path.
package baseline

import (
	"fmt"
	"strings"

	"github.com/HendryAvila/storyforge/internal/artifact"
)

// Engine derives stories and test cases from fixed templates.
// The zero value is ready to use; it holds no state.
type Engine struct{}

// New creates a baseline engine.
func New() *Engine {
	return &Engine{}
}

// pointKeywords maps title keywords to a raw size estimate, mirroring the
// usual planning-poker intuition: integration-heavy work is big, error
// handling is medium, everything else is small.
var pointKeywords = []struct {
	words  []string
	points int
}{
	{[]string{"auth", "login", "signup", "register", "payment", "checkout", "pdf", "export", "email", "sync", "webhook", "integration"}, 5},
	{[]string{"error", "retry", "timeout", "edge", "validation"}, 3},
}

// estimatePoints derives a story point estimate from the feature's title and
// description length, clamped to the allowed scale.
func estimatePoints(f artifact.Feature) int {
	title := strings.ToLower(f.Title)
	points := 2
	for _, kw := range pointKeywords {
		for _, w := range kw.words {
			if strings.Contains(title, w) {
				points = kw.points
			}
		}
	}

	// Long descriptions usually hide more work.
	if len(f.Description) > 400 {
		points += 3
	} else if len(f.Description) > 120 {
		points += 1
	}

	return artifact.ClampPoints(points)
}

// StoryFromFeature derives exactly one story from the feature. The story ID
// is derived from the parent so that regenerating for the same feature
// always produces the same artifact.
func (e *Engine) StoryFromFeature(f artifact.Feature) artifact.Story {
	title := strings.TrimSpace(f.Title)
	if title == "" {
		title = "Feature"
	}

	criteria := []artifact.Criterion{
		{
			Given: "valid inputs",
			When:  fmt.Sprintf("the user works with %s", strings.ToLower(title)),
			Then:  "the feature behaves as described",
		},
		{
			Given: "boundary or unusual inputs",
			When:  "the user performs the main action",
			Then:  "edge cases are handled without data loss",
		},
		{
			Given: "a failure occurs",
			When:  "the user retries the action",
			Then:  "errors are reported clearly and the user can recover",
		},
	}
	if strings.TrimSpace(f.Description) != "" {
		criteria = append(criteria, artifact.Criterion{
			Given: "required fields are missing",
			When:  "the user submits the form",
			Then:  "an inline validation message is shown",
		})
	}

	return artifact.Story{
		ID:        "S-" + f.ID,
		FeatureID: f.ID,
		Title:     title + ": core flow",
		Narrative: artifact.Narrative{
			AsA:    "end user",
			IWant:  fmt.Sprintf("to use %s successfully", strings.ToLower(title)),
			SoThat: "I achieve the goal described by the feature",
		},
		Criteria:   criteria,
		Points:     estimatePoints(f),
		Provenance: artifact.ProvenanceTemplate,
	}
}

// StoriesFromFeatures derives one story per feature, preserving input order.
func (e *Engine) StoriesFromFeatures(features []artifact.Feature) []artifact.Story {
	out := make([]artifact.Story, len(features))
	for i, f := range features {
		out[i] = e.StoryFromFeature(f)
	}
	return out
}

// TestFromStory derives exactly one test case from the story: one
// precondition per acceptance criterion, steps mirroring the criteria, and
// one expected outcome per step.
func (e *Engine) TestFromStory(s artifact.Story) artifact.TestCase {
	preconditions := make([]string, 0, len(s.Criteria))
	steps := make([]string, 0, len(s.Criteria))
	expected := make([]string, 0, len(s.Criteria))

	for _, c := range s.Criteria {
		preconditions = append(preconditions, "Given "+c.Given)
		steps = append(steps, capitalize(c.When))
		expected = append(expected, capitalize(c.Then))
	}

	if len(steps) == 0 {
		preconditions = []string{"The system is in a known initial state"}
		steps = []string{"Trigger the main action for '" + s.Title + "'"}
		expected = []string{"The system completes the action successfully"}
	}

	return artifact.TestCase{
		ID:            "T-" + s.ID,
		StoryID:       s.ID,
		Title:         "Verify " + s.Title,
		Preconditions: preconditions,
		Steps:         steps,
		Expected:      expected,
		Provenance:    artifact.ProvenanceTemplate,
	}
}

// TestsFromStories derives one test case per story, preserving input order.
func (e *Engine) TestsFromStories(stories []artifact.Story) []artifact.TestCase {
	out := make([]artifact.TestCase, len(stories))
	for i, s := range stories {
		out[i] = e.TestFromStory(s)
	}
	return out
}

// capitalize upper-cases the first byte of an ASCII sentence fragment.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
