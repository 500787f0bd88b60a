// Package artifact defines the data model for the generation pipeline
// (features, user stories, and test cases) plus the in-memory store that
// holds them for the lifetime of a run.
//
// The three artifact classes form a two-level parent chain:
// Feature → Story → TestCase. The store enforces referential integrity at
// insertion time; there is no removal operation, so an orphan can never
// be observed.
package artifact

import (
	"fmt"
	"strings"
)

// --- Provenance enum ---

// Provenance records which generation path produced an artifact.
// It is a flag, not a type hierarchy; both paths produce the same shape.
type Provenance string

const (
	ProvenanceAI       Provenance = "ai"
	ProvenanceTemplate Provenance = "template"
)

// validProvenances is the set of allowed provenance tags.
var validProvenances = map[Provenance]bool{
	ProvenanceAI:       true,
	ProvenanceTemplate: true,
}

// ValidateProvenance returns an error if the tag is not recognized.
func ValidateProvenance(p Provenance) error {
	if !validProvenances[p] {
		return fmt.Errorf("invalid provenance %q: must be one of: ai, template", p)
	}
	return nil
}

// --- Story points ---

// PointScale is the allowed set of story point values (Fibonacci).
var PointScale = []int{1, 2, 3, 5, 8, 13}

// ValidPoints reports whether n is on the point scale.
func ValidPoints(n int) bool {
	for _, v := range PointScale {
		if v == n {
			return true
		}
	}
	return false
}

// ClampPoints returns the largest scale value <= n, or the smallest scale
// value when n is below the scale.
func ClampPoints(n int) int {
	best := PointScale[0]
	for _, v := range PointScale {
		if v <= n {
			best = v
		}
	}
	return best
}

// --- Core data structures ---

// Feature is an input unit of work (typically a Jira epic) from which
// stories are derived. Immutable once ingested.
type Feature struct {
	ID          string `json:"id"`
	Key         string `json:"key,omitempty"` // external tracker reference, e.g. "PROJ-12"
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Narrative is the role/capability/benefit statement of a user story:
// "As a <AsA>, I want <IWant>, so that <SoThat>".
type Narrative struct {
	AsA    string `json:"as_a"`
	IWant  string `json:"i_want"`
	SoThat string `json:"so_that"`
}

// String renders the narrative in its conventional sentence form.
func (n Narrative) String() string {
	return fmt.Sprintf("As a %s, I want %s, so that %s.", n.AsA, n.IWant, n.SoThat)
}

// Criterion is a single Given/When/Then acceptance criterion.
type Criterion struct {
	Given string `json:"given"`
	When  string `json:"when"`
	Then  string `json:"then"`
}

// String renders the criterion as one line.
func (c Criterion) String() string {
	return fmt.Sprintf("Given %s, when %s, then %s.", c.Given, c.When, c.Then)
}

// Story is a user-story artifact derived from a Feature.
type Story struct {
	ID         string      `json:"id"`
	FeatureID  string      `json:"feature_id"`
	Title      string      `json:"title"`
	Narrative  Narrative   `json:"narrative"`
	Criteria   []Criterion `json:"acceptance_criteria"`
	Points     int         `json:"points"`
	Provenance Provenance  `json:"provenance"`
}

// Validate checks the story's shape invariants (not its parent reference;
// that is the store's job at insertion time).
func (s Story) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("story: %w: missing id", ErrInvalidInput)
	}
	if strings.TrimSpace(s.FeatureID) == "" {
		return fmt.Errorf("story %s: %w: missing feature id", s.ID, ErrInvalidInput)
	}
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("story %s: %w: missing title", s.ID, ErrInvalidInput)
	}
	if strings.TrimSpace(s.Narrative.AsA) == "" || strings.TrimSpace(s.Narrative.IWant) == "" || strings.TrimSpace(s.Narrative.SoThat) == "" {
		return fmt.Errorf("story %s: %w: incomplete narrative", s.ID, ErrInvalidInput)
	}
	if len(s.Criteria) == 0 {
		return fmt.Errorf("story %s: %w: no acceptance criteria", s.ID, ErrInvalidInput)
	}
	if !ValidPoints(s.Points) {
		return fmt.Errorf("story %s: %w: points %d not on scale %v", s.ID, ErrInvalidInput, s.Points, PointScale)
	}
	if err := ValidateProvenance(s.Provenance); err != nil {
		return fmt.Errorf("story %s: %w", s.ID, err)
	}
	return nil
}

// TestCase is a manual test-case artifact derived from a Story.
// Expected holds one observable outcome per step.
type TestCase struct {
	ID            string     `json:"id"`
	StoryID       string     `json:"story_id"`
	Title         string     `json:"title"`
	Preconditions []string   `json:"preconditions"`
	Steps         []string   `json:"steps"`
	Expected      []string   `json:"expected"`
	Provenance    Provenance `json:"provenance"`
}

// Validate checks the test case's shape invariants.
func (t TestCase) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("test case: %w: missing id", ErrInvalidInput)
	}
	if strings.TrimSpace(t.StoryID) == "" {
		return fmt.Errorf("test case %s: %w: missing story id", t.ID, ErrInvalidInput)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("test case %s: %w: missing title", t.ID, ErrInvalidInput)
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("test case %s: %w: no steps", t.ID, ErrInvalidInput)
	}
	if len(t.Expected) != len(t.Steps) {
		return fmt.Errorf("test case %s: %w: %d expected outcomes for %d steps",
			t.ID, ErrInvalidInput, len(t.Expected), len(t.Steps))
	}
	if err := ValidateProvenance(t.Provenance); err != nil {
		return fmt.Errorf("test case %s: %w", t.ID, err)
	}
	return nil
}

// Snapshot is a consistent, ordered view of the whole store, taken under
// a single read lock. The export formatter renders from this.
type Snapshot struct {
	Features  []Feature  `json:"features"`
	Stories   []Story    `json:"stories"`
	TestCases []TestCase `json:"tests"`
}
