package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/HendryAvila/storyforge/internal/artifact"
	"github.com/HendryAvila/storyforge/internal/baseline"
	"github.com/HendryAvila/storyforge/internal/gemini"
)

// fakeGenerator scripts the AI path for tests.
type fakeGenerator struct {
	stories    []artifact.Story
	testCases  []artifact.TestCase
	storiesErr error
	testsErr   error
	calls      int
}

func (f *fakeGenerator) GenerateStories(_ context.Context, features []artifact.Feature) ([]artifact.Story, error) {
	f.calls++
	if f.storiesErr != nil {
		return nil, f.storiesErr
	}
	return f.stories, nil
}

func (f *fakeGenerator) GenerateTests(_ context.Context, stories []artifact.Story) ([]artifact.TestCase, error) {
	f.calls++
	if f.testsErr != nil {
		return nil, f.testsErr
	}
	return f.testCases, nil
}

func seededStore(t *testing.T, featureIDs ...string) *artifact.Store {
	t.Helper()
	store := artifact.NewStore()
	features := make([]artifact.Feature, len(featureIDs))
	for i, id := range featureIDs {
		features[i] = artifact.Feature{ID: id, Title: "Feature " + id, Description: "desc"}
	}
	if _, err := store.AddFeatures(features); err != nil {
		t.Fatalf("AddFeatures failed: %v", err)
	}
	return store
}

func aiStory(featureID string) artifact.Story {
	return artifact.Story{
		ID:        "S-" + featureID,
		FeatureID: featureID,
		Title:     "AI story for " + featureID,
		Narrative: artifact.Narrative{AsA: "user", IWant: "something", SoThat: "value"},
		Criteria:  []artifact.Criterion{{Given: "g", When: "w", Then: "t"}},
		Points:    5, Provenance: artifact.ProvenanceAI,
	}
}

// --- GenerateStories: AI path ---

func TestGenerateStories_AIPathStoresAndReports(t *testing.T) {
	store := seededStore(t, "F-001", "F-002")
	gen := &fakeGenerator{stories: []artifact.Story{aiStory("F-001"), aiStory("F-002")}}
	o := New(store, gen)

	res, err := o.GenerateStories(context.Background(), nil)
	if err != nil {
		t.Fatalf("GenerateStories failed: %v", err)
	}
	if res.UsedFallback {
		t.Error("UsedFallback should be false on the AI path")
	}
	if res.Engine != EngineAI {
		t.Errorf("Engine = %s, want ai", res.Engine)
	}
	if len(res.Stories) != 2 {
		t.Fatalf("got %d stories, want 2 (one per feature)", len(res.Stories))
	}
	for _, s := range res.Stories {
		if s.Provenance != artifact.ProvenanceAI {
			t.Errorf("story %s provenance = %s, want ai", s.ID, s.Provenance)
		}
	}
	if got := store.Stories(); len(got) != 2 {
		t.Errorf("store holds %d stories, want 2", len(got))
	}

	diag := o.Diagnostics()
	if diag.LastEngine != EngineAI || diag.LastAIErr != "" {
		t.Errorf("diagnostics = %+v, want ai engine with no error", diag)
	}
}

func TestGenerateStories_AIPathStampsProvenance(t *testing.T) {
	store := seededStore(t, "F-001")

	// A generator that mislabels its output must not break the
	// one-provenance-per-batch contract: the orchestrator re-tags.
	mislabeled := aiStory("F-001")
	mislabeled.Provenance = artifact.ProvenanceTemplate
	gen := &fakeGenerator{stories: []artifact.Story{mislabeled}}
	o := New(store, gen)

	res, err := o.GenerateStories(context.Background(), nil)
	if err != nil {
		t.Fatalf("GenerateStories failed: %v", err)
	}
	if res.Stories[0].Provenance != artifact.ProvenanceAI {
		t.Errorf("result provenance = %s, want ai", res.Stories[0].Provenance)
	}
	stored, err := store.Story("S-F-001")
	if err != nil {
		t.Fatalf("Story lookup failed: %v", err)
	}
	if stored.Provenance != artifact.ProvenanceAI {
		t.Errorf("stored provenance = %s, want ai", stored.Provenance)
	}
}

// --- GenerateStories: fallback ---

func TestGenerateStories_FallsBackOnAIError(t *testing.T) {
	store := seededStore(t, "F-001")
	gen := &fakeGenerator{storiesErr: gemini.ErrUnavailable}
	o := New(store, gen)

	res, err := o.GenerateStories(context.Background(), nil)
	if err != nil {
		t.Fatalf("AI failure must not fail the request, got: %v", err)
	}
	if !res.UsedFallback {
		t.Error("UsedFallback should be true after AI failure")
	}
	if res.Engine != EngineTemplate {
		t.Errorf("Engine = %s, want template", res.Engine)
	}
	for _, s := range res.Stories {
		if s.Provenance != artifact.ProvenanceTemplate {
			t.Errorf("story %s provenance = %s, want template", s.ID, s.Provenance)
		}
	}

	diag := o.Diagnostics()
	if diag.LastEngine != EngineTemplate || diag.LastAIErr == "" {
		t.Errorf("diagnostics = %+v, want template engine with recorded AI error", diag)
	}
}

func TestGenerateStories_FallsBackOnInvalidAIOutput(t *testing.T) {
	store := seededStore(t, "F-001")

	// AI returns a story for a feature that is not in the store; the
	// store rejects it, and the orchestrator must discard the whole batch.
	gen := &fakeGenerator{stories: []artifact.Story{aiStory("F-404")}}
	o := New(store, gen)

	res, err := o.GenerateStories(context.Background(), nil)
	if err != nil {
		t.Fatalf("invalid AI output must not fail the request, got: %v", err)
	}
	if !res.UsedFallback {
		t.Error("UsedFallback should be true after invalid AI output")
	}
	if len(res.Stories) != 1 || res.Stories[0].FeatureID != "F-001" {
		t.Errorf("fallback stories = %v, want one for F-001", res.Stories)
	}
	// The dangling AI story must not be visible.
	for _, s := range store.Stories() {
		if s.FeatureID == "F-404" {
			t.Error("rejected AI story leaked into the store")
		}
	}
}

func TestGenerateStories_NilGeneratorAlwaysTemplate(t *testing.T) {
	store := seededStore(t, "F-001")
	o := New(store, nil)

	res, err := o.GenerateStories(context.Background(), nil)
	if err != nil {
		t.Fatalf("GenerateStories failed: %v", err)
	}
	if !res.UsedFallback || res.Engine != EngineTemplate {
		t.Errorf("result = %+v, want template path with no credentials", res)
	}
	// No AI error to report; credentials are simply absent.
	if diag := o.Diagnostics(); diag.LastAIErr != "" {
		t.Errorf("LastAIErr = %q, want empty", diag.LastAIErr)
	}
}

// --- GenerateStories: input validation ---

func TestGenerateStories_EmptyStoreIsInvalidInput(t *testing.T) {
	o := New(artifact.NewStore(), nil)

	_, err := o.GenerateStories(context.Background(), nil)
	if !errors.Is(err, artifact.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestGenerateStories_UnknownFeatureIDFails(t *testing.T) {
	store := seededStore(t, "F-001")
	o := New(store, nil)

	_, err := o.GenerateStories(context.Background(), []string{"F-404"})
	if !errors.Is(err, artifact.ErrDanglingParent) {
		t.Fatalf("err = %v, want ErrDanglingParent", err)
	}
}

func TestGenerateStories_SubsetOnly(t *testing.T) {
	store := seededStore(t, "F-001", "F-002")
	o := New(store, nil)

	res, err := o.GenerateStories(context.Background(), []string{"F-002"})
	if err != nil {
		t.Fatalf("GenerateStories failed: %v", err)
	}
	if len(res.Stories) != 1 || res.Stories[0].FeatureID != "F-002" {
		t.Errorf("stories = %v, want exactly one for F-002", res.Stories)
	}
}

// --- Regeneration ---

func TestGenerateStories_RegenerationSupersedes(t *testing.T) {
	store := seededStore(t, "F-001", "F-002")
	o := New(store, nil)

	first, err := o.GenerateStories(context.Background(), nil)
	if err != nil {
		t.Fatalf("first GenerateStories failed: %v", err)
	}
	second, err := o.GenerateStories(context.Background(), nil)
	if err != nil {
		t.Fatalf("second GenerateStories failed: %v", err)
	}

	// Same count, same referential structure, byte-identical templates.
	if !reflect.DeepEqual(first.Stories, second.Stories) {
		t.Error("template regeneration should be deterministic")
	}
	if got := store.Stories(); len(got) != 2 {
		t.Errorf("store holds %d stories after regeneration, want 2 (supersede, not append)", len(got))
	}
}

// --- GenerateTests ---

func storeWithStories(t *testing.T) (*artifact.Store, []artifact.Story) {
	t.Helper()
	store := seededStore(t, "F-001", "F-002")
	o := New(store, nil)
	res, err := o.GenerateStories(context.Background(), nil)
	if err != nil {
		t.Fatalf("GenerateStories failed: %v", err)
	}
	return store, res.Stories
}

func TestGenerateTests_TemplatePath(t *testing.T) {
	store, stories := storeWithStories(t)
	o := New(store, nil)

	res, err := o.GenerateTests(context.Background(), nil)
	if err != nil {
		t.Fatalf("GenerateTests failed: %v", err)
	}
	if len(res.TestCases) != len(stories) {
		t.Fatalf("got %d test cases, want %d (one per story)", len(res.TestCases), len(stories))
	}
	for i, tc := range res.TestCases {
		if tc.StoryID != stories[i].ID {
			t.Errorf("test case %d parent = %s, want %s", i, tc.StoryID, stories[i].ID)
		}
		if len(tc.Steps) < 1 {
			t.Errorf("test case %s has no steps", tc.ID)
		}
		if len(tc.Expected) != len(tc.Steps) {
			t.Errorf("test case %s expected/steps = %d/%d, want equal", tc.ID, len(tc.Expected), len(tc.Steps))
		}
	}
}

func TestGenerateTests_AIPathFallsBackOnError(t *testing.T) {
	store, _ := storeWithStories(t)
	gen := &fakeGenerator{testsErr: gemini.ErrMalformed}
	o := New(store, gen)

	res, err := o.GenerateTests(context.Background(), nil)
	if err != nil {
		t.Fatalf("AI failure must not fail the request, got: %v", err)
	}
	if !res.UsedFallback {
		t.Error("UsedFallback should be true")
	}
	for _, tc := range res.TestCases {
		if tc.Provenance != artifact.ProvenanceTemplate {
			t.Errorf("test case %s provenance = %s, want template", tc.ID, tc.Provenance)
		}
	}
}

func TestGenerateTests_AIPathStampsProvenance(t *testing.T) {
	store, stories := storeWithStories(t)
	mislabeled := artifact.TestCase{
		ID: "T-" + stories[0].ID, StoryID: stories[0].ID, Title: "Verify",
		Preconditions: []string{"known state"},
		Steps:         []string{"do the thing"},
		Expected:      []string{"it works"},
		Provenance:    artifact.ProvenanceTemplate,
	}
	second := mislabeled
	second.ID, second.StoryID = "T-"+stories[1].ID, stories[1].ID
	gen := &fakeGenerator{testCases: []artifact.TestCase{mislabeled, second}}
	o := New(store, gen)

	res, err := o.GenerateTests(context.Background(), nil)
	if err != nil {
		t.Fatalf("GenerateTests failed: %v", err)
	}
	for _, tc := range res.TestCases {
		if tc.Provenance != artifact.ProvenanceAI {
			t.Errorf("test case %s provenance = %s, want ai", tc.ID, tc.Provenance)
		}
	}
}

func TestGenerateTests_UnknownStoryIDFails(t *testing.T) {
	store, _ := storeWithStories(t)
	o := New(store, nil)

	_, err := o.GenerateTests(context.Background(), []string{"S-404"})
	if !errors.Is(err, artifact.ErrDanglingParent) {
		t.Fatalf("err = %v, want ErrDanglingParent", err)
	}
}

func TestGenerateTests_NoStoriesIsInvalidInput(t *testing.T) {
	store := seededStore(t, "F-001")
	o := New(store, nil)

	_, err := o.GenerateTests(context.Background(), nil)
	if !errors.Is(err, artifact.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

// --- Interface compliance ---

func TestBaselineOutputSatisfiesStoreInvariants(t *testing.T) {
	// The template engine's output must be unconditionally storable;
	// this is what makes the fallback path total.
	store := seededStore(t, "F-001")
	e := baseline.New()
	stories := e.StoriesFromFeatures(store.Features())
	if err := store.PutStories(stories); err != nil {
		t.Fatalf("template stories rejected by store: %v", err)
	}
	if err := store.PutTestCases(e.TestsFromStories(stories)); err != nil {
		t.Fatalf("template test cases rejected by store: %v", err)
	}
}
