// Package pipeline implements the generation orchestrator: the two-stage
// derivation (features → stories → test cases) with an AI-first,
// all-or-nothing fallback to the baseline template engine.
//
// The fallback rule is the central design decision here: a batch either
// fully succeeds via the AI path or fully falls back to templates. Partial
// AI success is never surfaced; every artifact in one call's batch carries
// the same provenance tag.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/HendryAvila/storyforge/internal/artifact"
	"github.com/HendryAvila/storyforge/internal/baseline"
)

// Engine names reported in results and diagnostics.
const (
	EngineAI       = "ai"
	EngineTemplate = "template"
)

// Generator is the AI generation client contract. A nil Generator means
// "AI not configured"; the orchestrator then always takes the template
// path without treating it as a failure.
type Generator interface {
	GenerateStories(ctx context.Context, features []artifact.Feature) ([]artifact.Story, error)
	GenerateTests(ctx context.Context, stories []artifact.Story) ([]artifact.TestCase, error)
}

// StoriesResult is the outcome of a story generation call.
type StoriesResult struct {
	Stories      []artifact.Story `json:"stories"`
	UsedFallback bool             `json:"used_fallback"`
	Engine       string           `json:"engine"`
}

// TestsResult is the outcome of a test generation call.
type TestsResult struct {
	TestCases    []artifact.TestCase `json:"tests"`
	UsedFallback bool                `json:"used_fallback"`
	Engine       string              `json:"engine"`
}

// Orchestrator drives both generation stages against the artifact store.
type Orchestrator struct {
	store    *artifact.Store
	gen      Generator
	baseline *baseline.Engine

	mu         sync.Mutex
	lastEngine string
	lastAIErr  string
}

// New creates an orchestrator. gen may be nil (AI unavailable; every
// generation call takes the template path).
func New(store *artifact.Store, gen Generator) *Orchestrator {
	return &Orchestrator{
		store:    store,
		gen:      gen,
		baseline: baseline.New(),
	}
}

// GenerateStories derives one story per requested feature and stores the
// batch, superseding any prior stories for the same features. An empty
// featureIDs slice means "all features in the store".
//
// AI-path errors never fail the request: they trigger the template
// fallback and are retained only as diagnostics.
func (o *Orchestrator) GenerateStories(ctx context.Context, featureIDs []string) (StoriesResult, error) {
	features, err := o.resolveFeatures(featureIDs)
	if err != nil {
		return StoriesResult{}, err
	}

	if o.gen != nil {
		stories, aiErr := o.gen.GenerateStories(ctx, features)
		if aiErr == nil {
			// The orchestrator owns the provenance contract: everything
			// stored on this path is tagged ai, whatever the generator set.
			// Structurally invalid output gets the same treatment as a
			// generation failure, with the store's rejection as the AI error.
			stampStories(stories, artifact.ProvenanceAI)
			aiErr = o.store.PutStories(stories)
			if aiErr == nil {
				o.setDiagnostics(EngineAI, "")
				return StoriesResult{Stories: stories, Engine: EngineAI}, nil
			}
		}
		log.Printf("WARNING: ai story generation failed, falling back to templates: %v", aiErr)
		o.setDiagnostics(EngineTemplate, aiErr.Error())
	} else {
		o.setDiagnostics(EngineTemplate, "")
	}

	stories := o.baseline.StoriesFromFeatures(features)
	if err := o.store.PutStories(stories); err != nil {
		return StoriesResult{}, fmt.Errorf("storing template stories: %w", err)
	}
	return StoriesResult{Stories: stories, UsedFallback: true, Engine: EngineTemplate}, nil
}

// GenerateTests derives one test case per requested story and stores the
// batch, superseding any prior test cases for the same stories. An empty
// storyIDs slice means "all stories in the store".
func (o *Orchestrator) GenerateTests(ctx context.Context, storyIDs []string) (TestsResult, error) {
	stories, err := o.resolveStories(storyIDs)
	if err != nil {
		return TestsResult{}, err
	}

	if o.gen != nil {
		testCases, aiErr := o.gen.GenerateTests(ctx, stories)
		if aiErr == nil {
			stampTestCases(testCases, artifact.ProvenanceAI)
			aiErr = o.store.PutTestCases(testCases)
			if aiErr == nil {
				o.setDiagnostics(EngineAI, "")
				return TestsResult{TestCases: testCases, Engine: EngineAI}, nil
			}
		}
		log.Printf("WARNING: ai test generation failed, falling back to templates: %v", aiErr)
		o.setDiagnostics(EngineTemplate, aiErr.Error())
	} else {
		o.setDiagnostics(EngineTemplate, "")
	}

	testCases := o.baseline.TestsFromStories(stories)
	if err := o.store.PutTestCases(testCases); err != nil {
		return TestsResult{}, fmt.Errorf("storing template test cases: %w", err)
	}
	return TestsResult{TestCases: testCases, UsedFallback: true, Engine: EngineTemplate}, nil
}

// resolveFeatures turns the requested IDs into input features. Empty IDs
// means the whole store. A request naming an unknown feature fails with a
// dangling-parent error; there is no fallback for invalid input.
func (o *Orchestrator) resolveFeatures(featureIDs []string) ([]artifact.Feature, error) {
	if len(featureIDs) == 0 {
		features := o.store.Features()
		if len(features) == 0 {
			return nil, fmt.Errorf("%w: no features ingested yet", artifact.ErrInvalidInput)
		}
		return features, nil
	}

	features := make([]artifact.Feature, 0, len(featureIDs))
	for _, id := range featureIDs {
		f, err := o.store.Feature(id)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %q not in store", artifact.ErrDanglingParent, id)
		}
		features = append(features, f)
	}
	return features, nil
}

func (o *Orchestrator) resolveStories(storyIDs []string) ([]artifact.Story, error) {
	if len(storyIDs) == 0 {
		stories := o.store.Stories()
		if len(stories) == 0 {
			return nil, fmt.Errorf("%w: no stories generated yet", artifact.ErrInvalidInput)
		}
		return stories, nil
	}

	stories := make([]artifact.Story, 0, len(storyIDs))
	for _, id := range storyIDs {
		s, err := o.store.Story(id)
		if err != nil {
			return nil, fmt.Errorf("%w: story %q not in store", artifact.ErrDanglingParent, id)
		}
		stories = append(stories, s)
	}
	return stories, nil
}

// stampStories tags every story in the batch with the given provenance;
// one generation call, one provenance.
func stampStories(stories []artifact.Story, p artifact.Provenance) {
	for i := range stories {
		stories[i].Provenance = p
	}
}

func stampTestCases(testCases []artifact.TestCase, p artifact.Provenance) {
	for i := range testCases {
		testCases[i].Provenance = p
	}
}

// --- Diagnostics ---

// Diagnostics reports which engine served the most recent generation call
// and the last AI error absorbed by the fallback, for the status surface.
type Diagnostics struct {
	LastEngine string `json:"last_engine"`
	LastAIErr  string `json:"last_ai_error,omitempty"`
}

func (o *Orchestrator) setDiagnostics(engine, aiErr string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastEngine = engine
	o.lastAIErr = aiErr
}

// Diagnostics returns the current diagnostic state. LastEngine is empty
// until the first generation call.
func (o *Orchestrator) Diagnostics() Diagnostics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Diagnostics{LastEngine: o.lastEngine, LastAIErr: o.lastAIErr}
}
