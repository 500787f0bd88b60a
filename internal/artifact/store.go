package artifact

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Sentinel errors for store operations. Callers test with errors.Is.
var (
	// ErrInvalidInput marks an empty or malformed request. Never retried.
	ErrInvalidInput = errors.New("artifact: invalid input")
	// ErrDuplicateID marks an ID collision within an artifact class.
	ErrDuplicateID = errors.New("artifact: duplicate id")
	// ErrDanglingParent marks an artifact whose parent is not in the store.
	ErrDanglingParent = errors.New("artifact: dangling parent")
	// ErrNotFound marks a lookup for an ID that is not in the store.
	ErrNotFound = errors.New("artifact: not found")
)

// Store holds the current run's features, stories, and test cases in memory.
// It is safe for concurrent use: reads take a shared lock, writes (inserts
// and supersedes) are serialized so a regeneration can never be observed
// half-applied.
//
// Construct one per run with NewStore and inject it; the store is never
// ambient state.
type Store struct {
	mu sync.RWMutex

	features  map[string]Feature
	stories   map[string]Story
	testCases map[string]TestCase

	// Insertion order per class. A supersede keeps the original position.
	featureOrder  []string
	storyOrder    []string
	testCaseOrder []string
}

// NewStore creates an empty artifact store.
func NewStore() *Store {
	return &Store{
		features:  make(map[string]Feature),
		stories:   make(map[string]Story),
		testCases: make(map[string]TestCase),
	}
}

// --- Features ---

// AddFeatures validates and inserts the given features, assigning a UUID to
// any feature without an ID. It fails with ErrDuplicateID if a supplied ID
// collides with an existing feature; nothing is inserted in that case.
// Returns the stored features with IDs filled in.
func (s *Store) AddFeatures(features []Feature) ([]Feature, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no features to add", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before touching the maps.
	prepared := make([]Feature, len(features))
	seen := make(map[string]bool, len(features))
	for i, f := range features {
		if strings.TrimSpace(f.Title) == "" {
			return nil, fmt.Errorf("%w: feature %d has no title", ErrInvalidInput, i)
		}
		if strings.TrimSpace(f.ID) == "" {
			f.ID = uuid.NewString()
		}
		if _, exists := s.features[f.ID]; exists {
			return nil, fmt.Errorf("%w: feature %q", ErrDuplicateID, f.ID)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("%w: feature %q appears twice in batch", ErrDuplicateID, f.ID)
		}
		seen[f.ID] = true
		prepared[i] = f
	}

	for _, f := range prepared {
		s.features[f.ID] = f
		s.featureOrder = append(s.featureOrder, f.ID)
	}
	return prepared, nil
}

// Feature returns the feature with the given ID.
func (s *Store) Feature(id string) (Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.features[id]
	if !ok {
		return Feature{}, fmt.Errorf("%w: feature %q", ErrNotFound, id)
	}
	return f, nil
}

// Features returns all features in insertion order.
func (s *Store) Features() []Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.featuresLocked()
}

func (s *Store) featuresLocked() []Feature {
	out := make([]Feature, 0, len(s.featureOrder))
	for _, id := range s.featureOrder {
		out = append(out, s.features[id])
	}
	return out
}

// --- Stories ---

// PutStories validates and stores the given stories. Each story's parent
// feature must already exist (ErrDanglingParent otherwise). A story replaces
// any existing story with the same ID, and supersedes any existing story for
// the same parent feature; regeneration replaces, it never appends.
// The whole batch is validated before anything is written.
func (s *Store) PutStories(stories []Story) error {
	if len(stories) == 0 {
		return fmt.Errorf("%w: no stories to store", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range stories {
		if err := st.Validate(); err != nil {
			return err
		}
		if _, ok := s.features[st.FeatureID]; !ok {
			return fmt.Errorf("%w: story %q references feature %q", ErrDanglingParent, st.ID, st.FeatureID)
		}
	}

	for _, st := range stories {
		s.supersedeStoryLocked(st)
	}
	return nil
}

// supersedeStoryLocked inserts st, replacing any story with the same ID or
// the same parent feature. The replaced story's position in the insertion
// order is reused. When the replaced story had a different ID, its test
// cases are cascade-deleted: a superseded story must never leave orphans
// behind.
func (s *Store) supersedeStoryLocked(st Story) {
	replaced := ""
	if _, ok := s.stories[st.ID]; ok {
		replaced = st.ID
	} else {
		for id, existing := range s.stories {
			if existing.FeatureID == st.FeatureID {
				replaced = id
				break
			}
		}
	}

	if replaced == "" {
		s.stories[st.ID] = st
		s.storyOrder = append(s.storyOrder, st.ID)
		return
	}

	delete(s.stories, replaced)
	s.stories[st.ID] = st
	for i, id := range s.storyOrder {
		if id == replaced {
			s.storyOrder[i] = st.ID
			break
		}
	}
	if replaced != st.ID {
		s.removeTestCasesByStoryLocked(replaced)
	}
}

// removeTestCasesByStoryLocked drops every test case whose parent is the
// given story ID, compacting the insertion order.
func (s *Store) removeTestCasesByStoryLocked(storyID string) {
	kept := s.testCaseOrder[:0]
	for _, id := range s.testCaseOrder {
		if s.testCases[id].StoryID == storyID {
			delete(s.testCases, id)
			continue
		}
		kept = append(kept, id)
	}
	s.testCaseOrder = kept
}

// Story returns the story with the given ID.
func (s *Store) Story(id string) (Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stories[id]
	if !ok {
		return Story{}, fmt.Errorf("%w: story %q", ErrNotFound, id)
	}
	return st, nil
}

// Stories returns all stories in insertion order.
func (s *Store) Stories() []Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storiesLocked()
}

func (s *Store) storiesLocked() []Story {
	out := make([]Story, 0, len(s.storyOrder))
	for _, id := range s.storyOrder {
		out = append(out, s.stories[id])
	}
	return out
}

// StoriesByFeature returns the stories whose parent is the given feature,
// in insertion order.
func (s *Store) StoriesByFeature(featureID string) []Story {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Story
	for _, id := range s.storyOrder {
		if st := s.stories[id]; st.FeatureID == featureID {
			out = append(out, st)
		}
	}
	return out
}

// --- Test cases ---

// PutTestCases validates and stores the given test cases with the same
// supersede-by-parent semantics as PutStories.
func (s *Store) PutTestCases(testCases []TestCase) error {
	if len(testCases) == 0 {
		return fmt.Errorf("%w: no test cases to store", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tc := range testCases {
		if err := tc.Validate(); err != nil {
			return err
		}
		if _, ok := s.stories[tc.StoryID]; !ok {
			return fmt.Errorf("%w: test case %q references story %q", ErrDanglingParent, tc.ID, tc.StoryID)
		}
	}

	for _, tc := range testCases {
		s.supersedeTestCaseLocked(tc)
	}
	return nil
}

func (s *Store) supersedeTestCaseLocked(tc TestCase) {
	replaced := ""
	if _, ok := s.testCases[tc.ID]; ok {
		replaced = tc.ID
	} else {
		for id, existing := range s.testCases {
			if existing.StoryID == tc.StoryID {
				replaced = id
				break
			}
		}
	}

	if replaced == "" {
		s.testCases[tc.ID] = tc
		s.testCaseOrder = append(s.testCaseOrder, tc.ID)
		return
	}

	delete(s.testCases, replaced)
	s.testCases[tc.ID] = tc
	for i, id := range s.testCaseOrder {
		if id == replaced {
			s.testCaseOrder[i] = tc.ID
			break
		}
	}
}

// TestCases returns all test cases in insertion order.
func (s *Store) TestCases() []TestCase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.testCasesLocked()
}

func (s *Store) testCasesLocked() []TestCase {
	out := make([]TestCase, 0, len(s.testCaseOrder))
	for _, id := range s.testCaseOrder {
		out = append(out, s.testCases[id])
	}
	return out
}

// TestCasesByStory returns the test cases whose parent is the given story,
// in insertion order.
func (s *Store) TestCasesByStory(storyID string) []TestCase {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TestCase
	for _, id := range s.testCaseOrder {
		if tc := s.testCases[id]; tc.StoryID == storyID {
			out = append(out, tc)
		}
	}
	return out
}

// --- Snapshot ---

// Snapshot returns a consistent ordered view of all three artifact classes,
// taken under a single read lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Features:  s.featuresLocked(),
		Stories:   s.storiesLocked(),
		TestCases: s.testCasesLocked(),
	}
}

// Counts returns the number of stored features, stories, and test cases.
func (s *Store) Counts() (features, stories, testCases int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.features), len(s.stories), len(s.testCases)
}
