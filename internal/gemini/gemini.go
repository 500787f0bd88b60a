// Package gemini implements the AI generation client: it formats a single
// structured prompt per batch, calls the Gemini generateContent REST API,
// and parses the response into artifact records under strict validation.
//
// The client makes exactly one outbound call per invocation; no internal
// retries. Any transport error, timeout, decode failure, or schema
// violation fails the whole batch; the orchestrator decides what to do
// with that (it falls back to the baseline engine).
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HendryAvila/storyforge/internal/artifact"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// DefaultTimeout bounds a single generateContent call. After this the call
// is treated as a failure; it is never left to hang.
const DefaultTimeout = 30 * time.Second

// Sentinel errors. All of them mean the same thing to the caller: this
// batch produced nothing usable, take the fallback path.
var (
	// ErrUnavailable marks transport failures and non-200 responses.
	ErrUnavailable = errors.New("gemini: service unavailable")
	// ErrMalformed marks responses that do not decode into the expected
	// schema or fail shape validation.
	ErrMalformed = errors.New("gemini: malformed response")
)

// Recorder receives one entry per outbound AI request. Implementations must
// tolerate being called from the request path; errors are the recorder's
// problem, not the client's.
type Recorder interface {
	RecordRequest(ctx context.Context, stage, prompt, response, status, failReason string, elapsed time.Duration)
}

// Client calls the Gemini REST API. Construct with New; the zero value is
// not usable.
type Client struct {
	apiKey   string
	model    string
	baseURL  string
	timeout  time.Duration
	client   *http.Client
	recorder Recorder
}

// New creates a Gemini client for the given API key and model ID.
func New(apiKey, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		timeout: DefaultTimeout,
		client:  &http.Client{},
	}
}

// WithRecorder configures request logging. A nil recorder disables it.
func (c *Client) WithRecorder(r Recorder) *Client {
	c.recorder = r
	return c
}

// WithTimeout overrides the per-call timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// WithBaseURL overrides the API endpoint (used by tests).
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimRight(u, "/")
	return c
}

// --- Wire schema ---
//
// These are the shapes the model is instructed to return. Decoding into
// them is step one; strict shape validation is step two. There is no
// best-effort coercion: a missing or mistyped field fails the batch.

type wireNarrative struct {
	AsA    string `json:"as_a"`
	IWant  string `json:"i_want"`
	SoThat string `json:"so_that"`
}

type wireCriterion struct {
	Given string `json:"given"`
	When  string `json:"when"`
	Then  string `json:"then"`
}

type wireStory struct {
	FeatureID string          `json:"feature_id"`
	Title     string          `json:"title"`
	Narrative *wireNarrative  `json:"narrative"`
	Criteria  []wireCriterion `json:"acceptance_criteria"`
	Points    int             `json:"points"`
}

type wireTestCase struct {
	StoryID       string   `json:"story_id"`
	Title         string   `json:"title"`
	Preconditions []string `json:"preconditions"`
	Steps         []string `json:"steps"`
	Expected      []string `json:"expected"`
}

// --- Stories ---

const storiesSystemPrompt = "You are an Agile business analyst. " +
	"Convert each FEATURE into exactly one user story. " +
	"For every input feature return one object with: feature_id (echo the input id), " +
	"title, narrative {as_a, i_want, so_that}, 2-4 acceptance_criteria items {given, when, then}, " +
	"and points from the set {1,2,3,5,8,13}. " +
	"Return ONLY a JSON array, no markdown and no explanations."

// GenerateStories derives one story per input feature via a single API
// call. On any failure the whole batch is rejected; it never returns
// partially populated artifacts.
func (c *Client) GenerateStories(ctx context.Context, features []artifact.Feature) ([]artifact.Story, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no features in request", artifact.ErrInvalidInput)
	}

	input, err := json.Marshal(features)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal features: %w", err)
	}
	prompt := storiesSystemPrompt + "\n\nFEATURES_JSON:\n" + string(input)

	raw, err := c.generate(ctx, "stories", prompt)
	if err != nil {
		return nil, err
	}

	var wire []wireStory
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("%w: decoding stories: %v", ErrMalformed, err)
	}

	return storiesFromWire(wire, features)
}

// storiesFromWire validates the decoded records against the input feature
// set and converts them to artifacts. Validation is all-or-nothing.
func storiesFromWire(wire []wireStory, features []artifact.Feature) ([]artifact.Story, error) {
	byFeature := make(map[string]wireStory, len(wire))
	known := make(map[string]bool, len(features))
	for _, f := range features {
		known[f.ID] = true
	}

	for i, w := range wire {
		if !known[w.FeatureID] {
			return nil, fmt.Errorf("%w: story %d references unknown feature %q", ErrMalformed, i, w.FeatureID)
		}
		if _, dup := byFeature[w.FeatureID]; dup {
			return nil, fmt.Errorf("%w: multiple stories for feature %q", ErrMalformed, w.FeatureID)
		}
		byFeature[w.FeatureID] = w
	}

	// One story per input feature, in input order.
	out := make([]artifact.Story, 0, len(features))
	for _, f := range features {
		w, ok := byFeature[f.ID]
		if !ok {
			return nil, fmt.Errorf("%w: no story for feature %q", ErrMalformed, f.ID)
		}
		if w.Narrative == nil {
			return nil, fmt.Errorf("%w: story for feature %q has no narrative", ErrMalformed, f.ID)
		}

		st := artifact.Story{
			ID:        "S-" + f.ID,
			FeatureID: f.ID,
			Title:     strings.TrimSpace(w.Title),
			Narrative: artifact.Narrative{
				AsA:    strings.TrimSpace(w.Narrative.AsA),
				IWant:  strings.TrimSpace(w.Narrative.IWant),
				SoThat: strings.TrimSpace(w.Narrative.SoThat),
			},
			Points:     w.Points,
			Provenance: artifact.ProvenanceAI,
		}
		for _, cr := range w.Criteria {
			st.Criteria = append(st.Criteria, artifact.Criterion{
				Given: strings.TrimSpace(cr.Given),
				When:  strings.TrimSpace(cr.When),
				Then:  strings.TrimSpace(cr.Then),
			})
		}

		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// --- Test cases ---

const testsSystemPrompt = "You are a QA engineer. " +
	"Generate exactly one manual test case per STORY. " +
	"For every input story return one object with: story_id (echo the input id), " +
	"title, preconditions (array of strings), steps (array of strings), and " +
	"expected (array of strings, EXACTLY one expected outcome per step). " +
	"Return ONLY a JSON array, no markdown and no explanations."

// GenerateTests derives one test case per input story via a single API
// call, with the same all-or-nothing validation as GenerateStories.
func (c *Client) GenerateTests(ctx context.Context, stories []artifact.Story) ([]artifact.TestCase, error) {
	if len(stories) == 0 {
		return nil, fmt.Errorf("%w: no stories in request", artifact.ErrInvalidInput)
	}

	input, err := json.Marshal(stories)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal stories: %w", err)
	}
	prompt := testsSystemPrompt + "\n\nSTORIES_JSON:\n" + string(input)

	raw, err := c.generate(ctx, "tests", prompt)
	if err != nil {
		return nil, err
	}

	var wire []wireTestCase
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("%w: decoding test cases: %v", ErrMalformed, err)
	}

	return testsFromWire(wire, stories)
}

func testsFromWire(wire []wireTestCase, stories []artifact.Story) ([]artifact.TestCase, error) {
	byStory := make(map[string]wireTestCase, len(wire))
	known := make(map[string]bool, len(stories))
	for _, s := range stories {
		known[s.ID] = true
	}

	for i, w := range wire {
		if !known[w.StoryID] {
			return nil, fmt.Errorf("%w: test case %d references unknown story %q", ErrMalformed, i, w.StoryID)
		}
		if _, dup := byStory[w.StoryID]; dup {
			return nil, fmt.Errorf("%w: multiple test cases for story %q", ErrMalformed, w.StoryID)
		}
		byStory[w.StoryID] = w
	}

	out := make([]artifact.TestCase, 0, len(stories))
	for _, s := range stories {
		w, ok := byStory[s.ID]
		if !ok {
			return nil, fmt.Errorf("%w: no test case for story %q", ErrMalformed, s.ID)
		}

		tc := artifact.TestCase{
			ID:            "T-" + s.ID,
			StoryID:       s.ID,
			Title:         strings.TrimSpace(w.Title),
			Preconditions: trimAll(w.Preconditions),
			Steps:         trimAll(w.Steps),
			Expected:      trimAll(w.Expected),
			Provenance:    artifact.ProvenanceAI,
		}

		if err := tc.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		out = append(out, tc)
	}
	return out, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// --- Transport ---

// generate makes one generateContent call under the client's timeout and
// returns the model's text output with any markdown fences stripped.
func (c *Client) generate(ctx context.Context, stage, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.sendOnce(callCtx, prompt)
	elapsed := time.Since(start)

	// Record against the parent context; the call context may already
	// be past its deadline when the call timed out.
	if c.recorder != nil {
		status, failReason := "ok", ""
		if err != nil {
			status = "failed"
			failReason = classifyError(err)
		}
		c.recorder.RecordRequest(ctx, stage, prompt, text, status, failReason, elapsed)
	}

	if err != nil {
		return "", err
	}
	return stripFences(text), nil
}

func (c *Client) sendOnce(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]any{{"text": prompt}},
			},
		},
		"generationConfig": map[string]any{
			"responseMimeType": "application/json",
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Keep the context error in the chain so timeouts stay
			// distinguishable in the request log.
			return "", fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return parseResponse(respBody)
}

// parseResponse extracts the first candidate's text from a generateContent
// response body.
func parseResponse(body []byte) (string, error) {
	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: parsing response envelope: %v", ErrMalformed, err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrMalformed)
	}
	text := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", fmt.Errorf("%w: empty candidate text", ErrMalformed)
	}
	return text, nil
}

// stripFences removes a surrounding markdown code fence, which some models
// emit even when asked not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// classifyError maps an error to a request-log fail reason.
func classifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "unknown"
	}
}

// Gemini API response envelope.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}
