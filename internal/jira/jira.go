// Package jira fetches epics from Jira Cloud and maps them to features.
// Only the search surface is implemented: StoryForge ingests, it never
// writes back to Jira.
package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HendryAvila/storyforge/internal/artifact"
)

// ErrNotConfigured marks a client built without the full credential set.
var ErrNotConfigured = errors.New("jira: missing JIRA_BASE_URL, JIRA_EMAIL or JIRA_API_TOKEN")

// ErrRequest marks a search that reached Jira but came back non-OK.
var ErrRequest = errors.New("jira: search request failed")

const (
	searchPath     = "/rest/api/3/search/jql"
	maxResults     = 50
	defaultTimeout = 30 * time.Second
)

// Client is a minimal Jira Cloud search client using basic auth.
type Client struct {
	baseURL string
	email   string
	token   string
	client  *http.Client
}

// New builds a client. All three credential parts are required.
func New(baseURL, email, token string) (*Client, error) {
	if baseURL == "" || email == "" || token == "" {
		return nil, ErrNotConfigured
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		email:   email,
		token:   token,
		client:  &http.Client{Timeout: defaultTimeout},
	}, nil
}

// --- Wire types ---

type searchRequest struct {
	JQL        string   `json:"jql"`
	Fields     []string `json:"fields"`
	MaxResults int      `json:"maxResults"`
}

type searchResponse struct {
	Issues []issue `json:"issues"`
}

type issue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary   string `json:"summary"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Description json.RawMessage `json:"description"`
	} `json:"fields"`
}

// Search runs the JQL query and returns one feature per epic in the
// result set. Non-epic issues are silently skipped.
func (c *Client) Search(ctx context.Context, jql string) ([]artifact.Feature, error) {
	if strings.TrimSpace(jql) == "" {
		return nil, fmt.Errorf("%w: empty jql query", artifact.ErrInvalidInput)
	}

	body, err := json.Marshal(searchRequest{
		JQL:        jql,
		Fields:     []string{"summary", "description", "issuetype", "key"},
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("jira: encoding search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("jira: building request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jira: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRequest, resp.StatusCode, truncate(string(raw), 200))
	}

	var sr searchResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("jira: decoding search response: %w", err)
	}

	features := make([]artifact.Feature, 0, len(sr.Issues))
	for _, is := range sr.Issues {
		if !strings.EqualFold(is.Fields.IssueType.Name, "epic") {
			continue
		}
		features = append(features, artifact.Feature{
			ID:          is.ID,
			Key:         is.Key,
			Title:       strings.TrimSpace(is.Fields.Summary),
			Description: flattenDescription(is.Fields.Description),
		})
	}
	return features, nil
}

func (c *Client) authHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.email+":"+c.token))
}

// --- ADF flattening ---

// adfNode is the subset of the Atlassian Document Format we care about:
// top-level blocks with inline text children.
type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text"`
	Content []adfNode `json:"content"`
}

// flattenDescription extracts plain text from a Jira description field,
// which is either a bare string or an ADF document.
func flattenDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil || doc.Type != "doc" {
		return ""
	}

	var parts []string
	for _, block := range doc.Content {
		for _, inline := range block.Content {
			if inline.Type == "text" && inline.Text != "" {
				parts = append(parts, inline.Text)
			}
		}
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
