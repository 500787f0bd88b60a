package jira

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/HendryAvila/storyforge/internal/artifact"
)

const searchPayload = `{
  "issues": [
    {
      "id": "10001",
      "key": "PROJ-1",
      "fields": {
        "summary": "  User authentication  ",
        "issuetype": {"name": "Epic"},
        "description": {
          "type": "doc",
          "content": [
            {"type": "paragraph", "content": [
              {"type": "text", "text": "Users can sign up"},
              {"type": "text", "text": "and log in."}
            ]}
          ]
        }
      }
    },
    {
      "id": "10002",
      "key": "PROJ-2",
      "fields": {
        "summary": "Fix login button",
        "issuetype": {"name": "Bug"},
        "description": "plain text description"
      }
    },
    {
      "id": "10003",
      "key": "PROJ-3",
      "fields": {
        "summary": "Reporting",
        "issuetype": {"name": "epic"},
        "description": "Dashboards and exports"
      }
    }
  ]
}`

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "dev@example.com", "secret-token")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestNew_MissingCredentials(t *testing.T) {
	cases := []struct{ base, email, token string }{
		{"", "a@b.c", "tok"},
		{"https://x.atlassian.net", "", "tok"},
		{"https://x.atlassian.net", "a@b.c", ""},
		{"", "", ""},
	}
	for _, tc := range cases {
		if _, err := New(tc.base, tc.email, tc.token); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("New(%q, %q, %q) err = %v, want ErrNotConfigured", tc.base, tc.email, tc.token, err)
		}
	}
}

func TestSearch_FiltersEpicsAndFlattensADF(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/3/search/jql" {
			t.Errorf("path = %s, want /rest/api/3/search/jql", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("dev@example.com:secret-token"))
		if got := r.Header.Get("Authorization"); got != wantAuth {
			t.Errorf("auth header = %q, want %q", got, wantAuth)
		}

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		if req.JQL != `project = PROJ AND issuetype = Epic` {
			t.Errorf("jql = %q", req.JQL)
		}
		if req.MaxResults != maxResults {
			t.Errorf("maxResults = %d, want %d", req.MaxResults, maxResults)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchPayload))
	})

	features, err := c.Search(context.Background(), `project = PROJ AND issuetype = Epic`)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(features) != 2 {
		t.Fatalf("got %d features, want 2 (the bug is filtered out)", len(features))
	}

	first := features[0]
	if first.ID != "10001" || first.Key != "PROJ-1" {
		t.Errorf("first feature identity = %s/%s", first.ID, first.Key)
	}
	if first.Title != "User authentication" {
		t.Errorf("title not trimmed: %q", first.Title)
	}
	if first.Description != "Users can sign up and log in." {
		t.Errorf("ADF not flattened: %q", first.Description)
	}

	// Epic matching is case-insensitive; plain-string descriptions pass through.
	second := features[1]
	if second.Key != "PROJ-3" || second.Description != "Dashboards and exports" {
		t.Errorf("second feature = %+v", second)
	}
}

func TestSearch_EmptyJQL(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent for empty jql")
	})

	_, err := c.Search(context.Background(), "   ")
	if !errors.Is(err, artifact.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSearch_NonOKStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessages":["The value 'bogus' does not exist"]}`, http.StatusBadRequest)
	})

	_, err := c.Search(context.Background(), "project = bogus")
	if !errors.Is(err, ErrRequest) {
		t.Fatalf("err = %v, want ErrRequest", err)
	}
}

func TestSearch_NoEpicsInResult(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"issues": [{"id": "1", "key": "P-1", "fields": {"summary": "A task", "issuetype": {"name": "Task"}}}]}`))
	})

	features, err := c.Search(context.Background(), "project = P")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(features) != 0 {
		t.Errorf("got %d features, want 0", len(features))
	}
}

func TestFlattenDescription(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", ``, ""},
		{"plain string", `"just text"`, "just text"},
		{"adf doc", `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}]}`, "a b"},
		{"non-doc object", `{"type":"table"}`, ""},
		{"null", `null`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := flattenDescription(json.RawMessage(tc.raw)); got != tc.want {
				t.Errorf("flattenDescription(%s) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}
