// Package export renders the artifact store's contents into one of the
// supported serialization formats. Rendering is pure and read-only: it
// works from a Snapshot, never mutates anything, and is safe to call from
// concurrent requests.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/HendryAvila/storyforge/internal/artifact"
)

// ErrUnsupportedFormat marks a render request for an unknown format.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// Supported format names.
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// Formats lists the supported format names for tool definitions.
var Formats = []string{FormatJSON, FormatCSV, FormatMarkdown}

// listSeparator joins ordered sequence fields inside a single CSV cell.
// Distinct from the column delimiter on purpose.
const listSeparator = " | "

// Render serializes the snapshot in the requested format. An empty
// snapshot renders a valid, well-formed document, not an error.
func Render(format string, snap artifact.Snapshot) (string, error) {
	switch format {
	case FormatJSON:
		return renderJSON(snap)
	case FormatCSV:
		return renderCSV(snap)
	case FormatMarkdown:
		return renderMarkdown(snap)
	default:
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, format, strings.Join(Formats, ", "))
	}
}

// --- JSON ---

func renderJSON(snap artifact.Snapshot) (string, error) {
	// Empty slices must render as [], not null.
	if snap.Features == nil {
		snap.Features = []artifact.Feature{}
	}
	if snap.Stories == nil {
		snap.Stories = []artifact.Story{}
	}
	if snap.TestCases == nil {
		snap.TestCases = []artifact.TestCase{}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: marshaling snapshot: %w", err)
	}
	return string(data) + "\n", nil
}

// --- CSV ---

// renderCSV emits one row per artifact across all three classes, with a
// TYPE discriminator column. Sequence fields are joined with listSeparator.
func renderCSV(snap artifact.Snapshot) (string, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"TYPE", "ID", "PARENT", "TITLE", "DETAIL", "EXTRA", "PROVENANCE"},
	}

	for _, f := range snap.Features {
		rows = append(rows, []string{"FEATURE", f.ID, "", f.Title, f.Description, f.Key, ""})
	}
	for _, s := range snap.Stories {
		criteria := make([]string, len(s.Criteria))
		for i, c := range s.Criteria {
			criteria[i] = c.String()
		}
		rows = append(rows, []string{
			"STORY", s.ID, s.FeatureID,
			s.Title + " :: " + s.Narrative.String(),
			strings.Join(criteria, listSeparator),
			strconv.Itoa(s.Points),
			string(s.Provenance),
		})
	}
	for _, tc := range snap.TestCases {
		rows = append(rows, []string{
			"TEST", tc.ID, tc.StoryID, tc.Title,
			strings.Join(tc.Steps, listSeparator),
			strings.Join(tc.Expected, listSeparator),
			string(tc.Provenance),
		})
	}

	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("export: writing csv: %w", err)
	}
	w.Flush()
	return buf.String(), nil
}

// --- Markdown ---

// markdownTemplate renders a heading per feature with nested bullet lists
// for its stories and each story's test cases. Stories and tests are
// pre-grouped by the caller so the template stays declarative.
const markdownTemplate = `# Generated Stories & Tests
{{range .Features}}
## {{.Feature.Title}}{{if .Feature.Key}} ({{.Feature.Key}}){{end}}
{{if .Feature.Description}}
{{.Feature.Description}}
{{end}}{{range .Stories}}
- **{{.Story.ID}}: {{.Story.Title}}** ({{.Story.Points}} pts, {{.Story.Provenance}})
  - {{.Story.Narrative}}
{{- range .Story.Criteria}}
  - {{.}}
{{- end}}
{{- range .TestCases}}
  - Test **{{.ID}}: {{.Title}}** ({{.Provenance}})
{{- range .Steps}}
    - {{.}}
{{- end}}
{{- end}}
{{- end}}
{{end}}`

var mdTmpl = template.Must(template.New("markdown").Parse(markdownTemplate))

type storyGroup struct {
	Story     artifact.Story
	TestCases []artifact.TestCase
}

type featureGroup struct {
	Feature artifact.Feature
	Stories []storyGroup
}

func renderMarkdown(snap artifact.Snapshot) (string, error) {
	testsByStory := make(map[string][]artifact.TestCase)
	for _, tc := range snap.TestCases {
		testsByStory[tc.StoryID] = append(testsByStory[tc.StoryID], tc)
	}
	storiesByFeature := make(map[string][]storyGroup)
	for _, s := range snap.Stories {
		storiesByFeature[s.FeatureID] = append(storiesByFeature[s.FeatureID], storyGroup{
			Story:     s,
			TestCases: testsByStory[s.ID],
		})
	}

	groups := make([]featureGroup, 0, len(snap.Features))
	for _, f := range snap.Features {
		groups = append(groups, featureGroup{Feature: f, Stories: storiesByFeature[f.ID]})
	}

	var buf strings.Builder
	if err := mdTmpl.Execute(&buf, struct{ Features []featureGroup }{groups}); err != nil {
		return "", fmt.Errorf("export: rendering markdown: %w", err)
	}
	return buf.String(), nil
}
