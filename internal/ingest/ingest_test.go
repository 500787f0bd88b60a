package ingest

import (
	"errors"
	"testing"

	"github.com/HendryAvila/storyforge/internal/artifact"
)

const jsonDoc = `{
  "features": [
    {"id": "F-001", "key": "PROJ-1", "title": "Login", "description": "Users log in"},
    {"title": "  Export  "}
  ]
}`

const yamlDoc = `
features:
  - id: F-001
    key: PROJ-1
    title: Login
    description: Users log in
  - title: Export
`

func TestParseFeatures_JSON(t *testing.T) {
	features, err := ParseFeatures([]byte(jsonDoc))
	if err != nil {
		t.Fatalf("ParseFeatures failed: %v", err)
	}
	if len(features) != 2 {
		t.Fatalf("got %d features, want 2", len(features))
	}
	if features[0].ID != "F-001" || features[0].Key != "PROJ-1" {
		t.Errorf("first feature = %+v", features[0])
	}
	if features[1].Title != "Export" {
		t.Errorf("title not trimmed: %q", features[1].Title)
	}
	if features[1].ID != "" {
		t.Errorf("missing id should stay blank for the store to assign, got %q", features[1].ID)
	}
}

func TestParseFeatures_YAMLSniffed(t *testing.T) {
	features, err := ParseFeatures([]byte(yamlDoc))
	if err != nil {
		t.Fatalf("ParseFeatures failed: %v", err)
	}
	if len(features) != 2 || features[0].ID != "F-001" || features[1].Title != "Export" {
		t.Errorf("features = %+v", features)
	}
}

func TestParseFeaturesAs_ExplicitFormat(t *testing.T) {
	if _, err := ParseFeaturesAs([]byte(yamlDoc), FormatJSON); !errors.Is(err, artifact.ErrInvalidInput) {
		t.Errorf("yaml document parsed as explicit json: err = %v", err)
	}
	if _, err := ParseFeaturesAs([]byte(yamlDoc), FormatYAML); err != nil {
		t.Errorf("explicit yaml failed: %v", err)
	}
	if _, err := ParseFeaturesAs([]byte(jsonDoc), "toml"); !errors.Is(err, artifact.ErrInvalidInput) {
		t.Errorf("unknown format should be rejected, err = %v", err)
	}
}

func TestParseFeatures_Invalid(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"empty document", "   \n"},
		{"not a document", `{{{`},
		{"no features", `{"features": []}`},
		{"missing title", `{"features": [{"id": "F-001", "description": "no title"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFeatures([]byte(tc.doc))
			if !errors.Is(err, artifact.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestParseFeatures_OutputStorable(t *testing.T) {
	features, err := ParseFeatures([]byte(jsonDoc))
	if err != nil {
		t.Fatalf("ParseFeatures failed: %v", err)
	}
	store := artifact.NewStore()
	added, err := store.AddFeatures(features)
	if err != nil {
		t.Fatalf("parsed features rejected by store: %v", err)
	}
	if added[1].ID == "" {
		t.Error("store should have assigned an id to the blank feature")
	}
}
