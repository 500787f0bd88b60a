// Package ingest parses uploaded mock feature files. It accepts the same
// document shape in JSON or YAML so teams without Jira access can feed the
// pipeline from fixtures.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/storyforge/internal/artifact"
)

// document is the accepted file shape: a top-level "features" list.
type document struct {
	Features []featureRecord `json:"features" yaml:"features"`
}

type featureRecord struct {
	ID          string `json:"id" yaml:"id"`
	Key         string `json:"key" yaml:"key"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// Format names accepted by ParseFeaturesAs.
const (
	FormatAuto = ""
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ParseFeatures decodes a feature document, sniffing the encoding: JSON
// first, then YAML. Returns the features in file order with blank IDs left
// blank for the store to assign.
func ParseFeatures(data []byte) ([]artifact.Feature, error) {
	return ParseFeaturesAs(data, FormatAuto)
}

// ParseFeaturesAs decodes a feature document in the named format. An empty
// format sniffs.
func ParseFeaturesAs(data []byte, format string) ([]artifact.Feature, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: empty document", artifact.ErrInvalidInput)
	}

	var doc document
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: invalid json: %v", artifact.ErrInvalidInput, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: invalid yaml: %v", artifact.ErrInvalidInput, err)
		}
	case FormatAuto:
		if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
			if yamlErr := yaml.Unmarshal(data, &doc); yamlErr != nil {
				return nil, fmt.Errorf("%w: neither valid json (%v) nor yaml (%v)",
					artifact.ErrInvalidInput, jsonErr, yamlErr)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q (use json or yaml)", artifact.ErrInvalidInput, format)
	}

	if len(doc.Features) == 0 {
		return nil, fmt.Errorf("%w: document has no features", artifact.ErrInvalidInput)
	}

	features := make([]artifact.Feature, 0, len(doc.Features))
	for i, rec := range doc.Features {
		title := strings.TrimSpace(rec.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: feature %d has no title", artifact.ErrInvalidInput, i)
		}
		features = append(features, artifact.Feature{
			ID:          strings.TrimSpace(rec.ID),
			Key:         strings.TrimSpace(rec.Key),
			Title:       title,
			Description: strings.TrimSpace(rec.Description),
		})
	}
	return features, nil
}
