package file

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
)

// Manifest is the YAML form of a fabric definition:
//
//	name: it-ops
//	description: Incidents and KB
//	chunk_size: 512
//	source:
//	  kind: servicenow
//	  options:
//	    instance: acme
//	    tables: incident,kb_knowledge
type Manifest struct {
	driving.FabricSpec `yaml:",inline"`
	Source             ManifestSource `yaml:"source"`
}

// ManifestSource is the source block of a manifest. Options accept scalars
// and lists; lists are joined with commas.
type ManifestSource struct {
	Kind    string         `yaml:"kind"`
	Enabled *bool          `yaml:"enabled"`
	Options map[string]any `yaml:"options"`
}

// LoadManifest reads a manifest file. A path of "-" reads r instead.
func LoadManifest(path string, r io.Reader) (driving.FabricSpec, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(r)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return driving.FabricSpec{}, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a manifest. Unknown fields are rejected.
func ParseManifest(data []byte) (driving.FabricSpec, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return driving.FabricSpec{}, fmt.Errorf("%w: manifest is empty", domain.ErrInvalidInput)
		}
		return driving.FabricSpec{}, fmt.Errorf("%w: manifest: %w", domain.ErrInvalidInput, err)
	}

	spec := m.FabricSpec
	kind := domain.SourceKind(strings.ToLower(strings.TrimSpace(m.Source.Kind)))
	if !kind.IsValid() {
		return driving.FabricSpec{}, fmt.Errorf("%w: unknown source kind %q", domain.ErrInvalidInput, m.Source.Kind)
	}
	spec.Source = domain.SourceConfig{
		Kind:    kind,
		Enabled: kind != domain.SourceKindNone,
	}
	if m.Source.Enabled != nil {
		spec.Source.Enabled = *m.Source.Enabled
	}
	if len(m.Source.Options) > 0 {
		spec.Source.Options = make(map[string]string, len(m.Source.Options))
		for k, v := range m.Source.Options {
			spec.Source.Options[k] = optionString(v)
		}
	}
	return spec, nil
}

func optionString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, optionString(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}
