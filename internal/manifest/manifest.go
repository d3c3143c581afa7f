// Package manifest loads the study definition: the ordered component list,
// the candidate methods, and each method's extracted content. The manifest is
// read once at startup and treated as immutable for the life of the session.
package manifest

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/caretext/arena-cli/internal/model"
)

// Manifest describes one study: which components are compared and which
// methods compete. Method file references are resolved relative to the
// manifest's own directory.
type Manifest struct {
	Components []string       `yaml:"components" json:"components"`
	Methods    []model.Method `yaml:"methods" json:"methods"`

	dir string
}

// Load reads and validates a manifest YAML file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "manifest: read")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "manifest: unmarshal")
	}
	m.dir = filepath.Dir(path)

	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Components) == 0 {
		return eris.New("manifest: at least one component is required")
	}
	if len(m.Methods) < 2 {
		return eris.New("manifest: at least two methods are required")
	}
	seen := make(map[string]bool, len(m.Methods))
	for _, meth := range m.Methods {
		if meth.ID == "" {
			return eris.New("manifest: method id must not be empty")
		}
		if seen[meth.ID] {
			return eris.Errorf("manifest: duplicate method id %q", meth.ID)
		}
		seen[meth.ID] = true
		if meth.File == "" {
			return eris.Errorf("manifest: method %q has no content file", meth.ID)
		}
	}
	return nil
}

// Method returns the method with the given id, or nil when unknown.
func (m *Manifest) Method(id string) *model.Method {
	for i := range m.Methods {
		if m.Methods[i].ID == id {
			return &m.Methods[i]
		}
	}
	return nil
}

// MethodIDs returns all method ids in manifest order.
func (m *Manifest) MethodIDs() []string {
	ids := make([]string, len(m.Methods))
	for i, meth := range m.Methods {
		ids[i] = meth.ID
	}
	return ids
}

// HasComponent reports whether the component is part of this study.
func (m *Manifest) HasComponent(name string) bool {
	for _, c := range m.Components {
		if c == name {
			return true
		}
	}
	return false
}
