package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ContentStore holds every method's extracted document, keyed by component.
// Documents are arbitrary JSON: the store never interprets them beyond the
// emptiness check that decides eligibility.
type ContentStore struct {
	manifest *Manifest
	docs     map[string]map[string]any
}

// LoadContent reads the content file of every method in the manifest. Each
// file is one JSON object mapping component names to extracted fragments.
func LoadContent(m *Manifest) (*ContentStore, error) {
	docs := make(map[string]map[string]any, len(m.Methods))
	for _, meth := range m.Methods {
		data, err := os.ReadFile(filepath.Join(m.dir, meth.File))
		if err != nil {
			return nil, eris.Wrapf(err, "manifest: read content for method %s", meth.ID)
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, eris.Wrapf(err, "manifest: unmarshal content for method %s", meth.ID)
		}
		docs[meth.ID] = doc
	}
	return &ContentStore{manifest: m, docs: docs}, nil
}

// Content returns the fragment a method extracted for a component. The second
// return is false when the method is unknown or the fragment is empty — an
// empty fragment is indistinguishable from a missing one on purpose, since
// neither can be compared.
func (cs *ContentStore) Content(methodID, component string) (any, bool) {
	doc, ok := cs.docs[methodID]
	if !ok {
		return nil, false
	}
	frag, ok := doc[component]
	if !ok || IsEmpty(frag) {
		return nil, false
	}
	return frag, true
}

// Eligible returns the ids of methods with non-empty content for the
// component, preserving manifest order. The scheduler's challenger draw
// indexes into this slice, so its order must be stable across calls.
func (cs *ContentStore) Eligible(component string) []string {
	var ids []string
	for _, meth := range cs.manifest.Methods {
		if _, ok := cs.Content(meth.ID, component); ok {
			ids = append(ids, meth.ID)
		}
	}
	return ids
}

// IsEmpty reports whether a decoded JSON value carries no comparable content.
// Emptiness is recursive: a whitespace-only string, an empty or all-empty
// array, and an object whose every value is empty are all empty. Numbers and
// booleans always carry content.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		for _, item := range val {
			if !IsEmpty(item) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, item := range val {
			if !IsEmpty(item) {
				return false
			}
		}
		return true
	}
	return false
}
