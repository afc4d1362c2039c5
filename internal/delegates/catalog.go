package delegates

import (
	_ "embed"
	"fmt"

	"github.com/josephgoksu/IdeaForge/internal/delegates/core"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinCatalog []byte

type catalogFile struct {
	Delegates []core.Descriptor `yaml:"delegates"`
}

// Override changes fields of a built-in descriptor. Nil fields are left as is.
type Override struct {
	ID          string  `yaml:"id"`
	Name        *string `yaml:"name,omitempty"`
	Description *string `yaml:"description,omitempty"`
	Prompt      *string `yaml:"prompt,omitempty"`
	Active      *bool   `yaml:"active,omitempty"`
}

type overlayFile struct {
	Delegates []Override `yaml:"delegates"`
}

// BuiltinCatalog returns the descriptors shipped with the binary.
func BuiltinCatalog() ([]core.Descriptor, error) {
	return parseCatalog(builtinCatalog)
}

func parseCatalog(data []byte) ([]core.Descriptor, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return f.Delegates, nil
}

// LoadCatalog returns the built-in catalog with the overlay at path applied.
// An empty path, or a path that does not exist, yields the built-in catalog.
// Overrides for unknown IDs are rejected; an overlay cannot add delegates.
func LoadCatalog(fs afero.Fs, path string) ([]core.Descriptor, error) {
	descs, err := BuiltinCatalog()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return descs, nil
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("stat catalog overlay: %w", err)
	}
	if !exists {
		return descs, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read catalog overlay: %w", err)
	}
	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse catalog overlay %s: %w", path, err)
	}

	index := make(map[string]int, len(descs))
	for i, d := range descs {
		index[d.ID] = i
	}
	for _, o := range overlay.Delegates {
		i, ok := index[o.ID]
		if !ok {
			return nil, fmt.Errorf("catalog overlay %s: unknown delegate %q", path, o.ID)
		}
		d := &descs[i]
		if o.Name != nil {
			d.Name = *o.Name
		}
		if o.Description != nil {
			d.Description = *o.Description
		}
		if o.Prompt != nil {
			d.Prompt = *o.Prompt
		}
		if o.Active != nil {
			d.Active = *o.Active
		}
	}
	return descs, nil
}
