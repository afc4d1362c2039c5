package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// PolicyFile represents a loaded Rego policy file.
type PolicyFile struct {
	Path    string `json:"path"`
	Name    string `json:"name"` // base name without .rego
	Content string `json:"content"`
}

// Loader reads .rego files through an afero.Fs, so tests can use an
// in-memory filesystem.
type Loader struct {
	fs   afero.Fs
	path string // a single .rego file or a directory of them
}

// NewLoader creates a loader for path, which may name a .rego file or a
// directory scanned recursively.
func NewLoader(fs afero.Fs, path string) *Loader {
	return &Loader{fs: fs, path: path}
}

// LoadAll returns every policy under the configured path, sorted by path.
// A missing path yields no policies and no error.
func (l *Loader) LoadAll() ([]*PolicyFile, error) {
	info, err := l.fs.Stat(l.path)
	if os.IsNotExist(err) {
		return []*PolicyFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat policies path: %w", err)
	}

	if !info.IsDir() {
		p, err := l.LoadFile(l.path)
		if err != nil {
			return nil, err
		}
		return []*PolicyFile{p}, nil
	}

	var policies []*PolicyFile
	err = afero.Walk(l.fs, l.path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".rego") {
			return nil
		}
		p, err := l.LoadFile(path)
		if err != nil {
			return err
		}
		policies = append(policies, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk policies directory: %w", err)
	}

	sort.Slice(policies, func(i, j int) bool { return policies[i].Path < policies[j].Path })
	return policies, nil
}

// LoadFile loads a single .rego policy file by path.
func (l *Loader) LoadFile(path string) (*PolicyFile, error) {
	content, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("load policy %s: %w", path, err)
	}
	return &PolicyFile{
		Path:    path,
		Name:    strings.TrimSuffix(filepath.Base(path), ".rego"),
		Content: string(content),
	}, nil
}
