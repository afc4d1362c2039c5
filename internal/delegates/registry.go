/*
Package delegates provides the delegate registry and catalog.
*/
package delegates

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/josephgoksu/IdeaForge/internal/delegates/core"
	"github.com/josephgoksu/IdeaForge/internal/delegates/impl"
	"github.com/josephgoksu/IdeaForge/internal/project"
)

// Registry errors.
var (
	ErrDuplicateID = errors.New("delegate already registered")
	ErrUnknownKind = errors.New("no constructor for delegate kind")
)

// BulkResult summarizes a RegisterAll call.
type BulkResult struct {
	Registered int      `json:"registered"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// Registry indexes instantiated delegates by ID and by stage. It is safe for
// concurrent use.
type Registry struct {
	constructors map[core.Kind]impl.Constructor

	mu          sync.RWMutex
	byID        map[string]core.Delegate
	byStage     map[project.Stage][]core.Delegate
	descriptors map[string]core.Descriptor
}

// NewRegistry returns an empty registry using the built-in constructors.
func NewRegistry() *Registry {
	return NewRegistryWithConstructors(impl.Constructors)
}

// NewRegistryWithConstructors returns an empty registry using constructors.
func NewRegistryWithConstructors(constructors map[core.Kind]impl.Constructor) *Registry {
	return &Registry{
		constructors: constructors,
		byID:         make(map[string]core.Delegate),
		byStage:      make(map[project.Stage][]core.Delegate),
		descriptors:  make(map[string]core.Descriptor),
	}
}

// Register instantiates and stores the delegate described by desc. Inactive
// descriptors are skipped with a warning and report registered=false.
func (r *Registry) Register(desc core.Descriptor) (registered bool, err error) {
	if !desc.Active {
		slog.Warn("skipping inactive delegate", "delegate_id", desc.ID, "stage", int(desc.Stage))
		return false, nil
	}
	if err := desc.Validate(); err != nil {
		return false, err
	}
	construct, ok := r.constructors[desc.Kind]
	if !ok {
		return false, fmt.Errorf("delegate %q: %w: %s", desc.ID, ErrUnknownKind, desc.Kind)
	}

	r.mu.RLock()
	_, exists := r.byID[desc.ID]
	r.mu.RUnlock()
	if exists {
		return false, fmt.Errorf("delegate %q: %w", desc.ID, ErrDuplicateID)
	}

	d, err := construct(desc)
	if err != nil {
		return false, fmt.Errorf("construct delegate %q: %w", desc.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[desc.ID]; exists {
		return false, fmt.Errorf("delegate %q: %w", desc.ID, ErrDuplicateID)
	}
	r.byID[desc.ID] = d
	r.byStage[desc.Stage] = append(r.byStage[desc.Stage], d)
	r.descriptors[desc.ID] = desc
	slog.Debug("registered delegate", "delegate_id", desc.ID, "kind", desc.Kind, "stage", int(desc.Stage))
	return true, nil
}

// RegisterAll registers every descriptor. A failing descriptor is recorded in
// the result and does not stop the batch.
func (r *Registry) RegisterAll(descs []core.Descriptor) BulkResult {
	var res BulkResult
	for _, desc := range descs {
		registered, err := r.Register(desc)
		switch {
		case err != nil:
			res.Failed++
			res.Errors = append(res.Errors, err.Error())
		case registered:
			res.Registered++
		default:
			res.Skipped++
		}
	}
	return res
}

// GetByID returns the delegate with id.
func (r *Registry) GetByID(id string) (core.Delegate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// GetByStage returns the delegates for stage in registration order. The
// slice is a copy and is empty when the stage has no delegates.
func (r *Registry) GetByStage(stage project.Stage) []core.Delegate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds := r.byStage[stage]
	out := make([]core.Delegate, len(ds))
	copy(out, ds)
	return out
}

// Unregister removes the delegate from both indexes.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	delete(r.descriptors, id)

	stage := d.Stage()
	ds := r.byStage[stage]
	for i, cur := range ds {
		if cur.ID() == id {
			r.byStage[stage] = append(ds[:i:i], ds[i+1:]...)
			break
		}
	}
	if len(r.byStage[stage]) == 0 {
		delete(r.byStage, stage)
	}
	return true
}

// ValidateStageCoverage returns the stages among required (default: all six)
// that have no delegate.
func (r *Registry) ValidateStageCoverage(required ...project.Stage) []project.Stage {
	if len(required) == 0 {
		required = project.AllStages()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []project.Stage
	for _, s := range required {
		if len(r.byStage[s]) == 0 {
			missing = append(missing, s)
		}
	}
	return missing
}

// Descriptors returns the registered descriptors ordered by stage then ID.
func (r *Registry) Descriptors() []core.Descriptor {
	r.mu.RLock()
	out := make([]core.Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of registered delegates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
