/*
Package core provides the foundational types and interfaces for IdeaForge delegates.
*/
package core

import (
	"context"
	"time"

	"github.com/josephgoksu/IdeaForge/internal/llm"
	"github.com/josephgoksu/IdeaForge/internal/project"
)

// Delegate is the interface every generation handler implements.
type Delegate interface {
	ID() string
	Name() string
	Stage() project.Stage
	Run(ctx context.Context, input Input) (Output, error)
}

// Input provides the context for one delegate run.
type Input struct {
	Project   project.Project
	Stage     project.Stage
	TaskID    string
	Artifacts []project.Artifact // produced in stages before Stage
	Generator llm.Generator
	// MaxContextTokens bounds the prior-artifact text sent with the prompt.
	// Zero means DefaultMaxContextTokens.
	MaxContextTokens int
}

// Output captures the result of a delegate run.
type Output struct {
	DelegateID string
	Artifacts  []project.Artifact
	RawOutput  string
	Duration   time.Duration
}

// DefaultMaxContextTokens is the prior-artifact budget when Input leaves it unset.
const DefaultMaxContextTokens = 12000

// BaseDelegate provides the descriptor accessors shared by all delegates.
type BaseDelegate struct {
	desc Descriptor
}

// NewBaseDelegate creates a BaseDelegate for desc.
func NewBaseDelegate(desc Descriptor) BaseDelegate {
	return BaseDelegate{desc: desc}
}

// ID returns the delegate identifier.
func (b *BaseDelegate) ID() string { return b.desc.ID }

// Name returns the display name.
func (b *BaseDelegate) Name() string { return b.desc.Name }

// Stage returns the stage affinity.
func (b *BaseDelegate) Stage() project.Stage { return b.desc.Stage }

// Descriptor returns a copy of the descriptor.
func (b *BaseDelegate) Descriptor() Descriptor { return b.desc }
