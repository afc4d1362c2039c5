/*
Package impl provides the concrete delegates, one per artifact kind.
*/
package impl

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/josephgoksu/IdeaForge/internal/delegates/core"
	"github.com/josephgoksu/IdeaForge/internal/llm"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/josephgoksu/IdeaForge/internal/util"
)

const truncatedMarker = "\n\n[truncated]"

// ArtifactDelegate renders its prompt template over the project and selected
// prior artifacts, generates one artifact and validates its content.
type ArtifactDelegate struct {
	core.BaseDelegate
	kind     project.ArtifactKind
	allPrior bool
	prior    []project.ArtifactKind
	chain    *core.Chain
}

type option func(*ArtifactDelegate)

// withPrior feeds artifacts of the given kinds to the prompt.
func withPrior(kinds ...project.ArtifactKind) option {
	return func(d *ArtifactDelegate) { d.prior = kinds }
}

// withAllPrior feeds every earlier artifact to the prompt.
func withAllPrior() option {
	return func(d *ArtifactDelegate) { d.allPrior = true }
}

func newArtifactDelegate(desc core.Descriptor, want core.Kind, opts ...option) (core.Delegate, error) {
	if desc.Kind != want {
		return nil, fmt.Errorf("delegate %q: constructor for %s got kind %s", desc.ID, want, desc.Kind)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	chain, err := core.NewChain(context.Background(), desc.ID, desc.Prompt, core.CleanContent)
	if err != nil {
		return nil, fmt.Errorf("delegate %q: %w", desc.ID, err)
	}

	d := &ArtifactDelegate{
		BaseDelegate: core.NewBaseDelegate(desc),
		kind:         desc.Kind.ArtifactKind(),
		chain:        chain,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ArtifactKind returns the kind of artifact the delegate produces.
func (d *ArtifactDelegate) ArtifactKind() project.ArtifactKind { return d.kind }

type artifactView struct {
	Name    string
	Type    string
	Content string
}

// Run generates the delegate's artifact.
func (d *ArtifactDelegate) Run(ctx context.Context, in core.Input) (core.Output, error) {
	out := core.Output{DelegateID: d.ID()}
	if in.Generator == nil {
		return out, fmt.Errorf("delegate %s: no generation service configured", d.ID())
	}
	if in.Stage != d.Stage() {
		return out, fmt.Errorf("%w: delegate %s runs in stage %d, not %d", core.ErrValidation, d.ID(), d.Stage(), in.Stage)
	}

	budget := in.MaxContextTokens
	if budget <= 0 {
		budget = core.DefaultMaxContextTokens
	}
	views := fitToBudget(d.selectPrior(in.Artifacts), llm.EstimateBudgetChars(budget))

	vars := map[string]any{
		"Idea":         in.Project.Idea,
		"ProjectID":    in.Project.ID,
		"Stage":        int(in.Stage),
		"StageName":    in.Stage.String(),
		"ArtifactType": string(d.kind),
		"ArtifactName": d.kind.DisplayName(),
		"Artifacts":    views,
	}
	genCtx := map[string]string{
		"project_id":    in.Project.ID,
		"stage":         strconv.Itoa(int(in.Stage)) + " (" + in.Stage.String() + ")",
		"artifact_type": string(d.kind),
	}

	content, raw, duration, err := d.chain.Invoke(ctx, in.Generator, vars, genCtx)
	out.RawOutput = raw
	out.Duration = duration
	if err != nil {
		return out, err
	}

	out.Artifacts = []project.Artifact{{
		ID:        util.NewArtifactID(),
		ProjectID: in.Project.ID,
		TaskID:    in.TaskID,
		Name:      d.kind.DisplayName(),
		Content:   content,
		Kind:      d.kind,
		Stage:     in.Stage,
		CreatedAt: time.Now().UTC(),
	}}
	return out, nil
}

func (d *ArtifactDelegate) selectPrior(artifacts []project.Artifact) []project.Artifact {
	if d.allPrior {
		return artifacts
	}
	var out []project.Artifact
	for _, a := range artifacts {
		for _, k := range d.prior {
			if a.Kind == k {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// fitToBudget converts artifacts to template views, truncating contents so
// that their combined length stays within budgetChars. A budget smaller than
// the artifact count leaves only names and truncation markers.
func fitToBudget(artifacts []project.Artifact, budgetChars int) []artifactView {
	views := make([]artifactView, 0, len(artifacts))
	total := 0
	for _, a := range artifacts {
		total += len(a.Content)
	}
	truncate := total > budgetChars && len(artifacts) > 0
	perArtifact := 0
	if truncate && budgetChars > 0 {
		perArtifact = budgetChars / len(artifacts)
	}

	for _, a := range artifacts {
		content := a.Content
		if truncate && len(content) > perArtifact {
			cut := perArtifact
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut] + truncatedMarker
		}
		views = append(views, artifactView{Name: a.Name, Type: string(a.Kind), Content: content})
	}
	return views
}
