package core

import (
	"context"
	"errors"
	"testing"

	"github.com/josephgoksu/IdeaForge/internal/llm"
	"github.com/josephgoksu/IdeaForge/internal/project"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	out        string
	err        error
	lastPrompt string
	lastCtx    map[string]string
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func (g *scriptedGenerator) Generate(_ context.Context, prompt string, genCtx map[string]string) (string, error) {
	g.lastPrompt = prompt
	g.lastCtx = genCtx
	return g.out, g.err
}

func (g *scriptedGenerator) IsHealthy(context.Context) bool { return true }

var _ llm.Generator = (*scriptedGenerator)(nil)

func TestKind_RoundTrip(t *testing.T) {
	kinds := AllKinds()
	require.Len(t, kinds, 16)
	for _, k := range kinds {
		assert.True(t, k.Valid(), "kind %s", k)
		assert.Equal(t, k, KindFor(k.ArtifactKind()))
		assert.True(t, k.Stage().Valid())
	}
	assert.Equal(t, project.KindMarketResearch, KindMarketResearch.ArtifactKind())
	assert.Equal(t, project.StageResearch, KindMarketResearch.Stage())
	assert.Equal(t, project.StageDesign, KindUIDesign.Stage())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("MARKET_RESEARCH")
	require.NoError(t, err)
	assert.Equal(t, KindMarketResearch, k)

	k, err = ParseKind(" final-report ")
	require.NoError(t, err)
	assert.Equal(t, KindFinalReport, k)

	_, err = ParseKind("poem")
	assert.Error(t, err)
}

func TestDescriptor_Validate(t *testing.T) {
	valid := Descriptor{ID: "market-research", Name: "Market Research", Kind: KindMarketResearch, Stage: project.StageResearch, Prompt: "p", Active: true}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(d *Descriptor)
	}{
		{"missing id", func(d *Descriptor) { d.ID = "" }},
		{"missing prompt", func(d *Descriptor) { d.Prompt = "" }},
		{"stage out of range", func(d *Descriptor) { d.Stage = 7 }},
		{"unknown kind", func(d *Descriptor) { d.Kind = "poem" }},
		{"kind in wrong stage", func(d *Descriptor) { d.Stage = project.StageDesign }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			assert.Error(t, d.Validate())
		})
	}
}

func TestChain_Invoke(t *testing.T) {
	ctx := context.Background()
	chain, err := NewChain(ctx, "test", "Write about {{.Idea}}", nil)
	require.NoError(t, err)

	gen := &scriptedGenerator{out: "```markdown\n# Result\nbody\n```"}
	content, raw, _, err := chain.Invoke(ctx, gen, map[string]any{"Idea": "bakeries"}, map[string]string{"stage": "1"})
	require.NoError(t, err)
	assert.Equal(t, "# Result\nbody", content)
	assert.Equal(t, gen.out, raw)
	assert.Equal(t, "Write about bakeries", gen.lastPrompt)
	assert.Equal(t, "1", gen.lastCtx["stage"])
}

func TestChain_PreservesGeneratorError(t *testing.T) {
	ctx := context.Background()
	chain, err := NewChain(ctx, "test", "{{.Idea}}", nil)
	require.NoError(t, err)

	svcErr := &llm.ServiceError{Service: "openai", Code: llm.CodeRateLimit, Err: errors.New("429")}
	_, _, _, err = chain.Invoke(ctx, &scriptedGenerator{err: svcErr}, map[string]any{"Idea": "x"}, nil)

	var se *llm.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, llm.CodeRateLimit, se.Code)
}

func TestChain_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	chain, err := NewChain(ctx, "test", "{{.Idea}}", nil)
	require.NoError(t, err)

	_, _, _, err = chain.Invoke(ctx, &scriptedGenerator{out: "   "}, map[string]any{"Idea": "x"}, nil)
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.ErrorIs(t, err, ErrValidation)

	_, _, _, err = chain.Invoke(ctx, &scriptedGenerator{out: "ok"}, map[string]any{}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewChain(ctx, "bad", "{{.Idea", nil)
	assert.Error(t, err)
}

func TestCleanContent(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "  plain  ", want: "plain"},
		{raw: "```\ncode\n```", want: "code"},
		{raw: "```md\n# Title\n```  ", want: "# Title"},
		{raw: "```", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := CleanContent(context.Background(), tt.raw)
		if tt.wantErr {
			assert.Error(t, err, "raw %q", tt.raw)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
