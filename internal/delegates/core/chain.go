package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/josephgoksu/IdeaForge/internal/llm"
)

var (
	// ErrValidation marks delegate failures caused by bad input or output
	// rather than by the generation service.
	ErrValidation = errors.New("validation failed")
	// ErrEmptyContent is returned when the generated artifact has no content.
	ErrEmptyContent = fmt.Errorf("%w: generated artifact is empty", ErrValidation)
)

// ParseFunc turns raw model output into artifact content.
type ParseFunc func(ctx context.Context, raw string) (string, error)

// generation carries per-invocation state through the graph. Node errors are
// recorded here so the caller sees the original error value.
type generation struct {
	gen    llm.Generator
	genCtx map[string]string
	raw    string
	err    error
}

type generationKey struct{}

func fromContext(ctx context.Context) (*generation, error) {
	g, ok := ctx.Value(generationKey{}).(*generation)
	if !ok || g.gen == nil {
		return nil, fmt.Errorf("no generator in context")
	}
	return g, nil
}

// Chain is a reusable pipeline: Template -> Generate -> Parse.
type Chain struct {
	chain compose.Runnable[map[string]any, string]
	name  string
}

// NewChain compiles an Eino graph for one delegate prompt template.
func NewChain(ctx context.Context, name, templateStr string, parse ParseFunc) (*Chain, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if parse == nil {
		parse = CleanContent
	}

	templateFunc := func(ctx context.Context, input map[string]any) (string, error) {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, input); err != nil {
			return "", record(ctx, fmt.Errorf("%w: execute template: %w", ErrValidation, err))
		}
		return buf.String(), nil
	}

	generateFunc := func(ctx context.Context, prompt string) (string, error) {
		g, err := fromContext(ctx)
		if err != nil {
			return "", err
		}
		out, err := g.gen.Generate(ctx, prompt, g.genCtx)
		if err != nil {
			return "", record(ctx, err)
		}
		g.raw = out
		return out, nil
	}

	parserFunc := func(ctx context.Context, raw string) (string, error) {
		content, err := parse(ctx, raw)
		if err != nil {
			return "", record(ctx, err)
		}
		return content, nil
	}

	graph := compose.NewGraph[map[string]any, string]()

	_ = graph.AddLambdaNode("prompt", compose.InvokableLambda(templateFunc))
	_ = graph.AddLambdaNode("generate", compose.InvokableLambda(generateFunc))
	_ = graph.AddLambdaNode("parser", compose.InvokableLambda(parserFunc))

	_ = graph.AddEdge(compose.START, "prompt")
	_ = graph.AddEdge("prompt", "generate")
	_ = graph.AddEdge("generate", "parser")
	_ = graph.AddEdge("parser", compose.END)

	compiled, err := graph.Compile(ctx, compose.WithGraphName(name))
	if err != nil {
		return nil, fmt.Errorf("compile chain: %w", err)
	}

	return &Chain{chain: compiled, name: name}, nil
}

func record(ctx context.Context, err error) error {
	if g, ok := ctx.Value(generationKey{}).(*generation); ok && g.err == nil {
		g.err = err
	}
	return err
}

// Invoke runs the chain with gen as the generation service. It returns the
// parsed content, the raw model output and the elapsed time.
func (c *Chain) Invoke(ctx context.Context, gen llm.Generator, vars map[string]any, genCtx map[string]string) (string, string, time.Duration, error) {
	start := time.Now()
	g := &generation{gen: gen, genCtx: genCtx}
	ctx = context.WithValue(ctx, generationKey{}, g)

	output, err := c.chain.Invoke(ctx, vars)
	duration := time.Since(start)
	if err != nil {
		if g.err != nil {
			return "", g.raw, duration, g.err
		}
		return "", g.raw, duration, fmt.Errorf("%s chain: %w", c.name, err)
	}
	return output, g.raw, duration, nil
}

// CleanContent trims whitespace and a wrapping markdown code fence.
func CleanContent(_ context.Context, raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if strings.HasPrefix(content, "```") {
		if nl := strings.IndexByte(content, '\n'); nl >= 0 {
			content = content[nl+1:]
		} else {
			content = ""
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}
