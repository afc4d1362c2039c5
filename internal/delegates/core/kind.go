package core

import (
	"fmt"
	"strings"

	"github.com/josephgoksu/IdeaForge/internal/project"
)

// Kind is the closed set of delegate variants. Each variant produces exactly
// one artifact kind and therefore belongs to exactly one stage.
type Kind string

const (
	KindProjectDescription    Kind = "project-description"
	KindMarketResearch        Kind = "market-research"
	KindCompetitorAnalysis    Kind = "competitor-analysis"
	KindProductRequirements   Kind = "product-requirements"
	KindTechnicalArchitecture Kind = "technical-architecture"
	KindUserStories           Kind = "user-stories"
	KindDataModel             Kind = "data-model"
	KindUIDesign              Kind = "ui-design"
	KindImplementationPlan    Kind = "implementation-plan"
	KindAPISpecification      Kind = "api-specification"
	KindTestPlan              Kind = "test-plan"
	KindBusinessModel         Kind = "business-model"
	KindMarketingStrategy     Kind = "marketing-strategy"
	KindLaunchPlan            Kind = "launch-plan"
	KindGrowthStrategy        Kind = "growth-strategy"
	KindFinalReport           Kind = "final-report"
)

// AllKinds returns every delegate variant in stage order.
func AllKinds() []Kind {
	kinds := make([]Kind, 0, 16)
	for _, ak := range project.AllArtifactKinds() {
		kinds = append(kinds, KindFor(ak))
	}
	return kinds
}

// KindFor returns the delegate variant producing artifact kind ak.
func KindFor(ak project.ArtifactKind) Kind {
	return Kind(strings.ReplaceAll(strings.ToLower(string(ak)), "_", "-"))
}

// ArtifactKind returns the artifact kind this variant produces.
func (k Kind) ArtifactKind() project.ArtifactKind {
	return project.ArtifactKind(strings.ReplaceAll(strings.ToUpper(string(k)), "-", "_"))
}

// Stage returns the stage this variant runs in, or 0 for an unknown kind.
func (k Kind) Stage() project.Stage {
	stage, _ := project.StageOf(k.ArtifactKind())
	return stage
}

// Valid reports whether k is one of the known variants.
func (k Kind) Valid() bool {
	_, ok := project.StageOf(k.ArtifactKind())
	return ok
}

// ParseKind converts s to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.TrimSpace(strings.ToLower(s)), "_", "-"))
	if !k.Valid() {
		return "", fmt.Errorf("unknown delegate kind %q", s)
	}
	return k, nil
}
