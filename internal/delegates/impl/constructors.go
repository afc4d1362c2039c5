package impl

import (
	"github.com/josephgoksu/IdeaForge/internal/delegates/core"
	"github.com/josephgoksu/IdeaForge/internal/project"
)

// Constructor builds a delegate from its descriptor.
type Constructor func(desc core.Descriptor) (core.Delegate, error)

// Constructors maps every delegate variant to its constructor. The registry
// refuses descriptors whose kind is missing here.
var Constructors = map[core.Kind]Constructor{
	// Stage 1: Ideation
	core.KindProjectDescription: NewProjectDescription,

	// Stage 2: Research
	core.KindMarketResearch:     NewMarketResearch,
	core.KindCompetitorAnalysis: NewCompetitorAnalysis,

	// Stage 3: Design
	core.KindProductRequirements:   NewProductRequirements,
	core.KindTechnicalArchitecture: NewTechnicalArchitecture,
	core.KindUserStories:           NewUserStories,
	core.KindDataModel:             NewDataModel,
	core.KindUIDesign:              NewUIDesign,

	// Stage 4: Planning
	core.KindImplementationPlan: NewImplementationPlan,
	core.KindAPISpecification:   NewAPISpecification,
	core.KindTestPlan:           NewTestPlan,

	// Stage 5: Launch
	core.KindBusinessModel:     NewBusinessModel,
	core.KindMarketingStrategy: NewMarketingStrategy,
	core.KindLaunchPlan:        NewLaunchPlan,

	// Stage 6: Growth
	core.KindGrowthStrategy: NewGrowthStrategy,
	core.KindFinalReport:    NewFinalReport,
}

// NewProjectDescription expands the raw idea; it sees no prior artifacts.
func NewProjectDescription(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindProjectDescription)
}

func NewMarketResearch(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindMarketResearch,
		withPrior(project.KindProjectDescription))
}

func NewCompetitorAnalysis(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindCompetitorAnalysis,
		withPrior(project.KindProjectDescription))
}

func NewProductRequirements(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindProductRequirements, withAllPrior())
}

func NewTechnicalArchitecture(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindTechnicalArchitecture,
		withPrior(project.KindProjectDescription, project.KindMarketResearch))
}

func NewUserStories(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindUserStories, withAllPrior())
}

func NewDataModel(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindDataModel,
		withPrior(project.KindProjectDescription))
}

func NewUIDesign(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindUIDesign,
		withPrior(project.KindProjectDescription, project.KindCompetitorAnalysis))
}

func NewImplementationPlan(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindImplementationPlan,
		withPrior(project.KindProductRequirements, project.KindTechnicalArchitecture, project.KindUserStories, project.KindDataModel))
}

func NewAPISpecification(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindAPISpecification,
		withPrior(project.KindTechnicalArchitecture, project.KindDataModel, project.KindUserStories))
}

func NewTestPlan(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindTestPlan,
		withPrior(project.KindProductRequirements, project.KindUserStories, project.KindTechnicalArchitecture))
}

func NewBusinessModel(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindBusinessModel,
		withPrior(project.KindProjectDescription, project.KindMarketResearch, project.KindCompetitorAnalysis))
}

func NewMarketingStrategy(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindMarketingStrategy,
		withPrior(project.KindMarketResearch, project.KindCompetitorAnalysis, project.KindProductRequirements))
}

func NewLaunchPlan(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindLaunchPlan,
		withPrior(project.KindProductRequirements, project.KindImplementationPlan, project.KindTestPlan))
}

func NewGrowthStrategy(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindGrowthStrategy,
		withPrior(project.KindMarketResearch, project.KindBusinessModel, project.KindMarketingStrategy, project.KindLaunchPlan))
}

// NewFinalReport summarizes the whole project, so it reads every artifact.
func NewFinalReport(desc core.Descriptor) (core.Delegate, error) {
	return newArtifactDelegate(desc, core.KindFinalReport, withAllPrior())
}
