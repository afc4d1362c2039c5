package project

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage is one of the six fixed workflow phases, numbered from 1.
type Stage int

const (
	StageIdeation Stage = iota + 1
	StageResearch
	StageDesign
	StagePlanning
	StageLaunch
	StageGrowth
)

const (
	// FirstStage is the stage every project starts in.
	FirstStage = StageIdeation
	// LastStage is the final stage; completing it completes the project.
	LastStage = StageGrowth
)

var stageNames = map[Stage]string{
	StageIdeation: "Ideation",
	StageResearch: "Research",
	StageDesign:   "Design",
	StagePlanning: "Planning",
	StageLaunch:   "Launch",
	StageGrowth:   "Growth",
}

// Valid reports whether s is within [FirstStage, LastStage].
func (s Stage) Valid() bool {
	return s >= FirstStage && s <= LastStage
}

// String returns the stage name.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// AllStages returns stages 1 through 6 in order.
func AllStages() []Stage {
	stages := make([]Stage, 0, int(LastStage))
	for s := FirstStage; s <= LastStage; s++ {
		stages = append(stages, s)
	}
	return stages
}

// ArtifactKind identifies the type of an artifact.
type ArtifactKind string

const (
	KindProjectDescription    ArtifactKind = "PROJECT_DESCRIPTION"
	KindMarketResearch        ArtifactKind = "MARKET_RESEARCH"
	KindCompetitorAnalysis    ArtifactKind = "COMPETITOR_ANALYSIS"
	KindProductRequirements   ArtifactKind = "PRODUCT_REQUIREMENTS"
	KindTechnicalArchitecture ArtifactKind = "TECHNICAL_ARCHITECTURE"
	KindUserStories           ArtifactKind = "USER_STORIES"
	KindDataModel             ArtifactKind = "DATA_MODEL"
	KindUIDesign              ArtifactKind = "UI_DESIGN"
	KindImplementationPlan    ArtifactKind = "IMPLEMENTATION_PLAN"
	KindAPISpecification      ArtifactKind = "API_SPECIFICATION"
	KindTestPlan              ArtifactKind = "TEST_PLAN"
	KindBusinessModel         ArtifactKind = "BUSINESS_MODEL"
	KindMarketingStrategy     ArtifactKind = "MARKETING_STRATEGY"
	KindLaunchPlan            ArtifactKind = "LAUNCH_PLAN"
	KindGrowthStrategy        ArtifactKind = "GROWTH_STRATEGY"
	KindFinalReport           ArtifactKind = "FINAL_REPORT"
)

// stageArtifactKinds is the fixed stage -> allowed artifact kinds table.
// It is not modified at runtime; accessors return copies.
var stageArtifactKinds = map[Stage][]ArtifactKind{
	StageIdeation: {KindProjectDescription},
	StageResearch: {KindMarketResearch, KindCompetitorAnalysis},
	StageDesign: {
		KindProductRequirements,
		KindTechnicalArchitecture,
		KindUserStories,
		KindDataModel,
		KindUIDesign,
	},
	StagePlanning: {KindImplementationPlan, KindAPISpecification, KindTestPlan},
	StageLaunch:   {KindBusinessModel, KindMarketingStrategy, KindLaunchPlan},
	StageGrowth:   {KindGrowthStrategy, KindFinalReport},
}

// KindsForStage returns the artifact kinds allowed in stage.
func KindsForStage(stage Stage) []ArtifactKind {
	kinds := stageArtifactKinds[stage]
	out := make([]ArtifactKind, len(kinds))
	copy(out, kinds)
	return out
}

// AllArtifactKinds returns every artifact kind in stage order.
func AllArtifactKinds() []ArtifactKind {
	var out []ArtifactKind
	for _, s := range AllStages() {
		out = append(out, stageArtifactKinds[s]...)
	}
	return out
}

// StageOf returns the single stage in which kind is valid.
func StageOf(kind ArtifactKind) (Stage, bool) {
	for stage, kinds := range stageArtifactKinds {
		for _, k := range kinds {
			if k == kind {
				return stage, true
			}
		}
	}
	return 0, false
}

// ValidateArtifactKind returns an error unless kind is allowed in stage.
func ValidateArtifactKind(stage Stage, kind ArtifactKind) error {
	if !stage.Valid() {
		return fmt.Errorf("invalid stage %d", stage)
	}
	for _, k := range stageArtifactKinds[stage] {
		if k == kind {
			return nil
		}
	}
	return fmt.Errorf("artifact type %s is not valid in stage %d (%s)", kind, stage, stage)
}

// DisplayName turns MARKET_RESEARCH into "Market Research".
func (k ArtifactKind) DisplayName() string {
	words := strings.ReplaceAll(strings.ToLower(string(k)), "_", " ")
	// Casers are stateful, so one is built per call.
	name := cases.Title(language.English).String(words)
	// Keep well-known acronyms upper case.
	name = strings.ReplaceAll(name, "Api ", "API ")
	name = strings.ReplaceAll(name, "Ui ", "UI ")
	return name
}
