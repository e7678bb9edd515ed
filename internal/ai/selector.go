package ai

import "github.com/example/mindmentor/pkg/models"

// TaskType identifies what a generation is for
type TaskType string

const (
	TaskGradingDescriptive  TaskType = "grading_descriptive"
	TaskComplexQuestionGen  TaskType = "complex_question_gen"
	TaskDetailedExplanation TaskType = "detailed_explanation"

	TaskLessonGeneration   TaskType = "lesson_generation"
	TaskQuestionGeneration TaskType = "question_generation"
	TaskConceptExplanation TaskType = "concept_explanation"
	TaskExampleGeneration  TaskType = "example_generation"

	TaskHintGeneration    TaskType = "hint_generation"
	TaskSimpleExplanation TaskType = "simple_explanation"
	TaskDefinition        TaskType = "definition"
	TaskQuickAnswer       TaskType = "quick_answer"
)

// Only answer judging goes to the expensive tier by default
var taskTiers = map[TaskType]models.CostTier{
	TaskGradingDescriptive:  models.TierPremium,
	TaskComplexQuestionGen:  models.TierPremium,
	TaskDetailedExplanation: models.TierPremium,

	TaskLessonGeneration:   models.TierStandard,
	TaskQuestionGeneration: models.TierStandard,
	TaskConceptExplanation: models.TierStandard,
	TaskExampleGeneration:  models.TierStandard,

	TaskHintGeneration:    models.TierEconomy,
	TaskSimpleExplanation: models.TierEconomy,
	TaskDefinition:        models.TierEconomy,
	TaskQuickAnswer:       models.TierEconomy,
}

// SelectTier maps a task to its cost tier. Unknown tasks get Standard.
func SelectTier(task TaskType) models.CostTier {
	if tier, ok := taskTiers[task]; ok {
		return tier
	}
	return models.TierStandard
}

// IsExpensive reports whether the task routes to the Premium tier
func IsExpensive(task TaskType) bool {
	return SelectTier(task) == models.TierPremium
}

// ModelCatalog names the provider model for each tier
type ModelCatalog map[models.CostTier]string

// DefaultModelCatalog is used when no overrides are configured
func DefaultModelCatalog() ModelCatalog {
	return ModelCatalog{
		models.TierEconomy:  "gpt-4o-mini",
		models.TierStandard: "gpt-4o",
		models.TierPremium:  "gpt-4.1",
	}
}

// Model returns the model id for a tier, falling back to Standard
func (c ModelCatalog) Model(tier models.CostTier) string {
	if m, ok := c[tier]; ok && m != "" {
		return m
	}
	return c[models.TierStandard]
}
