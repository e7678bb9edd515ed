package ai

import (
	"testing"

	"github.com/example/mindmentor/pkg/models"
)

func TestSelectTier(t *testing.T) {
	cases := map[TaskType]models.CostTier{
		TaskGradingDescriptive: models.TierPremium,
		TaskLessonGeneration:   models.TierStandard,
		TaskQuestionGeneration: models.TierStandard,
		TaskHintGeneration:     models.TierEconomy,
		TaskSimpleExplanation:  models.TierEconomy,
		TaskType("unknown"):    models.TierStandard,
	}
	for task, want := range cases {
		if got := SelectTier(task); got != want {
			t.Errorf("SelectTier(%s) = %s, want %s", task, got, want)
		}
	}
	if !IsExpensive(TaskGradingDescriptive) || IsExpensive(TaskHintGeneration) {
		t.Errorf("IsExpensive misclassified")
	}
}

func TestModelCatalogFallback(t *testing.T) {
	c := ModelCatalog{models.TierStandard: "std"}
	if got := c.Model(models.TierPremium); got != "std" {
		t.Errorf("Model(premium) = %s, want standard fallback", got)
	}
}
