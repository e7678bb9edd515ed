package cache

import (
	"errors"
	"testing"

	"github.com/example/mindmentor/pkg/models"
)

func TestKeyOrderIndependent(t *testing.T) {
	a := map[string]any{}
	a["topic"] = "Kinematics"
	a["difficulty"] = "Medium"
	a["nested"] = map[string]any{"x": 1, "y": []string{"p", "q"}}

	b := map[string]any{}
	b["nested"] = map[string]any{"y": []string{"p", "q"}, "x": 1}
	b["difficulty"] = "Medium"
	b["topic"] = "Kinematics"

	ka, err := Key("lesson", a, models.TierStandard)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	kb, _ := Key("lesson", b, models.TierStandard)
	if ka != kb {
		t.Errorf("keys differ for equal params: %s vs %s", ka, kb)
	}
	if len(ka) != 64 {
		t.Errorf("key length = %d, want sha256 hex", len(ka))
	}
}

func TestKeyDistinguishesInputs(t *testing.T) {
	p := map[string]any{"topic": "Kinematics"}
	base, _ := Key("lesson", p, models.TierStandard)
	other := []struct {
		name     string
		template string
		params   map[string]any
		tier     models.CostTier
	}{
		{"template", "hint", p, models.TierStandard},
		{"tier", "lesson", p, models.TierPremium},
		{"params", "lesson", map[string]any{"topic": "Optics"}, models.TierStandard},
	}
	for _, o := range other {
		k, _ := Key(o.template, o.params, o.tier)
		if k == base {
			t.Errorf("%s change did not change key", o.name)
		}
	}
}

func TestKeyNilParamsEqualsEmpty(t *testing.T) {
	a, _ := Key("hint", nil, models.TierEconomy)
	b, _ := Key("hint", map[string]any{}, models.TierEconomy)
	if a != b {
		t.Errorf("nil and empty params produced different keys")
	}
}

func TestKeyRejectsUnserializable(t *testing.T) {
	_, err := Key("hint", map[string]any{"f": func() {}}, models.TierEconomy)
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}
