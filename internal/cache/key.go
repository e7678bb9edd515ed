package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/example/mindmentor/pkg/models"
)

type keyMaterial struct {
	Template string         `json:"template"`
	Params   map[string]any `json:"params"`
	Tier     string         `json:"tier"`
}

// Key digests a generation request. encoding/json writes map keys sorted at
// every depth, so parameter insertion order never changes the key.
func Key(templateID string, params map[string]any, tier models.CostTier) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(keyMaterial{Template: templateID, Params: params, Tier: string(tier)})
	if err != nil {
		return "", fmt.Errorf("%w: params not serializable: %v", models.ErrValidation, err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
