package llm_test

import (
	"encoding/json"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/llm"
)

// listPayload is a minimal structured payload for codec and retry tests:
// a list of items bounded by MaxItems, each item bounded by MaxRationaleLen.
type listPayload struct {
	Items []string `json:"items"`
}

func (p *listPayload) UnmarshalPayload(data []byte) error {
	var parsed listPayload
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	*p = parsed
	return nil
}

func (p *listPayload) Validate(b llm.Budget) *llm.DecodeError {
	if b.MaxItems > 0 && len(p.Items) > b.MaxItems {
		return &llm.DecodeError{Kind: llm.KindConstraintViolation, Field: "items", Bound: b.MaxItems}
	}
	for _, item := range p.Items {
		if b.MaxRationaleLen > 0 && len(item) > b.MaxRationaleLen {
			return &llm.DecodeError{Kind: llm.KindConstraintViolation, Field: "item", Bound: b.MaxRationaleLen}
		}
	}
	return nil
}

func (p *listPayload) Empty() bool {
	return len(p.Items) == 0
}
