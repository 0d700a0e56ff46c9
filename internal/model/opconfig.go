package model

import "fmt"

// OperationConfigs holds the per-operation configuration for a pipeline run.
// It is a closed tagged union keyed by operation kind: exactly the field for
// each selected operation must be set. Fixed at creation, never mutated.
type OperationConfigs struct {
	Adjust    *AdjustConfig    `json:"adjust,omitempty"`
	Update    *UpdateConfig    `json:"update,omitempty"`
	Improve   *ImproveConfig   `json:"improve,omitempty"`
	Adapt     *AdaptConfig     `json:"adapt,omitempty"`
	Translate *TranslateConfig `json:"translate,omitempty"`
}

// ProviderConfig selects the generation provider and model for one stage.
type ProviderConfig struct {
	Provider Provider `json:"provider" validate:"required,oneof=openai gemini"`
	Model    string   `json:"model" validate:"required"`
}

// AdjustConfig configures the custom-instruction operation.
type AdjustConfig struct {
	ProviderConfig
	Instructions string `json:"instructions" validate:"required,min=3"`
}

// UpdateConfig configures the legal-reference update operation.
type UpdateConfig struct {
	ProviderConfig
	Jurisdiction string `json:"jurisdiction" validate:"required"`
	// EffectiveDate is the reference date laws are checked against,
	// formatted YYYY-MM-DD.
	EffectiveDate string `json:"effectiveDate" validate:"omitempty,datetime=2006-01-02"`
}

// ImproveConfig configures the rewrite-for-clarity operation.
type ImproveConfig struct {
	ProviderConfig
	// Focus narrows what to improve: clarity, conciseness, or structure.
	Focus string `json:"focus" validate:"omitempty,oneof=clarity conciseness structure"`
}

// AdaptConfig configures the style/audience adaptation operation.
type AdaptConfig struct {
	ProviderConfig
	Audience Audience `json:"audience" validate:"required,oneof=general expert beginner executive children"`
	Tone     Tone     `json:"tone" validate:"omitempty,oneof=formal neutral conversational"`
}

// TranslateConfig configures the translation operation.
type TranslateConfig struct {
	ProviderConfig
	TargetLanguage string `json:"targetLanguage" validate:"required,min=2"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
}

// For returns the provider selection for an operation kind. The bool is
// false when no config is present for that kind.
func (c OperationConfigs) For(kind OperationKind) (ProviderConfig, bool) {
	switch kind {
	case OperationAdjust:
		if c.Adjust != nil {
			return c.Adjust.ProviderConfig, true
		}
	case OperationUpdate:
		if c.Update != nil {
			return c.Update.ProviderConfig, true
		}
	case OperationImprove:
		if c.Improve != nil {
			return c.Improve.ProviderConfig, true
		}
	case OperationAdapt:
		if c.Adapt != nil {
			return c.Adapt.ProviderConfig, true
		}
	case OperationTranslate:
		if c.Translate != nil {
			return c.Translate.ProviderConfig, true
		}
	}
	return ProviderConfig{}, false
}

// ValidateFor checks that the selected operation list is non-empty, contains
// only known kinds without duplicates, and that a config exists for every
// selected operation.
func (c OperationConfigs) ValidateFor(selected []OperationKind) error {
	if len(selected) == 0 {
		return fmt.Errorf("at least one operation must be selected")
	}
	seen := make(map[OperationKind]bool, len(selected))
	for _, op := range selected {
		if !op.IsValid() {
			return fmt.Errorf("unknown operation %q", op)
		}
		if seen[op] {
			return fmt.Errorf("operation %q selected twice", op)
		}
		seen[op] = true
		if _, ok := c.For(op); !ok {
			return fmt.Errorf("missing config for operation %q", op)
		}
	}
	return nil
}
