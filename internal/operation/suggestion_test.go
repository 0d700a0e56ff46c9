package operation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/docpipe/api/internal/config"
	"github.com/docpipe/api/internal/llm"
	"github.com/docpipe/api/internal/model"
)

// scriptedGenerator returns canned responses in call order.
type scriptedGenerator struct {
	family    model.Provider
	modelName string
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, system, user string) (string, llm.Usage, error) {
	g.prompts = append(g.prompts, user)
	usage := llm.Usage{PromptTokens: 100, ResponseTokens: 50, TotalTokens: 150}
	if g.err != nil {
		return "", usage, g.err
	}
	i := g.calls
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	g.calls++
	return g.responses[i], usage, nil
}

func (g *scriptedGenerator) Family() model.Provider { return g.family }
func (g *scriptedGenerator) Model() string          { return g.modelName }
func (g *scriptedGenerator) IsConfigured() bool     { return true }

func testPricing() config.PricingConfig {
	return config.PricingConfig{Models: map[string]config.ModelPricing{
		"test-model": {InputPer1K: 0.001, OutputPer1K: 0.002},
	}}
}

func testRegistry(gen *scriptedGenerator, batchSize int) *Registry {
	factory := func(family model.Provider, modelName string) (llm.Generator, error) {
		return gen, nil
	}
	callers := llm.NewRegistry(factory, config.RetryConfig{
		CallTimeout:       time.Second,
		OpenAIMaxAttempts: 1,
		GeminiMaxAttempts: 1,
	})
	return NewRegistry(callers, testPricing(), batchSize)
}

func improveConfigs() model.OperationConfigs {
	return model.OperationConfigs{
		Improve: &model.ImproveConfig{
			ProviderConfig: model.ProviderConfig{Provider: model.ProviderOpenAI, Model: "test-model"},
			Focus:          "clarity",
		},
	}
}

func TestSuggestionExecutor(t *testing.T) {
	gen := &scriptedGenerator{
		family:    model.ProviderOpenAI,
		modelName: "test-model",
		responses: []string{`[{"originalText":"Paragraph one.","proposedText":"Clearer paragraph one.","reason":"simpler","category":"clarity"}]`},
	}
	reg := testRegistry(gen, 15)
	exec, err := reg.For(model.OperationImprove)
	if err != nil {
		t.Fatalf("For() error = %v", err)
	}

	var progressCalls int
	out, err := exec.Execute(context.Background(), Input{
		Document: "# Title\n\nParagraph one.\n\nParagraph two.",
		Configs:  improveConfigs(),
		Progress: func(current, total int, message string) { progressCalls++ },
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !out.RequiresApproval {
		t.Error("improve output should require approval")
	}
	if len(out.Suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(out.Suggestions))
	}
	s := out.Suggestions[0]
	if s.ID == "" {
		t.Error("suggestion has no id")
	}
	if s.OriginalText != "Paragraph one." || s.ProposedText != "Clearer paragraph one." {
		t.Errorf("suggestion = %+v", s)
	}
	if out.Provider != model.ProviderOpenAI || out.Model != "test-model" {
		t.Errorf("provenance = %s/%s", out.Provider, out.Model)
	}
	if out.CostUSD <= 0 {
		t.Errorf("cost = %f, want > 0", out.CostUSD)
	}
	if progressCalls == 0 {
		t.Error("progress callback never fired")
	}
}

func TestSuggestionExecutorBatching(t *testing.T) {
	gen := &scriptedGenerator{
		family:    model.ProviderOpenAI,
		modelName: "test-model",
		responses: []string{`[]`},
	}
	reg := testRegistry(gen, 2)
	exec, _ := reg.For(model.OperationImprove)

	var parts []string
	for i := 0; i < 5; i++ {
		parts = append(parts, fmt.Sprintf("paragraph %d", i))
	}
	_, err := exec.Execute(context.Background(), Input{
		Document: strings.Join(parts, "\n\n"),
		Configs:  improveConfigs(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gen.calls != 3 {
		t.Errorf("provider calls = %d, want 3 batches of size 2", gen.calls)
	}
}

func TestSuggestionExecutorProgressNeverFullMidStage(t *testing.T) {
	gen := &scriptedGenerator{
		family:    model.ProviderOpenAI,
		modelName: "test-model",
		responses: []string{`[]`},
	}
	reg := testRegistry(gen, 1)
	exec, _ := reg.For(model.OperationImprove)

	type checkpoint struct{ current, total int }
	var checkpoints []checkpoint
	_, err := exec.Execute(context.Background(), Input{
		Document: "paragraph one\n\nparagraph two\n\nparagraph three",
		Configs:  improveConfigs(),
		Progress: func(current, total int, message string) {
			checkpoints = append(checkpoints, checkpoint{current, total})
		},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(checkpoints) != 3 {
		t.Fatalf("checkpoints = %d, want one per batch", len(checkpoints))
	}
	// Each checkpoint counts finished batches, so a poll during the last
	// provider call still reads below 100%.
	for i, cp := range checkpoints {
		if cp.current != i || cp.total != 3 {
			t.Errorf("checkpoint %d = %d/%d, want %d/3", i, cp.current, cp.total, i)
		}
	}
}

func TestSuggestionExecutorMalformedPayload(t *testing.T) {
	gen := &scriptedGenerator{
		family:    model.ProviderOpenAI,
		modelName: "test-model",
		responses: []string{`here are your suggestions: ...`},
	}
	reg := testRegistry(gen, 15)
	exec, _ := reg.For(model.OperationAdjust)

	_, err := exec.Execute(context.Background(), Input{
		Document: "some text",
		Configs: model.OperationConfigs{
			Adjust: &model.AdjustConfig{
				ProviderConfig: model.ProviderConfig{Provider: model.ProviderOpenAI, Model: "test-model"},
				Instructions:   "shorten it",
			},
		},
	})
	if err == nil {
		t.Fatal("Execute() expected error for malformed payload")
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, malformed output must not be retried", gen.calls)
	}
}

func TestSuggestionExecutorInterrupt(t *testing.T) {
	gen := &scriptedGenerator{
		family:    model.ProviderOpenAI,
		modelName: "test-model",
		responses: []string{`[]`},
	}
	reg := testRegistry(gen, 15)
	exec, _ := reg.For(model.OperationImprove)

	stop := errors.New("stop requested")
	_, err := exec.Execute(context.Background(), Input{
		Document:  "some text",
		Configs:   improveConfigs(),
		Interrupt: func(ctx context.Context) error { return stop },
	})
	if !errors.Is(err, stop) {
		t.Fatalf("Execute() error = %v, want interrupt error", err)
	}
	if gen.calls != 0 {
		t.Errorf("calls = %d, interrupt must fire before the provider call", gen.calls)
	}
}

func TestParseSuggestionsCodeFence(t *testing.T) {
	text := "```json\n[{\"originalText\":\"a\",\"proposedText\":\"b\"}]\n```"
	items, err := parseSuggestions(text)
	if err != nil {
		t.Fatalf("parseSuggestions() error = %v", err)
	}
	if len(items) != 1 || items[0].OriginalText != "a" {
		t.Errorf("items = %+v", items)
	}
}

func TestParseSuggestionsSkipsEmptyOriginal(t *testing.T) {
	items, err := parseSuggestions(`[{"originalText":"","proposedText":"b"},{"originalText":"x","proposedText":"y"}]`)
	if err != nil {
		t.Fatalf("parseSuggestions() error = %v", err)
	}
	if len(items) != 1 {
		t.Errorf("got %d items, want 1", len(items))
	}
}

func TestTranslateExecutor(t *testing.T) {
	gen := &scriptedGenerator{
		family:    model.ProviderGemini,
		modelName: "test-model",
		responses: []string{"uno\n\ndos"},
	}
	reg := testRegistry(gen, 15)
	exec, _ := reg.For(model.OperationTranslate)

	out, err := exec.Execute(context.Background(), Input{
		Document: "# Numbers\n\none\n\ntwo",
		Configs: model.OperationConfigs{
			Translate: &model.TranslateConfig{
				ProviderConfig: model.ProviderConfig{Provider: model.ProviderGemini, Model: "test-model"},
				TargetLanguage: "Spanish",
			},
		},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.RequiresApproval {
		t.Error("translate must not require approval")
	}
	if !strings.Contains(out.OutputDocument, "# Numbers") {
		t.Errorf("output lost the heading: %q", out.OutputDocument)
	}
	if !strings.Contains(out.OutputDocument, "uno") {
		t.Errorf("output lost the translation: %q", out.OutputDocument)
	}
	if out.SectionsTotal != 1 {
		t.Errorf("sections total = %d, want 1", out.SectionsTotal)
	}
}
