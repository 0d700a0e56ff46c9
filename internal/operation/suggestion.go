package operation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/docpipe/api/internal/model"
	"github.com/docpipe/api/internal/textdoc"
)

// suggestionExecutor runs the four approval-gated operations. They share one
// batch loop and differ only in their system prompt.
type suggestionExecutor struct {
	runner
	kind         model.OperationKind
	systemPrompt func(model.OperationConfigs) string
}

func (e *suggestionExecutor) Kind() model.OperationKind { return e.kind }

func (e *suggestionExecutor) Execute(ctx context.Context, in Input) (*Output, error) {
	caller, pc, err := e.callerFor(in.Configs, e.kind)
	if err != nil {
		return nil, err
	}

	sections := textdoc.Split(in.Document)
	batches := textdoc.Batches(sections, e.batchSize)
	out := &Output{
		RequiresApproval: true,
		Provider:         pc.Provider,
		Model:            caller.Generator().Model(),
		SectionsTotal:    len(sections),
	}
	system := e.systemPrompt(in.Configs)

	for i, batch := range batches {
		if in.Interrupt != nil {
			if err := in.Interrupt(ctx); err != nil {
				return nil, err
			}
		}
		// Report the completed count; a poll during the last batch must
		// not read 100% while the stage can still fail.
		if in.Progress != nil {
			in.Progress(i, len(batches), batchProgressMessage(e.kind, batch, i+1, len(batches)))
		}

		text, usage, err := caller.Generate(ctx, system, batchUserPrompt(batch))
		out.Usage.Add(usage)
		if err != nil {
			return nil, fmt.Errorf("%s stage failed on batch %d/%d: %w", e.kind, i+1, len(batches), err)
		}

		items, err := parseSuggestions(text)
		if err != nil {
			return nil, fmt.Errorf("%s stage returned malformed suggestions on batch %d/%d: %w", e.kind, i+1, len(batches), err)
		}
		out.Suggestions = append(out.Suggestions, items...)
	}

	out.CostUSD = e.pricing.CostFor(out.Model, out.Usage.PromptTokens, out.Usage.ResponseTokens)
	return out, nil
}

func batchProgressMessage(kind model.OperationKind, b textdoc.Batch, current, total int) string {
	title := b.SectionTitle
	if title == "" {
		title = "document"
	}
	return fmt.Sprintf("%s: processing %s (%d of %d)", kind, title, current, total)
}

type rawSuggestion struct {
	OriginalText string `json:"originalText"`
	ProposedText string `json:"proposedText"`
	Reason       string `json:"reason"`
	Category     string `json:"category"`
}

// parseSuggestions decodes the provider's JSON suggestion array. A payload
// that does not decode is a fatal stage error; there is no point retrying a
// model that has already answered.
func parseSuggestions(text string) ([]model.Suggestion, error) {
	var raw []rawSuggestion
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &raw); err != nil {
		return nil, err
	}
	suggestions := make([]model.Suggestion, 0, len(raw))
	for _, r := range raw {
		if r.OriginalText == "" {
			continue
		}
		suggestions = append(suggestions, model.Suggestion{
			ID:           uuid.NewString(),
			OriginalText: r.OriginalText,
			ProposedText: r.ProposedText,
			Reason:       r.Reason,
			Category:     r.Category,
		})
	}
	return suggestions, nil
}

// stripCodeFence removes a surrounding markdown code fence, which models add
// even when told not to.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
