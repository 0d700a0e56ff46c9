package operation

import (
	"context"
	"fmt"
	"strings"

	"github.com/docpipe/api/internal/model"
	"github.com/docpipe/api/internal/textdoc"
)

// translateExecutor produces a fully translated document directly. No
// approval step: there is no meaningful way to accept half a translation.
type translateExecutor struct {
	runner
}

func (e *translateExecutor) Kind() model.OperationKind { return model.OperationTranslate }

func (e *translateExecutor) Execute(ctx context.Context, in Input) (*Output, error) {
	caller, pc, err := e.callerFor(in.Configs, model.OperationTranslate)
	if err != nil {
		return nil, err
	}

	sections := textdoc.Split(in.Document)
	batches := textdoc.Batches(sections, e.batchSize)
	out := &Output{
		Provider:      pc.Provider,
		Model:         caller.Generator().Model(),
		SectionsTotal: len(sections),
	}
	system := translateSystemPrompt(in.Configs)

	var doc strings.Builder
	lastSection := -1
	for i, batch := range batches {
		if in.Interrupt != nil {
			if err := in.Interrupt(ctx); err != nil {
				return nil, err
			}
		}
		if in.Progress != nil {
			in.Progress(i, len(batches), batchProgressMessage(model.OperationTranslate, batch, i+1, len(batches)))
		}

		text, usage, err := caller.Generate(ctx, system, strings.Join(batch.Paragraphs, "\n\n"))
		out.Usage.Add(usage)
		if err != nil {
			return nil, fmt.Errorf("translate stage failed on batch %d/%d: %w", i+1, len(batches), err)
		}

		// Section headings are carried over untranslated from the source
		// structure so the document shape survives.
		if batch.SectionIndex != lastSection {
			if doc.Len() > 0 {
				doc.WriteString("\n\n")
			}
			if batch.SectionTitle != "" {
				doc.WriteString(batch.SectionTitle)
				doc.WriteString("\n\n")
			}
			lastSection = batch.SectionIndex
		} else {
			doc.WriteString("\n\n")
		}
		doc.WriteString(strings.TrimSpace(text))
	}

	out.OutputDocument = doc.String()
	out.CostUSD = e.pricing.CostFor(out.Model, out.Usage.PromptTokens, out.Usage.ResponseTokens)
	return out, nil
}
