package operation

import (
	"fmt"
	"strings"

	"github.com/docpipe/api/internal/model"
	"github.com/docpipe/api/internal/textdoc"
)

const suggestionFormat = `Respond with a JSON array only, no prose and no markdown fences. Each element:
{"originalText": "<exact text copied verbatim from the document>", "proposedText": "<replacement text>", "reason": "<one sentence>", "category": "<short label>"}
originalText must be copied character for character from the input so it can be located later. Return [] when nothing needs changing.`

func adjustSystemPrompt(c model.OperationConfigs) string {
	var b strings.Builder
	b.WriteString("You are a careful document editor. Apply the following instructions to the text you are given, proposing targeted edits rather than rewriting everything:\n\n")
	if c.Adjust != nil {
		b.WriteString(c.Adjust.Instructions)
	}
	b.WriteString("\n\n")
	b.WriteString(suggestionFormat)
	return b.String()
}

func updateSystemPrompt(c model.OperationConfigs) string {
	var b strings.Builder
	b.WriteString("You are a legal document reviewer. Find references to laws, regulations, article numbers and official bodies that are outdated or renamed, and propose the current wording.")
	if c.Update != nil {
		fmt.Fprintf(&b, " Jurisdiction: %s.", c.Update.Jurisdiction)
		if c.Update.EffectiveDate != "" {
			fmt.Fprintf(&b, " Check validity as of %s.", c.Update.EffectiveDate)
		}
	}
	b.WriteString(" Use the category field for the reference being updated.\n\n")
	b.WriteString(suggestionFormat)
	return b.String()
}

func improveSystemPrompt(c model.OperationConfigs) string {
	focus := "clarity"
	if c.Improve != nil && c.Improve.Focus != "" {
		focus = c.Improve.Focus
	}
	return fmt.Sprintf("You are a writing editor. Propose edits that improve the text's %s while preserving its meaning. Prefer small precise edits over wholesale rewrites.\n\n%s", focus, suggestionFormat)
}

func adaptSystemPrompt(c model.OperationConfigs) string {
	var b strings.Builder
	b.WriteString("You are a communications editor. Propose edits that adapt the text")
	if c.Adapt != nil {
		fmt.Fprintf(&b, " for a %s audience", c.Adapt.Audience)
		if c.Adapt.Tone != "" {
			fmt.Fprintf(&b, " in a %s tone", c.Adapt.Tone)
		}
	}
	b.WriteString(". Keep the factual content intact; change register, vocabulary and sentence length.\n\n")
	b.WriteString(suggestionFormat)
	return b.String()
}

func translateSystemPrompt(c model.OperationConfigs) string {
	target := ""
	source := ""
	if c.Translate != nil {
		target = c.Translate.TargetLanguage
		source = c.Translate.SourceLanguage
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional translator. Translate the text into %s", target)
	if source != "" {
		fmt.Fprintf(&b, " from %s", source)
	}
	b.WriteString(". Preserve markdown formatting, paragraph breaks and inline markup exactly. Respond with the translated text only, no commentary.")
	return b.String()
}

func batchUserPrompt(b textdoc.Batch) string {
	var sb strings.Builder
	if b.SectionTitle != "" {
		fmt.Fprintf(&sb, "Section: %s\n\n", b.SectionTitle)
	}
	sb.WriteString(strings.Join(b.Paragraphs, "\n\n"))
	return sb.String()
}
