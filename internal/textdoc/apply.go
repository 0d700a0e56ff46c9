package textdoc

import "strings"

// Edit is one accepted span replacement.
type Edit struct {
	Original string
	Proposed string
}

// ApplyEdits rewrites doc by replacing each edit's original text with its
// proposed text, matching by exact equality. Each edit replaces the first
// remaining occurrence only; edits whose original text is not found are
// silently skipped (best effort). Everything outside the replaced spans is
// left byte-identical. Returns the rewritten document and the number of
// edits actually applied.
func ApplyEdits(doc string, edits []Edit) (string, int) {
	applied := 0
	for _, e := range edits {
		if e.Original == "" {
			continue
		}
		if !strings.Contains(doc, e.Original) {
			continue
		}
		doc = strings.Replace(doc, e.Original, e.Proposed, 1)
		applied++
	}
	return doc, applied
}
