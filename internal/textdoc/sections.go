// Package textdoc models a document as sections of paragraphs for batched
// processing, and rewrites accepted spans during apply. Documents are UTF-8
// text/markdown; untouched spans stay byte-identical.
package textdoc

import (
	"regexp"
	"strings"
)

// Section is one structural unit of a document: a heading (possibly empty
// for the preamble) and the paragraphs under it.
type Section struct {
	Title      string
	Paragraphs []string
}

var headingPattern = regexp.MustCompile(`^#{1,6}\s+\S`)

// Split breaks a document into sections by markdown headings, and each
// section into paragraphs by blank lines. A document with no headings is a
// single untitled section.
func Split(text string) []Section {
	var sections []Section
	current := Section{}

	flush := func() {
		if current.Title != "" || len(current.Paragraphs) > 0 {
			sections = append(sections, current)
		}
	}

	for _, block := range strings.Split(text, "\n\n") {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		if headingPattern.MatchString(trimmed) {
			// A heading block may carry body lines below the heading.
			lines := strings.SplitN(trimmed, "\n", 2)
			flush()
			current = Section{Title: strings.TrimSpace(lines[0])}
			if len(lines) == 2 {
				if body := strings.TrimSpace(lines[1]); body != "" {
					current.Paragraphs = append(current.Paragraphs, body)
				}
			}
			continue
		}
		current.Paragraphs = append(current.Paragraphs, trimmed)
	}
	flush()

	return sections
}

// Paragraphs flattens all sections into one paragraph list.
func Paragraphs(sections []Section) []string {
	var out []string
	for _, s := range sections {
		out = append(out, s.Paragraphs...)
	}
	return out
}

// Batch is one provider call's worth of paragraphs from a single section.
type Batch struct {
	SectionIndex int
	SectionTitle string
	Paragraphs   []string
}

// Batches groups paragraphs into fixed-size batches, never mixing sections:
// each batch belongs to exactly one section so the provider sees coherent
// context.
func Batches(sections []Section, size int) []Batch {
	if size <= 0 {
		size = 15
	}
	var batches []Batch
	for i, sec := range sections {
		for start := 0; start < len(sec.Paragraphs); start += size {
			end := start + size
			if end > len(sec.Paragraphs) {
				end = len(sec.Paragraphs)
			}
			batches = append(batches, Batch{
				SectionIndex: i,
				SectionTitle: sec.Title,
				Paragraphs:   sec.Paragraphs[start:end],
			})
		}
	}
	return batches
}
