package internal

import (
	"context"
	"fmt"
	"strings"
)

// MaxImageRefs caps the photographs shown with one answer.
const MaxImageRefs = 3

var _ Reasoner = (*ProviderReasoner)(nil)

// ProviderReasoner answers questions through structured generation.
type ProviderReasoner struct {
	provider Provider
}

func NewProviderReasoner(p Provider) *ProviderReasoner {
	return &ProviderReasoner{provider: p}
}

func (r *ProviderReasoner) Answer(ctx context.Context, query string, entries []MemoryEntry) (Reasoning, error) {
	var out Reasoning
	if err := r.provider.GenerateObject(ctx, ReasoningPrompt(query, entries), &out); err != nil {
		return Reasoning{}, fmt.Errorf("answer question: %w", err)
	}
	return Constrain(out, entries, MaxImageRefs), nil
}

// Constrain drops image refs that do not belong to entries, removes
// duplicates and keeps at most max of them.
func Constrain(r Reasoning, entries []MemoryEntry, max int) Reasoning {
	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.ImagePath != "" {
			known[e.ImagePath] = true
		}
	}

	seen := make(map[string]bool)
	refs := make([]string, 0, len(r.ImageRefs))
	for _, ref := range r.ImageRefs {
		ref = strings.TrimSpace(ref)
		if !known[ref] || seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
		if len(refs) == max {
			break
		}
	}

	return Reasoning{Summary: strings.TrimSpace(r.Summary), ImageRefs: refs}
}

func ReasoningPrompt(query string, entries []MemoryEntry) string {
	var records strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&records, "- %s (%s): %s [Image: %s]\n", e.Timestamp, e.Source, e.Description, e.ImagePath)
	}

	return fmt.Sprintf(`You are a memory recovery assistant.

Given the following memory records, help the user vividly recall their forgotten moments.

Memory records:
%s
User's question: %q

Please:
- Analyze the memories most relevant to the question.
- Summarize them into a short, vivid answer.
- Recommend up to %d images that best support the answer, only from [Image: ...] entries.

Do not invent any memory or image. Keep the summary natural and concise.

Respond in JSON with:
- summary: a brief answer
- image_refs: a list of up to %d image paths
`, records.String(), query, MaxImageRefs, MaxImageRefs)
}
