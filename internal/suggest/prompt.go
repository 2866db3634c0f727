package suggest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnparseableResponse indicates model output that is neither a suggestion
// array nor an object with a suggestions array.
var ErrUnparseableResponse = errors.New("suggest: unparseable model response")

const systemPrompt = `You suggest tags for entries in "Anchor", a personal learning and ideas journal.
Entries have a type (lesson, idea, milestone, note, resource, bookmark) and are tagged by their author.

Your task:
- Analyse the title and content of an entry
- Suggest at most 5 relevant tags
- Tags are short (1-3 words) and lowercase
- Prefer tags that already exist in the system when they fit
- Only propose a new tag when no existing tag fits
- Tags must be specific and useful for finding the entry again
- Avoid generic tags such as "note" or "idea"
- Answer ONLY with JSON

Answer format (JSON array):
[{"name": "tag-name", "confidence": 0.9}, ...]

confidence is a score from 0.0 to 1.0 stating how sure you are the tag is relevant.`

func userPrompt(request Request) string {
	title := request.Title
	if strings.TrimSpace(title) == "" {
		title = "(no title)"
	}
	content := request.Content
	if strings.TrimSpace(content) == "" {
		content = "(no content)"
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "Entry type: %s\n", request.EntryType)
	fmt.Fprintf(&builder, "Title: %s\n", title)
	fmt.Fprintf(&builder, "Content: %s\n\n", content)
	fmt.Fprintf(&builder, "Existing tags in the system: %s\n", joinOrNone(request.AllTags))
	fmt.Fprintf(&builder, "Tags already on this entry: %s\n\n", joinOrNone(request.ExistingTags))
	builder.WriteString("Suggest at most 5 relevant tags. Prefer existing tags when they fit.")
	return builder.String()
}

func joinOrNone(tags []string) string {
	if len(tags) == 0 {
		return "(no tags yet)"
	}
	return strings.Join(tags, ", ")
}

type rawSuggestion struct {
	Name       any `json:"name"`
	Confidence any `json:"confidence"`
}

// parseSuggestions accepts a JSON array of suggestions or an object holding
// one under "suggestions", optionally wrapped in a markdown code fence.
// Items without a string name are skipped; a missing or non-numeric
// confidence becomes DefaultConfidence.
func parseSuggestions(text string) ([]Suggestion, error) {
	text = stripCodeFence(strings.TrimSpace(text))
	if text == "" {
		return nil, fmt.Errorf("%w: empty", ErrUnparseableResponse)
	}

	var items []rawSuggestion
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparseableResponse, err)
		}
	} else {
		var wrapper struct {
			Suggestions []rawSuggestion `json:"suggestions"`
		}
		if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparseableResponse, err)
		}
		items = wrapper.Suggestions
	}

	suggestions := make([]Suggestion, 0, len(items))
	for _, item := range items {
		name, ok := item.Name.(string)
		if !ok {
			continue
		}
		confidence, ok := item.Confidence.(float64)
		if !ok {
			confidence = DefaultConfidence
		}
		suggestions = append(suggestions, Suggestion{Name: name, Confidence: confidence})
	}
	return suggestions, nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if newline := strings.IndexByte(text, '\n'); newline >= 0 {
		text = text[newline+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
