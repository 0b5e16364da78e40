package service

import (
	"fmt"
	"strings"
)

// NoContextMarker is injected instead of retrieved chunks when retrieval came
// back empty, so the model answers from general knowledge (or admits it
// cannot) instead of inventing support.
const NoContextMarker = "No supporting context was retrieved for this question."

// BuildPrompt assembles the generation prompt from the policy's template id,
// the packed context chunks (best match first) and the user question. It is a
// pure function so context assembly stays testable without a model service.
func BuildPrompt(templateID string, query string, contexts []string) string {
	block := NoContextMarker
	if len(contexts) > 0 {
		var sb strings.Builder
		for i, text := range contexts {
			fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, strings.TrimSpace(text))
		}
		block = strings.TrimSpace(sb.String())
	}
	switch templateID {
	case "concise":
		return fmt.Sprintf(`You are a helpful assistant.
Answer the question in at most three sentences using the context below.
- If the context does not contain the answer, say so briefly.
- Output ONLY the answer.

CONTEXT:
%s

QUESTION:
%s`, block, query)
	case "grounded":
		return fmt.Sprintf(`You are a careful assistant.
Answer the question strictly from the numbered context passages below.
- Cite passage numbers like [1] for every claim.
- If the context is insufficient, reply exactly: "Insufficient information."
- Output ONLY the answer.

CONTEXT:
%s

QUESTION:
%s`, block, query)
	default:
		return fmt.Sprintf(`You are a helpful assistant.
Use the context below to answer the question.
- Prefer information from the context over general knowledge.
- If the context does not cover the question, give a general answer and say the knowledge base has no supporting material.
- Output ONLY the answer.

CONTEXT:
%s

QUESTION:
%s`, block, query)
	}
}
