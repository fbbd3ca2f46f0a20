package council

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"quadforge/internal/logging"
)

//go:embed prompts/interviewer.txt
var interviewerPrompt string

// Clarification is a question for the human operator, usually with
// multiple-choice options.
type Clarification struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Interviewer escalates to the human operator when autonomy runs out.
type Interviewer struct {
	llm LLMClient
}

// Clarify frames a sourcing dead end as one concrete question.
func (iv *Interviewer) Clarify(ctx context.Context, summary string, failures []FailureReport) (*Clarification, error) {
	logging.Council("[interviewer] escalating after %d failed attempts", len(failures))
	payload := map[string]interface{}{
		"project_summary": summary,
		"failed_attempts": failures,
	}
	var out Clarification
	if err := callJSON(ctx, iv.llm, "interviewer", interviewerPrompt, mustJSON(payload), clarificationSchema(), &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Question) == "" {
		return nil, fmt.Errorf("interviewer: reply missing question")
	}
	return &out, nil
}
