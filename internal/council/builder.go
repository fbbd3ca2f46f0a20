package council

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"quadforge/internal/logging"
)

//go:embed prompts/builder.txt
var builderPrompt string

// GuideStep is one titled step of the printed guide.
type GuideStep struct {
	Step   string `json:"step"`
	Detail string `json:"detail"`
}

// Guide is the operator-facing assembly documentation.
type Guide struct {
	GuideMD string      `json:"guide_md"`
	Steps   []GuideStep `json:"steps"`
}

// Builder writes the markdown assembly guide for a finished design.
type Builder struct {
	llm LLMClient
}

// Guide renders assembly documentation from the project record.
func (b *Builder) Guide(ctx context.Context, project interface{}) (*Guide, error) {
	logging.Council("[builder] drafting assembly guide")
	var out Guide
	if err := callJSON(ctx, b.llm, "builder", builderPrompt, mustJSON(project), guideSchema(), &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.GuideMD) == "" {
		return nil, fmt.Errorf("builder: reply missing guide_md")
	}
	return &out, nil
}
