package council

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"quadforge/internal/logging"
	"quadforge/internal/parts"
)

//go:embed prompts/inspector.txt
var inspectorPrompt string

// Blueprint step actions the inspector may emit.
const (
	ActionMountMotors  = "MOUNT_MOTORS"
	ActionInstallStack = "INSTALL_STACK"
	ActionSecureCamera = "SECURE_CAMERA"
	ActionAttachProps  = "ATTACH_PROPS"
	ActionMountBattery = "MOUNT_BATTERY"
)

// Fastener is one hardware line item the build needs.
type Fastener struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
	Usage    string `json:"usage"`
}

// BlueprintStep is one ordered assembly operation.
type BlueprintStep struct {
	StepNumber     int    `json:"step_number"`
	Title          string `json:"title"`
	Action         string `json:"action"`
	TargetPartType string `json:"target_part_type"`
	BasePartType   string `json:"base_part_type"`
	Details        string `json:"details"`
	FastenersUsed  string `json:"fasteners_used"`
}

// Blueprint is the inspector's buildability ruling plus assembly order.
// IncompatibilityReason is empty when the build is possible.
type Blueprint struct {
	IsBuildable           bool            `json:"is_buildable"`
	IncompatibilityReason string          `json:"incompatibility_reason"`
	RequiredFasteners     []Fastener      `json:"required_fasteners"`
	Steps                 []BlueprintStep `json:"blueprint_steps"`
}

// Inspector rules on physical compatibility and emits the assembly
// blueprint.
type Inspector struct {
	llm LLMClient
}

// Blueprint reviews the bill of materials. A negative ruling always
// carries an IncompatibilityReason; a positive one always carries steps.
func (i *Inspector) Blueprint(ctx context.Context, bom []*parts.Part) (*Blueprint, error) {
	logging.Council("[inspector] reviewing %d-part bill of materials", len(bom))
	var out Blueprint
	if err := callJSON(ctx, i.llm, "inspector", inspectorPrompt, mustJSON(bom), blueprintSchema(), &out); err != nil {
		return nil, err
	}
	if !out.IsBuildable && strings.TrimSpace(out.IncompatibilityReason) == "" {
		out.IncompatibilityReason = "inspector ruled the build impossible without stating a reason"
	}
	if out.IsBuildable && len(out.Steps) == 0 {
		return nil, fmt.Errorf("inspector: buildable ruling with no assembly steps")
	}
	if out.IsBuildable {
		logging.Council("[inspector] buildable, %d steps, %d fastener kinds",
			len(out.Steps), len(out.RequiredFasteners))
	} else {
		logging.CouncilWarn("[inspector] not buildable: %s", out.IncompatibilityReason)
	}
	return &out, nil
}
