package council

import (
	"context"
	_ "embed"
	"fmt"

	"quadforge/internal/logging"
)

//go:embed prompts/sourcer.txt
var sourcerPrompt string

// Canonical part types the sourcer emits on the buy list.
const (
	PartMotors       = "Motors"
	PartFrameKit     = "Frame_Kit"
	PartFCStack      = "FC_Stack"
	PartCameraVTXKit = "Camera_VTX_Kit"
	PartBattery      = "Battery"
	PartPropellers   = "Propellers"
)

// BuyItem is one sourcing order on the spec sheet. TargetSpecs is
// free-form; motors usually carry kv and stator, frames a mounting
// pattern.
type BuyItem struct {
	PartType    string                 `json:"part_type"`
	SearchQuery string                 `json:"search_query"`
	Quantity    int                    `json:"quantity"`
	TargetSpecs map[string]interface{} `json:"target_specs,omitempty"`
}

// SpecSheet is the sourcing engineer's shopping list.
type SpecSheet struct {
	BuyList          []BuyItem `json:"buy_list"`
	EngineeringNotes string    `json:"engineering_notes"`
}

// Sourcer turns an approved plan into concrete part search queries.
type Sourcer struct {
	llm LLMClient
}

// SpecSheet generates the buy list for the plan. A forced anchor on the
// plan rides into the prompt so the sourcer designs around it.
func (s *Sourcer) SpecSheet(ctx context.Context, plan *EngineeringPlan) (*SpecSheet, error) {
	logging.Council("[sourcer] writing spec sheet for %s class at %s",
		plan.Topology.Class, plan.Topology.TargetVoltage)
	var out SpecSheet
	if err := callJSON(ctx, s.llm, "sourcer", sourcerPrompt, mustJSON(plan), specSheetSchema(), &out); err != nil {
		return nil, err
	}
	if len(out.BuyList) == 0 {
		return nil, fmt.Errorf("sourcer: reply carried an empty buy_list")
	}
	for i, item := range out.BuyList {
		if item.PartType == "" || item.SearchQuery == "" {
			return nil, fmt.Errorf("sourcer: buy_list[%d] missing part_type or search_query", i)
		}
	}
	return &out, nil
}
