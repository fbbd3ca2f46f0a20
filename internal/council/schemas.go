package council

import "quadforge/internal/gemini"

// Response schemas for the personas. Free-form leaves such as
// target_specs stay bare objects so every schema fits the model's
// nesting limit without shallowing.

func analysisSchema() map[string]interface{} {
	return gemini.Obj(map[string]interface{}{
		"project_name": gemini.Str(),
		"topology": gemini.Obj(map[string]interface{}{
			"class":          gemini.Str(),
			"target_voltage": gemini.Str(),
			"prop_size_inch": gemini.Num(),
			"video_system":   gemini.Str(),
			"frame_material": gemini.Str(),
		}, "class", "target_voltage", "prop_size_inch", "video_system"),
		"constraints": gemini.Obj(map[string]interface{}{
			"budget_usd":  gemini.Nullable(gemini.Num()),
			"hard_limits": gemini.Arr(gemini.Str()),
		}),
		"missing_critical_info": gemini.Arr(gemini.Str()),
		"reasoning_trace":       gemini.Str(),
	}, "project_name", "topology", "constraints", "reasoning_trace")
}

func planSchema() map[string]interface{} {
	return gemini.Obj(map[string]interface{}{
		"final_constraints": gemini.Obj(map[string]interface{}{
			"budget_usd":         gemini.Num(),
			"frame_size":         gemini.Str(),
			"video_system":       gemini.Str(),
			"battery_cell_count": gemini.Str(),
			"build_standard":     gemini.Str(),
			"fastening_method":   gemini.Str(),
			"wiring_standard":    gemini.Str(),
		}),
		"build_summary":   gemini.Str(),
		"approval_status": gemini.Str(),
	}, "final_constraints", "build_summary", "approval_status")
}

func specSheetSchema() map[string]interface{} {
	return gemini.Obj(map[string]interface{}{
		"buy_list": gemini.Arr(gemini.Obj(map[string]interface{}{
			"part_type":    gemini.Str(),
			"search_query": gemini.Str(),
			"quantity":     gemini.Int(),
			"target_specs": map[string]interface{}{"type": "object"},
		}, "part_type", "search_query", "quantity")),
		"engineering_notes": gemini.Str(),
	}, "buy_list")
}

func guideSchema() map[string]interface{} {
	return gemini.Obj(map[string]interface{}{
		"guide_md": gemini.Str(),
		"steps": gemini.Arr(gemini.Obj(map[string]interface{}{
			"step":   gemini.Str(),
			"detail": gemini.Str(),
		})),
	}, "guide_md")
}

func remedySchema() map[string]interface{} {
	return gemini.Obj(map[string]interface{}{
		"diagnosis": gemini.Str(),
		"strategy":  gemini.Str(),
		"replacements": gemini.Arr(gemini.Obj(map[string]interface{}{
			"part_type":        gemini.Str(),
			"new_search_query": gemini.Str(),
			"reason":           gemini.Str(),
		}, "part_type", "new_search_query")),
	}, "diagnosis", "strategy", "replacements")
}

func blueprintSchema() map[string]interface{} {
	return gemini.Obj(map[string]interface{}{
		"is_buildable":           gemini.Bool(),
		"incompatibility_reason": gemini.Nullable(gemini.Str()),
		"required_fasteners": gemini.Arr(gemini.Obj(map[string]interface{}{
			"item":     gemini.Str(),
			"quantity": gemini.Int(),
			"usage":    gemini.Str(),
		})),
		"blueprint_steps": gemini.Arr(gemini.Obj(map[string]interface{}{
			"step_number": gemini.Int(),
			"title":       gemini.Str(),
			"action": gemini.Enum(ActionMountMotors, ActionInstallStack,
				ActionSecureCamera, ActionAttachProps, ActionMountBattery),
			"target_part_type": gemini.Str(),
			"base_part_type":   gemini.Str(),
			"details":          gemini.Str(),
			"fasteners_used":   gemini.Str(),
		}, "step_number", "title", "action", "details")),
	}, "is_buildable")
}

func clarificationSchema() map[string]interface{} {
	return gemini.Obj(map[string]interface{}{
		"question": gemini.Str(),
		"options":  gemini.Arr(gemini.Str()),
	}, "question")
}
