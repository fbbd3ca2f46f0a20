package gemini

// Schema builders for CompleteWithSchema. Council personas and vision
// probes compose their response schemas from these instead of writing
// nested map literals at every call site.

// Obj builds an object schema. Listing a property in required makes
// the model emit it even when unsure.
func Obj(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Arr builds an array schema with the given item schema.
func Arr(items map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":  "array",
		"items": items,
	}
}

// Str builds a string schema.
func Str() map[string]interface{} {
	return map[string]interface{}{"type": "string"}
}

// Num builds a number schema.
func Num() map[string]interface{} {
	return map[string]interface{}{"type": "number"}
}

// Int builds an integer schema.
func Int() map[string]interface{} {
	return map[string]interface{}{"type": "integer"}
}

// Bool builds a boolean schema.
func Bool() map[string]interface{} {
	return map[string]interface{}{"type": "boolean"}
}

// Enum builds a string schema restricted to the given values.
func Enum(values ...string) map[string]interface{} {
	return map[string]interface{}{
		"type": "string",
		"enum": values,
	}
}

// Nullable marks a schema as also accepting null.
func Nullable(schema map[string]interface{}) map[string]interface{} {
	schema["nullable"] = true
	return schema
}
