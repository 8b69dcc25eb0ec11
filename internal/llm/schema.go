package llm

// BuildRecordJSONSchema returns the JSON Schema (draft 2020-12 subset) a model answer must
// satisfy after sanitizing. Every field is optional; absent values decode to "".
func BuildRecordJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"broker":      map[string]any{"type": "string", "maxLength": 300},
			"load_number": map[string]any{"type": "string", "maxLength": 64},
			"rate":        map[string]any{"type": "string", "maxLength": 32},
			"total_miles": map[string]any{"type": "string", "maxLength": 32},
			"pickups":     stopsProp(),
			"deliveries":  stopsProp(),
		},
	}
}

func stopsProp() map[string]any {
	return map[string]any{
		"type":     "array",
		"maxItems": 50,
		"items": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"facility": map[string]any{"type": "string"},
				"address":  map[string]any{"type": "string"},
				"time":     map[string]any{"type": "string"},
			},
		},
	}
}
