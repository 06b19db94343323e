package bridge

// defaultSessionConfig is the upstream session configuration the bridge
// starts from: text+audio over PCM16 with server-side voice activity
// detection, offering the two fixed calendar tools. Client overrides win
// key-by-key on the first session.update.
func defaultSessionConfig() map[string]any {
	return map[string]any{
		"modalities":          []any{"text", "audio"},
		"input_audio_format":  "pcm16",
		"output_audio_format": "pcm16",
		"turn_detection": map[string]any{
			"type":                "server_vad",
			"threshold":           0.5,
			"prefix_padding_ms":   300,
			"silence_duration_ms": 200,
		},
		"tool_choice": "auto",
		"tools": []any{
			map[string]any{
				"type":        "function",
				"name":        "create_calendar_event",
				"description": "Create a calendar event for the user.",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":       map[string]any{"type": "string"},
						"date":        map[string]any{"type": "string", "description": "YYYY-MM-DD"},
						"time":        map[string]any{"type": "string", "description": "HH:MM, 24-hour"},
						"duration":    map[string]any{"type": "integer", "description": "minutes"},
						"description": map[string]any{"type": "string"},
					},
					"required": []any{"title", "date", "time"},
				},
			},
			map[string]any{
				"type":        "function",
				"name":        "query_calendar_events",
				"description": "List the user's calendar events in a date range.",
				"parameters": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"start_date": map[string]any{"type": "string", "description": "YYYY-MM-DD"},
						"end_date":   map[string]any{"type": "string", "description": "YYYY-MM-DD"},
					},
					"required": []any{"start_date"},
				},
			},
		},
	}
}

// mergeSessionConfig overlays the client's session object on the defaults.
// The client wins on every key it supplies.
func mergeSessionConfig(client map[string]any) map[string]any {
	merged := defaultSessionConfig()
	for k, v := range client {
		merged[k] = v
	}
	return merged
}
