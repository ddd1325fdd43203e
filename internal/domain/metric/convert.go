package metric

import "encoding/json"

// stringSlice coerces a decoded YAML/JSON value (typically []any of
// strings) into a []string, dropping any non-string elements rather than
// erroring: a malformed list entry here is a config-authoring mistake, not
// a runtime condition worth aborting the suite over.
func stringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}

func floatField(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

// contextString renders an Input.Context map as a stable string for judge
// prompts, which take plain text rather than structured context.
func contextString(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	encoded, err := json.Marshal(ctx)
	if err != nil {
		return ""
	}
	return string(encoded)
}
