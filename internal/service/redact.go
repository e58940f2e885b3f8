package service

import "strings"

// RedactMetadata masks credential-like keys anywhere in a caller-supplied
// bag before it is buffered or stored. The input map is not modified.
func RedactMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out, _ := redactValue(in).(map[string]any)
	return out
}

func redactValue(v any) any {
	switch raw := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(raw))
		for key, val := range raw {
			if isSensitiveKey(key) {
				out[key] = "***"
				continue
			}
			out[key] = redactValue(val)
		}
		return out
	case []any:
		out := make([]any, len(raw))
		for i, val := range raw {
			out[i] = redactValue(val)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "password",
		"password_confirmation",
		"token",
		"access_token",
		"refresh_token",
		"authorization",
		"cookie",
		"secret",
		"api_key",
		"admin_key":
		return true
	default:
		return false
	}
}
