package events

import (
	"fmt"
	"strings"
)

// maxLoggedValueLen bounds individual argument values in log output.
const maxLoggedValueLen = 500

var secretArgKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"token":         true,
	"password":      true,
	"secret":        true,
	"authorization": true,
	"credential":    true,
}

// SanitizeArgs returns a copy of args safe to persist in logs: secret-looking
// keys are redacted and oversize values truncated.
func SanitizeArgs(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return map[string]interface{}{}
	}

	sanitized := make(map[string]interface{}, len(args))
	for key, value := range args {
		if secretArgKeys[strings.ToLower(key)] {
			sanitized[key] = "[redacted]"
			continue
		}

		str, ok := value.(string)
		if ok && len(str) > maxLoggedValueLen {
			sanitized[key] = str[:maxLoggedValueLen] + "..."
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

// TruncateForLog clips s to at most limit characters, marking the cut.
func TruncateForLog(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return fmt.Sprintf("%s... (truncated from %d chars)", s[:limit], len(s))
}
