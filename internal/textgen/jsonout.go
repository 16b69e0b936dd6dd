package textgen

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when model output holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in model output")

// DecodeJSON unwraps markdown fences or surrounding prose around the first
// JSON object in text and decodes it into v.
func DecodeJSON(text string, v any) error {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return ErrNoJSON
	}
	return json.Unmarshal([]byte(cleaned[start:end+1]), v)
}
