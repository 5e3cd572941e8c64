package claude

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/davepeng-0503/dave-bot/internal/config"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	markdownJSONRe = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*(\{.*?\})\s*` + "```")
	rawJSONRe      = regexp.MustCompile(`(?s)(\{.*\})`)
)

// extractJSON pulls the first JSON object out of a model reply
func extractJSON(text string) (map[string]any, error) {
	// Try markdown code blocks first
	if m := markdownJSONRe.FindStringSubmatch(text); len(m) > 1 {
		var result map[string]any
		if err := json.Unmarshal([]byte(m[1]), &result); err == nil {
			return result, nil
		}
	}

	// Fall back to raw JSON
	if m := rawJSONRe.FindStringSubmatch(text); len(m) > 1 {
		var result map[string]any
		if err := json.Unmarshal([]byte(m[1]), &result); err != nil {
			return nil, fmt.Errorf("JSON parse error: %w", err)
		}
		return result, nil
	}

	return nil, fmt.Errorf("no JSON object found in output")
}

// decodeValidated checks obj against schema and decodes it into out
func decodeValidated(schema *jsonschema.Schema, obj map[string]any, out any) error {
	if schema != nil {
		if err := config.ValidateJSON(schema, obj); err != nil {
			return err
		}
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
