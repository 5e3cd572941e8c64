package claude

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
		wantErr bool
	}{
		{
			"markdown block",
			"Here's the plan:\n```json\n{\"generation_order\": []}\n```\n",
			"generation_order", false,
		},
		{
			"markdown no lang",
			"```\n{\"key\": \"val\"}\n```",
			"key", false,
		},
		{
			"raw JSON",
			`{"file_path": "a.go"}`,
			"file_path", false,
		},
		{
			"JSON with surrounding text",
			"Here is the result: {\"data\": 42} and that's it.",
			"data", false,
		},
		{
			"no JSON",
			"just plain text with no braces",
			"", true,
		},
		{
			"broken JSON",
			"{\"data\": }",
			"", true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := extractJSON(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, ok := result[tt.wantKey]; !ok {
				t.Errorf("missing key %q in result %v", tt.wantKey, result)
			}
		})
	}
}
