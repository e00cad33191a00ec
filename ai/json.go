package ai

import "strings"

// CleanJSONResponse strips markdown code fences the model tends to wrap
// JSON output in.
func CleanJSONResponse(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")
	return strings.TrimSpace(response)
}

// ExtractJSONObject returns the substring between the first '{' and the last
// '}' of the model output, or "" when no object is present. Models often
// surround the requested JSON with prose.
func ExtractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return content[start : end+1]
}
