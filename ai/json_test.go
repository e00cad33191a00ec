package ai

import "testing"

func TestCleanJSONResponse(t *testing.T) {
	in := "```json\n{\"intent\": \"chat\"}\n```"
	if got := CleanJSONResponse(in); got != `{"intent": "chat"}` {
		t.Fatalf("CleanJSONResponse = %q", got)
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`好的，结果是 {"intent": "lesson_plan"} 请查收`, `{"intent": "lesson_plan"}`},
		{`{"a": {"b": 1}}`, `{"a": {"b": 1}}`},
		{`no json here`, ``},
		{`}{`, ``},
	}
	for _, c := range cases {
		if got := ExtractJSONObject(c.in); got != c.want {
			t.Errorf("ExtractJSONObject(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
