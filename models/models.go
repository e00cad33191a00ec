package models

// ChatMessage is a single turn in the teacher/assistant conversation
type ChatMessage struct {
	Role    string `json:"role"`    // "user" or "assistant"
	Content string `json:"content"` // Message text
}

// Plan intent values returned by intent recognition.
const (
	IntentSportsMeeting = "sports_meeting"
	IntentLessonPlan    = "lesson_plan"
	IntentChat          = "chat"
)

// PlanParams holds the retrieval parameters collected from the teacher's input.
// Empty strings mean "not provided yet".
type PlanParams struct {
	SemanticQuery     string `json:"semantic_query"`      // Free-text条件，如操场/跑道规模
	CountQuery        string `json:"count_query"`         // Student count
	GradesQuery       string `json:"grades_query"`        // Grade number as string ("1".."9")
	TrainedWeaknesses string `json:"trained_weaknesses"`  // 、-joined weakness dimensions
	TopK              int    `json:"top_k"`               // Retrieval result cap
	PlanType          string `json:"plan_type,omitempty"` // "sports_meeting" | "lesson_plan" | ""
}

// ClassProfile is the persisted per-class record derived from fitness-test data.
type ClassProfile struct {
	GradesQuery       string                  `json:"grades_query"`
	TrainedWeaknesses string                  `json:"trained_weaknesses"`
	CountQuery        string                  `json:"count_query"`
	SemanticQuery     string                  `json:"semantic_query"`
	Description       string                  `json:"description"`
	WeaknessDetails   map[string]string       `json:"weakness_details,omitempty"`
	StudentGroups     map[string]StudentGroup `json:"student_groups,omitempty"`
	TestStats         map[string]ItemStats    `json:"test_stats,omitempty"`
}

// StudentGroup lists the students that share a weakness dimension.
type StudentGroup struct {
	Count          int             `json:"count"`
	WeaknessItems  []string        `json:"weakness_items,omitempty"`
	StudentDetails []StudentDetail `json:"student_details,omitempty"`
}

// StudentDetail is one student row carried through from the uploaded sheet.
type StudentDetail struct {
	StudentID string `json:"student_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Gender    string `json:"gender,omitempty"`
}

// ItemStats is the grade distribution of one fitness-test item.
type ItemStats struct {
	Dimension string `json:"dimension"`
	Excellent int    `json:"excellent"`
	Good      int    `json:"good"`
	Pass      int    `json:"pass"`
	Fail      int    `json:"fail"`
}

// SearchResult is one hit returned by the exercise retrieval service.
// Only text is reliable; the rest are fallbacks for result summarization.
type SearchResult struct {
	Text        string `json:"text,omitempty"`
	Title       string `json:"title,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Desc        string `json:"desc,omitempty"`
	Image       string `json:"image,omitempty"`
	Cover       string `json:"cover,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	MediaURL    string `json:"media_url,omitempty"`
	Img         string `json:"img,omitempty"`
}

// Summary returns the best textual representation of the result, preferring
// the text field and falling back to title/description/media fields.
func (r SearchResult) Summary() string {
	if r.Text != "" {
		return r.Text
	}
	title := r.Title
	if title == "" {
		title = r.Name
	}
	desc := r.Description
	if desc == "" {
		desc = r.Desc
	}
	media := firstNonEmpty(r.Image, r.Cover, r.Thumbnail, r.MediaURL, r.Img)

	out := ""
	for _, part := range []string{title, desc, media} {
		if part == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += part
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
