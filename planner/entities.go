package planner

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"teachprep-server-go/ai"
	"teachprep-server-go/models"
	"teachprep-server-go/prompts"
)

// CollectEntities fills PlanParams from the user input. For lesson plans,
// when the text names a stored class its profile is used directly and no
// model call is made; otherwise the extractor model runs with the profiles
// as context. The second return value lists parameters still missing for
// the given intent.
func (s *Service) CollectEntities(ctx context.Context, intent, userText string, history []models.ChatMessage) (models.PlanParams, []string) {
	params := models.PlanParams{TopK: 10, PlanType: intent}

	// Class detection only serves lesson plans; sports-meeting requests
	// carry venue and headcount in the text and always go through the
	// extractor.
	if intent == models.IntentLessonPlan {
		if profile, className, ok := s.matchClassProfile(userText); ok {
			s.log.Info("class profile matched in input", "class", className)
			params.SemanticQuery = profile.SemanticQuery
			params.CountQuery = profile.CountQuery
			params.GradesQuery = profile.GradesQuery
			params.TrainedWeaknesses = profile.TrainedWeaknesses
			return params, missingFields(intent, params)
		}
	}

	profiles, err := s.store.All()
	if err != nil {
		s.log.Warn("could not load class profiles for extraction", "error", err)
		profiles = nil
	}

	content, err := s.ai.ChatCompletion(ctx, ai.Request{
		Messages: []models.ChatMessage{
			{Role: "system", Content: prompts.ParamExtractionSystem},
			{Role: "user", Content: prompts.BuildParamExtractionUser(userText, history, profiles)},
		},
		MaxTokens:   400,
		Temperature: 0.2,
	})
	if err != nil {
		s.log.Warn("parameter extraction failed", "error", err)
		return params, missingFields(intent, params)
	}

	applyExtracted(&params, content)
	return params, missingFields(intent, params)
}

// matchClassProfile looks for a stored class name inside the input, longest
// name first so that 三年级2班 wins over 2班. A hit must sit on a word
// boundary to avoid 12班 matching 2班.
func (s *Service) matchClassProfile(userText string) (models.ClassProfile, string, bool) {
	names, err := s.store.ClassNames()
	if err != nil {
		s.log.Warn("could not list class names", "error", err)
		return models.ClassProfile{}, "", false
	}
	runes := []rune(userText)
	for _, name := range names {
		if !findClassName(runes, []rune(name)) {
			continue
		}
		profile, found, err := s.store.Get(name)
		if err != nil || !found {
			continue
		}
		return profile, name, true
	}
	return models.ClassProfile{}, "", false
}

// findClassName reports whether name occurs in text with valid boundaries:
// no digit immediately before the hit, and after the hit no digit (nor 班,
// when the name itself ends without one).
func findClassName(text, name []rune) bool {
	if len(name) == 0 || len(name) > len(text) {
		return false
	}
	nameHasBan := strings.ContainsRune(string(name), '班')
	for i := 0; i+len(name) <= len(text); i++ {
		if string(text[i:i+len(name)]) != string(name) {
			continue
		}
		if i > 0 && unicode.IsDigit(text[i-1]) {
			continue
		}
		if after := i + len(name); after < len(text) {
			next := text[after]
			if unicode.IsDigit(next) {
				continue
			}
			if nameHasBan && next == '班' {
				continue
			}
		}
		return true
	}
	return false
}

// applyExtracted merges the extractor model's JSON output into params,
// tolerating both string and numeric field values.
func applyExtracted(params *models.PlanParams, content string) {
	raw := ai.ExtractJSONObject(ai.CleanJSONResponse(content))
	if raw == "" {
		return
	}
	var extracted map[string]any
	if err := json.Unmarshal([]byte(raw), &extracted); err != nil {
		return
	}
	if v := asString(extracted["semantic_query"]); v != "" {
		params.SemanticQuery = v
	}
	if v := asString(extracted["count_query"]); v != "" {
		params.CountQuery = v
	}
	if v := asString(extracted["grades_query"]); v != "" {
		params.GradesQuery = v
	}
	if v := asString(extracted["trained_weaknesses"]); v != "" {
		params.TrainedWeaknesses = v
	}
	if n, ok := extracted["top_k"].(float64); ok && n > 0 {
		params.TopK = int(n)
	}
}

// ApplyOverrides merges explicit request parameters over the extracted ones
// and recomputes what is still missing.
func ApplyOverrides(params *models.PlanParams, overrides map[string]any) {
	if overrides == nil {
		return
	}
	if v := asString(overrides["semantic_query"]); v != "" {
		params.SemanticQuery = v
	}
	if v := asString(overrides["count_query"]); v != "" {
		params.CountQuery = v
	}
	if v := asString(overrides["grades_query"]); v != "" {
		params.GradesQuery = v
	}
	if v := asString(overrides["trained_weaknesses"]); v != "" {
		params.TrainedWeaknesses = v
	}
	switch n := overrides["top_k"].(type) {
	case float64:
		if n > 0 {
			params.TopK = int(n)
		}
	case int:
		if n > 0 {
			params.TopK = n
		}
	}
	if v := asString(overrides["plan_type"]); v != "" {
		params.PlanType = v
	}
}

// missingFields lists the parameters a plan type cannot proceed without.
// 全员运动会 needs the venue, grades and headcount; 课课练 needs either the
// grade or the weaknesses to train.
func missingFields(intent string, params models.PlanParams) []string {
	var missing []string
	switch intent {
	case models.IntentSportsMeeting:
		if params.SemanticQuery == "" {
			missing = append(missing, "semantic_query")
		}
		if params.GradesQuery == "" {
			missing = append(missing, "grades_query")
		}
		if params.CountQuery == "" {
			missing = append(missing, "count_query")
		}
	case models.IntentLessonPlan:
		if params.GradesQuery == "" && params.TrainedWeaknesses == "" {
			missing = append(missing, "grades_query", "trained_weaknesses")
		}
	}
	return missing
}

// NeedGuidance reports whether generation should pause and ask follow-up
// questions instead.
func NeedGuidance(intent string, params models.PlanParams) bool {
	return len(missingFields(intent, params)) > 0
}

// describeMissing renders missing parameter names as user-facing wording for
// the guidance prompt.
func (s *Service) describeMissing(params models.PlanParams) []string {
	labels := map[string]string{
		"semantic_query":     "场地条件（如：标准操场、体育馆）",
		"grades_query":       "参与年级（如：三年级、3-5年级）",
		"count_query":        "参与人数（如：200人、全校）",
		"trained_weaknesses": "训练重点（如：耐力、力量、柔韧）",
	}
	var described []string
	for _, field := range missingFields(params.PlanType, params) {
		if label, ok := labels[field]; ok {
			described = append(described, label)
		} else {
			described = append(described, field)
		}
	}
	return described
}

// MissingFields exposes the per-intent required-parameter check for handlers.
func MissingFields(intent string, params models.PlanParams) []string {
	return missingFields(intent, params)
}

// asString coerces model and client supplied values that may arrive as
// strings or numbers.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}
