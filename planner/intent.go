package planner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"teachprep-server-go/ai"
	"teachprep-server-go/models"
	"teachprep-server-go/prompts"
)

// DetectIntent classifies the user input as sports_meeting, lesson_plan or
// chat. Any upstream or parse failure falls back to chat so the request can
// still be answered. Results are cached per text+history.
func (s *Service) DetectIntent(ctx context.Context, userText string, history []models.ChatMessage) string {
	key := intentCacheKey(userText, history)
	if cached, ok := s.cache.Get(ctx, key); ok {
		s.log.Debug("intent cache hit", "intent", cached)
		return cached
	}

	content, err := s.ai.ChatCompletion(ctx, ai.Request{
		Messages: []models.ChatMessage{
			{Role: "system", Content: prompts.IntentRecognitionSystem},
			{Role: "user", Content: prompts.BuildIntentUser(userText, history)},
		},
		MaxTokens:   100,
		Temperature: 0.1,
	})
	if err != nil {
		s.log.Warn("intent recognition failed, defaulting to chat", "error", err)
		return models.IntentChat
	}

	intent := parseIntent(content)
	s.cache.Set(ctx, key, intent, s.cacheTTL)
	s.log.Info("intent recognized", "intent", intent)
	return intent
}

func parseIntent(content string) string {
	raw := ai.ExtractJSONObject(ai.CleanJSONResponse(content))
	if raw == "" {
		return models.IntentChat
	}
	var parsed struct {
		Intent string `json:"intent"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return models.IntentChat
	}
	switch parsed.Intent {
	case models.IntentSportsMeeting, models.IntentLessonPlan, models.IntentChat:
		return parsed.Intent
	default:
		return models.IntentChat
	}
}

func intentCacheKey(userText string, history []models.ChatMessage) string {
	h := sha256.New()
	h.Write([]byte(userText))
	for _, m := range history {
		h.Write([]byte{0})
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}
