package planner

import (
	"context"
	"fmt"
	"time"

	"teachprep-server-go/ai"
	"teachprep-server-go/db"
	"teachprep-server-go/logger"
	"teachprep-server-go/models"
	"teachprep-server-go/prompts"
	"teachprep-server-go/search"
)

// Service drives lesson-prep plan generation: intent recognition, entity
// extraction, retrieval and the final completion calls.
type Service struct {
	ai       ai.Client
	store    *db.ProfileStore
	cache    db.Cache
	search   *search.Client
	log      *logger.Logger
	cacheTTL time.Duration
}

// NewService wires the planner from its dependencies. cache may be an
// in-process or Redis-backed implementation.
func NewService(aiClient ai.Client, store *db.ProfileStore, cache db.Cache, searchClient *search.Client, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{
		ai:       aiClient,
		store:    store,
		cache:    cache,
		search:   searchClient,
		log:      log.With("service", "Planner"),
		cacheTTL: ttl,
	}
}

// Retrieve calls the retrieval service for the detected intent. Failures
// degrade to empty results so plan generation can still proceed.
func (s *Service) Retrieve(ctx context.Context, intent, userText string, params models.PlanParams) []models.SearchResult {
	payload := search.Payload{
		SemanticQuery: params.SemanticQuery,
		CountQuery:    params.CountQuery,
		GradesQuery:   params.GradesQuery,
		TopK:          params.TopK,
	}

	var (
		results []models.SearchResult
		err     error
	)
	switch intent {
	case models.IntentSportsMeeting:
		// The sports-meeting index matches better with the raw input appended.
		payload.SemanticQuery = joinNonEmpty(params.SemanticQuery, userText)
		results, err = s.search.SportsMeetingSearch(ctx, payload)
	case models.IntentLessonPlan:
		payload.TrainedWeaknesses = params.TrainedWeaknesses
		results, err = s.search.HybridSearch(ctx, payload)
	default:
		return nil
	}
	if err != nil {
		s.log.Warn("retrieval failed, proceeding with empty results", "intent", intent, "error", err)
		return nil
	}
	s.log.Debug("retrieval done", "intent", intent, "results", len(results))
	return results
}

// BuildPlanMessages composes the completion messages for plan generation,
// guidance, or chat, mirroring the non-streaming and streaming paths.
func (s *Service) BuildPlanMessages(results []models.SearchResult, params models.PlanParams, userText string, history []models.ChatMessage, needGuidance bool) []models.ChatMessage {
	if needGuidance {
		missingInfo := s.describeMissing(params)
		return []models.ChatMessage{
			{Role: "system", Content: prompts.TeacherSystemPrompt},
			{Role: "user", Content: prompts.BuildGuidancePrompt(userText, params, missingInfo)},
		}
	}

	messages := []models.ChatMessage{{Role: "system", Content: prompts.TeacherSystemPrompt}}
	if len(history) > prompts.HistoryWindow {
		history = history[len(history)-prompts.HistoryWindow:]
	}
	messages = append(messages, history...)

	switch params.PlanType {
	case models.IntentSportsMeeting:
		messages = append(messages, models.ChatMessage{
			Role:    "user",
			Content: prompts.BuildSportsMeetingPrompt(userText, params, results),
		})
	case models.IntentLessonPlan:
		messages = append(messages, models.ChatMessage{
			Role:    "user",
			Content: prompts.BuildLessonPlanPrompt(userText, params, results, s.classAnalysisText(params.GradesQuery)),
		})
	default:
		// Chat or unrecognized intent: pass the raw input through.
		messages = append(messages, models.ChatMessage{Role: "user", Content: userText})
	}
	return messages
}

// classAnalysisText looks up a stored profile matching the grade and renders
// its weakness details as plan context.
func (s *Service) classAnalysisText(gradesQuery string) string {
	if gradesQuery == "" {
		return ""
	}
	profiles, err := s.store.All()
	if err != nil {
		s.log.Warn("could not load class profiles for plan context", "error", err)
		return ""
	}
	for className, profile := range profiles {
		if profile.GradesQuery != gradesQuery || len(profile.WeaknessDetails) == 0 {
			continue
		}
		text := fmt.Sprintf("   - 如果是%s，描述：", className)
		for weakness, detail := range profile.WeaknessDetails {
			text += fmt.Sprintf("%s：%s... ", weakness, truncateRunes(detail, 200))
		}
		return text + "\n"
	}
	return ""
}

// GeneratePlan produces the plan (or guidance/chat reply) in one shot.
// Upstream failures yield a 生成失败 message rather than an error so the
// conversation can continue.
func (s *Service) GeneratePlan(ctx context.Context, results []models.SearchResult, params models.PlanParams, userText string, history []models.ChatMessage, needGuidance bool) string {
	messages := s.BuildPlanMessages(results, params, userText, history, needGuidance)
	content, err := s.ai.ChatCompletion(ctx, ai.Request{
		Messages:    messages,
		MaxTokens:   3000,
		Temperature: 0.7,
		TopP:        0.9,
	})
	if err != nil {
		s.log.Error("plan generation failed", "error", err)
		return fmt.Sprintf("生成失败: %v", err)
	}
	return content
}

// GeneratePlanStream streams the plan generation, forwarding deltas to
// onDelta. A failed upstream call streams a 生成失败 message instead.
func (s *Service) GeneratePlanStream(ctx context.Context, results []models.SearchResult, params models.PlanParams, userText string, history []models.ChatMessage, needGuidance bool, onDelta func(string)) string {
	messages := s.BuildPlanMessages(results, params, userText, history, needGuidance)
	full, err := s.ai.StreamChatCompletion(ctx, ai.Request{
		Messages:    messages,
		MaxTokens:   32768,
		Temperature: 0.7,
		TopP:        0.9,
	}, onDelta)
	if err != nil {
		s.log.Error("streaming plan generation failed", "error", err, "guidance", needGuidance)
		fallback := fmt.Sprintf("生成失败: %v", err)
		if needGuidance {
			fallback = prompts.GuidanceFallback
		}
		if onDelta != nil {
			onDelta(fallback)
		}
		return fallback
	}
	return full
}

// ChatReply answers casual input, keeping the trailing conversation so
// follow-up questions still have their context.
func (s *Service) ChatReply(ctx context.Context, userText string, history []models.ChatMessage) string {
	messages := s.BuildPlanMessages(nil, models.PlanParams{}, userText, history, false)
	content, err := s.ai.ChatCompletion(ctx, ai.Request{
		Messages:    messages,
		MaxTokens:   3000,
		Temperature: 0.7,
		TopP:        0.9,
	})
	if err != nil {
		s.log.Warn("chat reply failed, sending fallback", "error", err)
		return prompts.ChatFallbackReply
	}
	return content
}

// StreamChatReply streams a short friendly reply for casual input, with a
// fixed fallback when the upstream call fails.
func (s *Service) StreamChatReply(ctx context.Context, userText string, onDelta func(string)) string {
	full, err := s.ai.StreamChatCompletion(ctx, ai.Request{
		Messages: []models.ChatMessage{
			{Role: "system", Content: prompts.TeacherSystemPrompt},
			{Role: "user", Content: prompts.BuildChatReply(userText)},
		},
		MaxTokens:   200,
		Temperature: 0.7,
	}, onDelta)
	if err != nil {
		s.log.Warn("chat reply stream failed, sending fallback", "error", err)
		if onDelta != nil {
			onDelta(prompts.ChatFallbackReply)
		}
		return prompts.ChatFallbackReply
	}
	return full
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
