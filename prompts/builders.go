package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"teachprep-server-go/models"
)

// HistoryWindow is how many trailing conversation messages are included in
// prompt context.
const HistoryWindow = 6

// FormatHistory renders the trailing conversation as 用户：/助手： lines.
func FormatHistory(history []models.ChatMessage) string {
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	var lines []string
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case "user":
			lines = append(lines, "用户："+content)
		case "assistant":
			lines = append(lines, "助手："+content)
		}
	}
	if len(lines) == 0 {
		return "（无历史记录）"
	}
	return strings.Join(lines, "\n")
}

// BuildIntentUser assembles the intent-recognition user message.
func BuildIntentUser(userText string, history []models.ChatMessage) string {
	return fmt.Sprintf(intentUserTemplate, FormatHistory(history), userText)
}

// BuildParamExtractionUser assembles the parameter-extraction user message,
// injecting the known class-profile context.
func BuildParamExtractionUser(userText string, history []models.ChatMessage, profiles map[string]models.ClassProfile) string {
	return fmt.Sprintf(paramExtractionUserTemplate,
		FormatHistory(history),
		userText,
		ClassProfilesContext(profiles),
	)
}

// ClassProfilesContext renders the stored class profiles as prompt context
// so the extractor can resolve class mentions to weaknesses.
func ClassProfilesContext(profiles map[string]models.ClassProfile) string {
	if len(profiles) == 0 {
		return "（无班级配置信息）"
	}
	var b strings.Builder
	b.WriteString("如果用户提到以下班级，结合班级体测数据提取trained_weaknesses：\n")
	for className, profile := range profiles {
		fmt.Fprintf(&b, "## %s核心薄弱维度：%s\n", className, profile.TrainedWeaknesses)
		for weakness, detail := range profile.WeaknessDetails {
			fmt.Fprintf(&b, "- %s：%s\n", weakness, detail)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// BuildGuidancePrompt assembles the follow-up-question request for missing
// parameters.
func BuildGuidancePrompt(userText string, params models.PlanParams, missingInfo []string) string {
	collected, _ := json.MarshalIndent(map[string]string{
		"semantic_query":     params.SemanticQuery,
		"count_query":        params.CountQuery,
		"grades_query":       params.GradesQuery,
		"trained_weaknesses": params.TrainedWeaknesses,
		"plan_type":          params.PlanType,
	}, "", "  ")

	planType := params.PlanType
	if planType == "" {
		planType = "未确定"
	}
	missing := "无"
	if len(missingInfo) > 0 {
		missing = strings.Join(missingInfo, "、")
	}
	return fmt.Sprintf(guidanceTemplate, userText, string(collected), planType, missing)
}

// SummarizeResults joins retrieval hits into prompt context, capped at topK.
func SummarizeResults(results []models.SearchResult, topK int) string {
	if topK <= 0 {
		topK = 5
	}
	if len(results) > topK {
		results = results[:topK]
	}
	var texts []string
	for _, r := range results {
		if s := strings.TrimSpace(r.Summary()); s != "" {
			texts = append(texts, s)
		}
	}
	if len(texts) == 0 {
		return NoResultsPlaceholder
	}
	return strings.Join(texts, "\n\n")
}

// BuildLessonPlanPrompt assembles the final 课课练 generation request.
func BuildLessonPlanPrompt(userText string, params models.PlanParams, results []models.SearchResult, classAnalysis string) string {
	if classAnalysis == "" {
		classAnalysis = "   - 对于其他年级和班级，先不用描述班级体测情况。"
	}
	return fmt.Sprintf(lessonPlanTemplate,
		userText,
		marshalParams(params),
		SummarizeResults(results, params.TopK),
		classAnalysis,
	)
}

// BuildSportsMeetingPrompt assembles the final 全员运动会 generation request.
func BuildSportsMeetingPrompt(userText string, params models.PlanParams, results []models.SearchResult) string {
	semantic := params.SemanticQuery
	if semantic == "" {
		semantic = "标准操场"
	}
	grades := params.GradesQuery
	if grades == "" {
		grades = "根据用户输入确定"
	}
	count := params.CountQuery
	if count == "" {
		count = "根据用户输入确定"
	}
	return fmt.Sprintf(sportsMeetingTemplate,
		userText,
		marshalParams(params),
		SummarizeResults(results, params.TopK),
		semantic,
		grades,
		count,
	)
}

// BuildChatReply wraps casual input for a short friendly answer.
func BuildChatReply(userText string) string {
	return fmt.Sprintf(chatReplyTemplate, userText)
}

// BuildAnalysisPrompt assembles the class-data weakness analysis request.
func BuildAnalysisPrompt(className, gradeQuery string, studentCount int, statsText string) string {
	return fmt.Sprintf(analysisTemplate, className, gradeQuery, studentCount, statsText)
}

func marshalParams(params models.PlanParams) string {
	topK := params.TopK
	if topK <= 0 {
		topK = 10
	}
	meta, _ := json.MarshalIndent(map[string]any{
		"semantic_query":     params.SemanticQuery,
		"count_query":        params.CountQuery,
		"grades_query":       params.GradesQuery,
		"trained_weaknesses": params.TrainedWeaknesses,
		"top_k":              topK,
	}, "", "  ")
	return string(meta)
}
