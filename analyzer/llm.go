package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"teachprep-server-go/ai"
	"teachprep-server-go/models"
	"teachprep-server-go/prompts"
)

// llmAnalysis is the JSON shape the analysis prompt asks the model for.
type llmAnalysis struct {
	Weaknesses      []string          `json:"weaknesses"`
	WeaknessDetails map[string]string `json:"weakness_details"`
}

// AnalyzeWithLLM analyzes the records using the completion API, emitting
// human-readable progress lines through onProgress and returning the final
// profile. Falls back to the rule-based analysis when the model output
// cannot be parsed or the call fails.
func (s *Service) AnalyzeWithLLM(ctx context.Context, client ai.Client, records []Record, className string, onProgress func(string)) (models.ClassProfile, error) {
	progress := func(text string) {
		if onProgress != nil {
			onProgress(text)
		}
	}

	gradeQuery := s.GradeQuery(records)
	progress(fmt.Sprintf("📊 开始分析 %s 的体测数据...\n\n", className))
	progress(fmt.Sprintf("✅ 检测到年级：%s年级\n", gradeQuery))
	progress(fmt.Sprintf("✅ 学生人数：%d人\n\n", len(records)))

	progress("📈 正在统计各项体测指标...\n\n")
	statsText := s.StatsText(records)
	progress(statsText + "\n")

	progress("🤖 正在使用AI分析薄弱项...\n\n")

	weaknesses, details := s.llmWeaknesses(ctx, client, records, className, gradeQuery, statsText, progress)

	progress(fmt.Sprintf("✅ 识别到薄弱项：%s\n\n", strings.Join(weaknesses, ", ")))

	description := className + "体质监测数据"
	if len(weaknesses) > 0 {
		description = className + "体质监测核心薄弱维度：" + strings.Join(weaknesses, "、")
	}

	_, _, items := s.AnalyzeWeakness(records, className)

	profile := models.ClassProfile{
		GradesQuery:       gradeQuery,
		TrainedWeaknesses: strings.Join(weaknesses, "、"),
		Description:       description,
		WeaknessDetails:   details,
		StudentGroups:     s.StudentGroups(records, weaknesses, items),
		TestStats:         s.TestStats(records),
	}

	progress("💾 正在保存配置...\n")
	return profile, nil
}

func (s *Service) llmWeaknesses(ctx context.Context, client ai.Client, records []Record, className, gradeQuery, statsText string, progress func(string)) ([]string, map[string]string) {
	req := ai.Request{
		Messages: []models.ChatMessage{
			{Role: "system", Content: prompts.AnalysisSystemPrompt},
			{Role: "user", Content: prompts.BuildAnalysisPrompt(className, gradeQuery, len(records), statsText)},
		},
		MaxTokens:   1000,
		Temperature: 0.3,
	}

	content, err := client.ChatCompletion(ctx, req)
	if err != nil {
		s.log.Warn("llm analysis failed, falling back to rules", "class", className, "error", err)
		progress("⚠️ AI分析失败，使用传统方法分析...\n\n")
		weaknesses, details, _ := s.AnalyzeWeakness(records, className)
		return weaknesses, details
	}
	progress(fmt.Sprintf("AI分析结果：\n%s\n\n", content))

	var parsed llmAnalysis
	raw := ai.ExtractJSONObject(ai.CleanJSONResponse(content))
	if raw == "" || json.Unmarshal([]byte(raw), &parsed) != nil || len(parsed.Weaknesses) == 0 {
		progress("⚠️ AI返回格式异常，使用传统方法分析...\n\n")
		weaknesses, details, _ := s.AnalyzeWeakness(records, className)
		return weaknesses, details
	}

	// Constrain to allowed dimensions, at most the configured number.
	var weaknesses []string
	for _, w := range parsed.Weaknesses {
		if s.rules.Allowed(w) {
			weaknesses = append(weaknesses, w)
		}
		if len(weaknesses) == s.rules.TopWeaknesses {
			break
		}
	}
	if len(weaknesses) == 0 {
		progress("⚠️ AI返回的维度均不可用，使用传统方法分析...\n\n")
		ruleWeaknesses, ruleDetails, _ := s.AnalyzeWeakness(records, className)
		return ruleWeaknesses, ruleDetails
	}
	details := map[string]string{}
	for _, w := range weaknesses {
		if d := parsed.WeaknessDetails[w]; d != "" {
			details[w] = d
		}
	}
	return weaknesses, details
}
