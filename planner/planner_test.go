package planner

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"teachprep-server-go/ai"
	"teachprep-server-go/db"
	"teachprep-server-go/logger"
	"teachprep-server-go/models"
	"teachprep-server-go/search"
)

// fakeAI scripts completion responses per call.
type fakeAI struct {
	responses []string
	err       error
	calls     int
	requests  []ai.Request
}

func (f *fakeAI) ChatCompletion(_ context.Context, req ai.Request) (string, error) {
	f.requests = append(f.requests, req)
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeAI) StreamChatCompletion(ctx context.Context, req ai.Request, onDelta func(string)) (string, error) {
	content, err := f.ChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if onDelta != nil {
		onDelta(content)
	}
	return content, nil
}

func (f *fakeAI) Model() string { return "fake" }

func newTestService(t *testing.T, fake *fakeAI) (*Service, *db.ProfileStore) {
	t.Helper()
	log := logger.NewNop()
	store := db.NewProfileStore(filepath.Join(t.TempDir(), "profiles.json"), log)
	svc := NewService(fake, store, db.NewMemoryCache(), search.NewClient("http://127.0.0.1:0", log), 5*time.Minute, log)
	return svc, store
}

func TestDetectIntent(t *testing.T) {
	fake := &fakeAI{responses: []string{`{"intent": "sports_meeting"}`}}
	svc, _ := newTestService(t, fake)

	got := svc.DetectIntent(context.Background(), "帮我策划一场全员运动会", nil)
	if got != models.IntentSportsMeeting {
		t.Fatalf("intent = %q", got)
	}
}

func TestDetectIntentCached(t *testing.T) {
	fake := &fakeAI{responses: []string{`{"intent": "lesson_plan"}`}}
	svc, _ := newTestService(t, fake)

	ctx := context.Background()
	first := svc.DetectIntent(ctx, "三年级课课练", nil)
	second := svc.DetectIntent(ctx, "三年级课课练", nil)
	if first != models.IntentLessonPlan || second != models.IntentLessonPlan {
		t.Fatalf("intents = %q, %q", first, second)
	}
	if fake.calls != 1 {
		t.Fatalf("expected 1 model call, got %d", fake.calls)
	}
}

func TestDetectIntentDefaultsToChat(t *testing.T) {
	cases := []struct {
		name string
		fake *fakeAI
	}{
		{"upstream error", &fakeAI{err: errors.New("boom")}},
		{"no json", &fakeAI{responses: []string{"我不知道"}}},
		{"unknown intent", &fakeAI{responses: []string{`{"intent": "cooking"}`}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			svc, _ := newTestService(t, c.fake)
			if got := svc.DetectIntent(context.Background(), "你好", nil); got != models.IntentChat {
				t.Fatalf("intent = %q, want chat", got)
			}
		})
	}
}

func TestParseIntentFenced(t *testing.T) {
	got := parseIntent("```json\n{\"intent\": \"lesson_plan\"}\n```")
	if got != models.IntentLessonPlan {
		t.Fatalf("parseIntent = %q", got)
	}
}

func TestIntentCacheKeyVariesWithHistory(t *testing.T) {
	a := intentCacheKey("你好", nil)
	b := intentCacheKey("你好", []models.ChatMessage{{Role: "user", Content: "早"}})
	if a == b {
		t.Fatal("expected history to change the cache key")
	}
}

func TestFindClassNameBoundaries(t *testing.T) {
	cases := []struct {
		text string
		name string
		want bool
	}{
		{"给三年级2班排个课课练", "三年级2班", true},
		{"给12班排课", "2班", false},      // digit before
		{"给2班1组排课", "2班", false},     // digit after
		{"给三年级2班班排课", "三年级2班", false}, // 班 repeated after a 班-suffixed name
		{"2班的体测情况", "2班", true},
		{"说说高一情况", "高一", true},
		{"高一2班呢", "高一", false}, // digit right after the grade-only name
	}
	for _, c := range cases {
		if got := findClassName([]rune(c.text), []rune(c.name)); got != c.want {
			t.Errorf("findClassName(%q, %q) = %v, want %v", c.text, c.name, got, c.want)
		}
	}
}

func TestCollectEntitiesMatchesStoredClass(t *testing.T) {
	fake := &fakeAI{responses: []string{`{"semantic_query": "不可能被调用"}`}}
	svc, store := newTestService(t, fake)
	if err := store.Update("三年级2班", models.ClassProfile{
		GradesQuery:       "3",
		TrainedWeaknesses: "耐力、力量",
		CountQuery:        "40",
	}); err != nil {
		t.Fatal(err)
	}

	params, missing := svc.CollectEntities(context.Background(), models.IntentLessonPlan, "给三年级2班安排课课练", nil)
	if fake.calls != 0 {
		t.Fatalf("expected no model call, got %d", fake.calls)
	}
	if params.GradesQuery != "3" || params.TrainedWeaknesses != "耐力、力量" {
		t.Fatalf("params = %+v", params)
	}
	if params.TopK != 10 {
		t.Fatalf("top_k = %d, want 10", params.TopK)
	}
	if len(missing) != 0 {
		t.Fatalf("missing = %v", missing)
	}
}

func TestCollectEntitiesSportsMeetingIgnoresStoredClass(t *testing.T) {
	// A sports-meeting request naming a stored class still goes through the
	// extractor: the profile has no venue or headcount, while the text does.
	fake := &fakeAI{responses: []string{`{"semantic_query": "标准操场", "count_query": "200", "grades_query": "3"}`}}
	svc, store := newTestService(t, fake)
	if err := store.Update("三年级2班", models.ClassProfile{
		GradesQuery:       "3",
		TrainedWeaknesses: "耐力、力量",
	}); err != nil {
		t.Fatal(err)
	}

	params, missing := svc.CollectEntities(context.Background(),
		models.IntentSportsMeeting, "给三年级2班办一场运动会，标准操场，200人", nil)
	if fake.calls != 1 {
		t.Fatalf("expected extractor call, got %d", fake.calls)
	}
	if params.SemanticQuery != "标准操场" || params.CountQuery != "200" {
		t.Fatalf("params = %+v", params)
	}
	if len(missing) != 0 {
		t.Fatalf("missing = %v", missing)
	}
}

func TestCollectEntitiesLLMExtraction(t *testing.T) {
	fake := &fakeAI{responses: []string{`{"semantic_query": "标准操场", "grades_query": 3, "count_query": "200", "top_k": 8}`}}
	svc, _ := newTestService(t, fake)

	params, missing := svc.CollectEntities(context.Background(), models.IntentSportsMeeting, "操场办个运动会", nil)
	if params.SemanticQuery != "标准操场" || params.GradesQuery != "3" || params.CountQuery != "200" {
		t.Fatalf("params = %+v", params)
	}
	if params.TopK != 8 {
		t.Fatalf("top_k = %d", params.TopK)
	}
	if len(missing) != 0 {
		t.Fatalf("missing = %v", missing)
	}
}

func TestMissingFields(t *testing.T) {
	sports := missingFields(models.IntentSportsMeeting, models.PlanParams{GradesQuery: "3"})
	if !reflect.DeepEqual(sports, []string{"semantic_query", "count_query"}) {
		t.Fatalf("sports missing = %v", sports)
	}

	lesson := missingFields(models.IntentLessonPlan, models.PlanParams{})
	if len(lesson) == 0 {
		t.Fatal("expected lesson_plan missing fields")
	}
	if got := missingFields(models.IntentLessonPlan, models.PlanParams{TrainedWeaknesses: "耐力"}); len(got) != 0 {
		t.Fatalf("weaknesses alone should suffice, got %v", got)
	}
	if got := missingFields(models.IntentChat, models.PlanParams{}); len(got) != 0 {
		t.Fatalf("chat never needs params, got %v", got)
	}
}

func TestApplyOverrides(t *testing.T) {
	params := models.PlanParams{TopK: 10, PlanType: models.IntentLessonPlan}
	ApplyOverrides(&params, map[string]any{
		"grades_query": "5",
		"count_query":  float64(45),
		"top_k":        float64(3),
	})
	if params.GradesQuery != "5" || params.CountQuery != "45" || params.TopK != 3 {
		t.Fatalf("params = %+v", params)
	}

	ApplyOverrides(&params, nil)
	if params.GradesQuery != "5" {
		t.Fatal("nil overrides must not reset params")
	}
}

func TestGeneratePlanFallbackMessage(t *testing.T) {
	fake := &fakeAI{err: errors.New("连接超时")}
	svc, _ := newTestService(t, fake)

	got := svc.GeneratePlan(context.Background(), nil,
		models.PlanParams{PlanType: models.IntentLessonPlan, GradesQuery: "3"}, "课课练", nil, false)
	if !strings.HasPrefix(got, "生成失败") {
		t.Fatalf("got %q", got)
	}
}

func TestGeneratePlanStreamFallback(t *testing.T) {
	fake := &fakeAI{err: errors.New("连接超时")}
	svc, _ := newTestService(t, fake)

	var streamed strings.Builder
	got := svc.GeneratePlanStream(context.Background(), nil,
		models.PlanParams{PlanType: models.IntentLessonPlan}, "课课练", nil, false,
		func(d string) { streamed.WriteString(d) })
	if !strings.HasPrefix(got, "生成失败") || streamed.String() != got {
		t.Fatalf("got %q, streamed %q", got, streamed.String())
	}
}

func TestChatReplyCarriesHistory(t *testing.T) {
	fake := &fakeAI{responses: []string{"上次您问的是课课练安排。"}}
	svc, _ := newTestService(t, fake)

	history := []models.ChatMessage{
		{Role: "user", Content: "三年级课课练怎么安排？"},
		{Role: "assistant", Content: "建议重点练耐力。"},
	}
	got := svc.ChatReply(context.Background(), "那我上次问的呢？", history)
	if got != "上次您问的是课课练安排。" {
		t.Fatalf("reply = %q", got)
	}

	req := fake.requests[0]
	// system + both history turns + raw input
	if len(req.Messages) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(req.Messages))
	}
	if req.Messages[1].Content != "三年级课课练怎么安排？" {
		t.Fatalf("history not forwarded: %+v", req.Messages)
	}
	if last := req.Messages[len(req.Messages)-1]; last.Content != "那我上次问的呢？" {
		t.Fatalf("final message = %+v", last)
	}
	if req.MaxTokens != 3000 {
		t.Fatalf("max_tokens = %d, want 3000", req.MaxTokens)
	}
}

func TestBuildPlanMessagesHistoryWindow(t *testing.T) {
	fake := &fakeAI{}
	svc, _ := newTestService(t, fake)

	var history []models.ChatMessage
	for i := 0; i < 10; i++ {
		history = append(history, models.ChatMessage{Role: "user", Content: "旧消息"})
	}
	messages := svc.BuildPlanMessages(nil,
		models.PlanParams{PlanType: models.IntentLessonPlan}, "新请求", history, false)
	// system + trailing window + final user prompt
	if len(messages) != 8 {
		t.Fatalf("len(messages) = %d, want 8", len(messages))
	}
	if messages[0].Role != "system" {
		t.Fatalf("first message role = %q", messages[0].Role)
	}
	if !strings.Contains(messages[len(messages)-1].Content, "新请求") {
		t.Fatalf("final prompt = %q", messages[len(messages)-1].Content)
	}
}
