package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"teachprep-server-go/logger"
	"teachprep-server-go/metrics"
	"teachprep-server-go/models"
	"teachprep-server-go/planner"
)

// PlanHandler serves the plan-generation endpoints.
type PlanHandler struct {
	planner *planner.Service
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewPlanHandler(p *planner.Service, m *metrics.Metrics, log *logger.Logger) *PlanHandler {
	return &PlanHandler{planner: p, metrics: m, log: log.With("handler", "Plan")}
}

type planRequest struct {
	Message             string               `json:"message"`
	ConversationHistory []models.ChatMessage `json:"conversation_history"`
	OverrideParams      map[string]any       `json:"override_params"`
}

// GeneratePlan handles POST /api/teacher/plan.
func (h *PlanHandler) GeneratePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请求格式错误"})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" && len(req.OverrideParams) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请输入消息内容"})
		return
	}
	h.metrics.PlanRequest(false)

	ctx := c.Request.Context()
	intent := h.resolveIntent(c, req)

	if intent == models.IntentChat {
		reply := h.planner.ChatReply(ctx, req.Message, req.ConversationHistory)
		c.JSON(http.StatusOK, gin.H{
			"success":              true,
			"response":             reply,
			"conversation_history": appendTurn(req.ConversationHistory, req.Message, reply),
			"is_chat":              true,
		})
		return
	}

	params, _ := h.planner.CollectEntities(ctx, intent, req.Message, req.ConversationHistory)
	planner.ApplyOverrides(&params, req.OverrideParams)
	params.PlanType = intent

	if planner.NeedGuidance(intent, params) {
		ask := h.planner.GeneratePlan(ctx, nil, params, req.Message, req.ConversationHistory, true)
		c.JSON(http.StatusOK, gin.H{
			"success":              true,
			"need_more_info":       true,
			"ask":                  ask,
			"conversation_history": appendTurn(req.ConversationHistory, req.Message, ask),
			"collected_params":     params,
		})
		return
	}

	results := h.planner.Retrieve(ctx, intent, req.Message, params)
	response := h.planner.GeneratePlan(ctx, results, params, req.Message, req.ConversationHistory, false)
	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"response":             response,
		"conversation_history": appendTurn(req.ConversationHistory, req.Message, response),
		"params":               params,
		"results_count":        len(results),
	})
}

// GeneratePlanStream handles POST /api/teacher/plan/stream. The body is
// chunked plain text; guidance turns are marked with response headers so the
// client can re-prompt the user.
func (h *PlanHandler) GeneratePlanStream(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请求格式错误"})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" && len(req.OverrideParams) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请输入消息内容"})
		return
	}
	h.metrics.PlanRequest(true)

	ctx := c.Request.Context()
	intent := h.resolveIntent(c, req)

	writer := c.Writer
	onDelta := func(delta string) {
		if delta == "" {
			return
		}
		_, _ = writer.WriteString(delta)
		writer.Flush()
	}
	streamHeaders := func() {
		writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
		writer.Header().Set("X-Accel-Buffering", "no")
	}

	if intent == models.IntentChat {
		streamHeaders()
		writer.WriteHeader(http.StatusOK)
		h.planner.StreamChatReply(ctx, req.Message, onDelta)
		return
	}

	params, _ := h.planner.CollectEntities(ctx, intent, req.Message, req.ConversationHistory)
	planner.ApplyOverrides(&params, req.OverrideParams)
	params.PlanType = intent

	if planner.NeedGuidance(intent, params) {
		streamHeaders()
		// Headers must be ASCII, so the JSON is \u-escaped.
		writer.Header().Set("X-Need-More-Info", "1")
		writer.Header().Set("X-Collected-Params", asciiJSON(params))
		writer.WriteHeader(http.StatusOK)
		h.planner.GeneratePlanStream(ctx, nil, params, req.Message, req.ConversationHistory, true, onDelta)
		return
	}

	results := h.planner.Retrieve(ctx, intent, req.Message, params)
	streamHeaders()
	writer.WriteHeader(http.StatusOK)
	h.planner.GeneratePlanStream(ctx, results, params, req.Message, req.ConversationHistory, false, onDelta)
}

// resolveIntent honors an explicit plan_type override and otherwise runs
// intent recognition.
func (h *PlanHandler) resolveIntent(c *gin.Context, req planRequest) string {
	if v, ok := req.OverrideParams["plan_type"].(string); ok {
		switch v {
		case models.IntentSportsMeeting, models.IntentLessonPlan, models.IntentChat:
			return v
		}
	}
	return h.planner.DetectIntent(c.Request.Context(), req.Message, req.ConversationHistory)
}

func appendTurn(history []models.ChatMessage, userText, reply string) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(history)+2)
	out = append(out, history...)
	out = append(out,
		models.ChatMessage{Role: "user", Content: userText},
		models.ChatMessage{Role: "assistant", Content: reply},
	)
	return out
}

// asciiJSON marshals v and escapes every non-ASCII rune so the result is safe
// to carry in an HTTP header.
func asciiJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	var b strings.Builder
	for _, r := range string(raw) {
		if r < 128 {
			b.WriteRune(r)
		} else {
			fmt.Fprintf(&b, "\\u%04x", r)
		}
	}
	return b.String()
}
