package metrics

import (
	"sync"
	"time"
)

// Metrics holds process-wide request counters. All methods are safe for
// concurrent use.
type Metrics struct {
	mu sync.Mutex

	startedAt time.Time

	planRequests    int64
	streamedPlans   int64
	intentCacheHits int64
	llmCalls        int64
	llmFailures     int64
	uploadsAnalyzed int64
	profilesDeleted int64
}

// Snapshot is a point-in-time copy of the counters for the metrics endpoint.
type Snapshot struct {
	UptimeSeconds   int64 `json:"uptime_seconds"`
	PlanRequests    int64 `json:"plan_requests"`
	StreamedPlans   int64 `json:"streamed_plans"`
	IntentCacheHits int64 `json:"intent_cache_hits"`
	LLMCalls        int64 `json:"llm_calls"`
	LLMFailures     int64 `json:"llm_failures"`
	UploadsAnalyzed int64 `json:"uploads_analyzed"`
	ProfilesDeleted int64 `json:"profiles_deleted"`
}

func New() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

func (m *Metrics) PlanRequest(streamed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planRequests++
	if streamed {
		m.streamedPlans++
	}
}

func (m *Metrics) IntentCacheHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intentCacheHits++
}

func (m *Metrics) LLMCall(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.llmCalls++
	if failed {
		m.llmFailures++
	}
}

func (m *Metrics) UploadAnalyzed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadsAnalyzed++
}

func (m *Metrics) ProfileDeleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profilesDeleted++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		UptimeSeconds:   int64(time.Since(m.startedAt).Seconds()),
		PlanRequests:    m.planRequests,
		StreamedPlans:   m.streamedPlans,
		IntentCacheHits: m.intentCacheHits,
		LLMCalls:        m.llmCalls,
		LLMFailures:     m.llmFailures,
		UploadsAnalyzed: m.uploadsAnalyzed,
		ProfilesDeleted: m.profilesDeleted,
	}
}
