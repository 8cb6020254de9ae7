package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/briefops/briefer/config"
)

// Telemetry records per-stage durations, token usage and cost across
// pipeline runs. It is purely additive: nothing in here gates control
// flow.
type Telemetry struct {
	config config.TelemetryConfig
	logger *log.Logger

	mu             sync.RWMutex
	totalRuns      int64
	successfulRuns int64
	failedRuns     int64
	stageDurations map[string]time.Duration
	stageCounts    map[string]int64
	modelTokens    map[string]int64
	modelCosts     map[string]float64
	totalTokens    int64
	totalCost      float64
}

// Prometheus collectors for the /metrics endpoint.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "briefer_runs_total",
		Help: "Pipeline runs by outcome.",
	}, []string{"outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "briefer_stage_duration_seconds",
		Help:    "Duration of pipeline stages.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage", "status"})

	tokensUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "briefer_llm_tokens_total",
		Help: "LLM tokens consumed by model.",
	}, []string{"model", "kind"})
)

// New creates a telemetry recorder.
func New(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config:         cfg,
		logger:         log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		stageDurations: make(map[string]time.Duration),
		stageCounts:    make(map[string]int64),
		modelTokens:    make(map[string]int64),
		modelCosts:     make(map[string]float64),
	}
	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startPeriodicReporting()
	}
	return t
}

// RecordStage records one stage execution.
func (t *Telemetry) RecordStage(stage, status string, duration time.Duration) {
	if !t.config.Enabled {
		return
	}
	stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()
	t.stageDurations[stage] += duration
	t.stageCounts[stage]++
}

// RecordInvocation records token usage and cost for one model call.
func (t *Telemetry) RecordInvocation(model string, promptTokens, completionTokens int64, cost float64) {
	if !t.config.Enabled {
		return
	}
	tokensUsed.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	tokensUsed.WithLabelValues(model, "completion").Add(float64(completionTokens))

	t.mu.Lock()
	defer t.mu.Unlock()
	t.modelTokens[model] += promptTokens + completionTokens
	t.totalTokens += promptTokens + completionTokens
	if t.config.CostTracking {
		t.modelCosts[model] += cost
		t.totalCost += cost
	}
}

// RecordRun records the outcome of one complete pipeline run.
func (t *Telemetry) RecordRun(success bool, duration time.Duration, tokens int64, cost float64) {
	if !t.config.Enabled {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	runsTotal.WithLabelValues(outcome).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalRuns++
	if success {
		t.successfulRuns++
	} else {
		t.failedRuns++
	}
	t.logger.Printf("Run: success=%t duration=%v tokens=%d cost=$%.4f", success, duration, tokens, cost)
}

// Summary is a snapshot of accumulated telemetry.
type Summary struct {
	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64
	TotalTokens    int64
	TotalCost      float64
	ModelTokens    map[string]int64
	ModelCosts     map[string]float64
}

// GetSummary returns a copy of the current totals.
func (t *Telemetry) GetSummary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Summary{
		TotalRuns:      t.totalRuns,
		SuccessfulRuns: t.successfulRuns,
		FailedRuns:     t.failedRuns,
		TotalTokens:    t.totalTokens,
		TotalCost:      t.totalCost,
		ModelTokens:    make(map[string]int64, len(t.modelTokens)),
		ModelCosts:     make(map[string]float64, len(t.modelCosts)),
	}
	for k, v := range t.modelTokens {
		s.ModelTokens[k] = v
	}
	for k, v := range t.modelCosts {
		s.ModelCosts[k] = v
	}
	return s
}

func (t *Telemetry) startPeriodicReporting() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s := t.GetSummary()
		t.logger.Printf("Snapshot: runs=%d/%d tokens=%d cost=$%.4f",
			s.SuccessfulRuns, s.TotalRuns, s.TotalTokens, s.TotalCost)
		for model, cost := range s.ModelCosts {
			t.logger.Printf("  model %s: %d tokens, $%.4f", model, s.ModelTokens[model], cost)
		}
	}
}
