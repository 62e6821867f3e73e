package antifragile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarginFlow/internal/domain/models"
	domrepo "MarginFlow/internal/domain/repository"
	"MarginFlow/pkg/config"
	"MarginFlow/pkg/logger"

	"github.com/google/uuid"
)

// Config holds the engine's tunables. Patterns come from configuration, not
// constructor defaults.
type Config struct {
	MinSuccessRate     float64
	ActivationCooldown time.Duration
	HistoryRetention   time.Duration
	Patterns           []models.Pattern
}

// ConfigFromSpecs converts the yaml pattern specs into typed patterns,
// rejecting unknown enum values instead of coercing them.
func ConfigFromSpecs(cfg *config.Config) (Config, error) {
	c := Config{
		MinSuccessRate:     cfg.Antifragile.MinSuccessRate,
		ActivationCooldown: cfg.Antifragile.ActivationCooldown,
		HistoryRetention:   cfg.Antifragile.HistoryRetention,
	}
	if c.MinSuccessRate <= 0 {
		c.MinSuccessRate = 0.5
	}
	if c.ActivationCooldown <= 0 {
		c.ActivationCooldown = 5 * time.Minute
	}
	if c.HistoryRetention <= 0 {
		c.HistoryRetention = 30 * 24 * time.Hour
	}

	for _, spec := range cfg.Antifragile.Patterns {
		if spec.ID == "" {
			return Config{}, fmt.Errorf("antifragile pattern without id")
		}
		p := models.Pattern{
			ID:   spec.ID,
			Name: spec.Name,
			Trigger: models.TriggerConditions{
				MinStressLevel:    spec.MinStressLevel,
				DurationThreshold: spec.Duration,
			},
		}
		for _, ts := range spec.SignalTypes {
			st := models.SignalType(ts)
			if !st.Known() {
				return Config{}, fmt.Errorf("pattern %s: unknown signal type %q", spec.ID, ts)
			}
			p.Trigger.RequiredSignalTypes = append(p.Trigger.RequiredSignalTypes, st)
		}
		for _, as := range spec.Adaptations {
			kind := models.AdaptationKind(as)
			switch kind {
			case models.AdaptCapacityScaling, models.AdaptEfficiencyImprovement,
				models.AdaptRedundancyEnhancement, models.AdaptStressLearning,
				models.AdaptThresholdAdaptation:
			default:
				return Config{}, fmt.Errorf("pattern %s: unknown adaptation %q", spec.ID, as)
			}
			p.Adaptations = append(p.Adaptations, kind)
		}
		c.Patterns = append(c.Patterns, p)
	}
	return c, nil
}

// Engine is the stress-adaptation pattern registry. A single internal lock
// serializes ProcessStressEvent so activation counters stay consistent.
type Engine struct {
	cfg     Config
	logger  *logger.Logger
	metrics domrepo.Metrics

	mu          sync.Mutex
	patterns    []*models.Pattern
	stressSince map[string]time.Time // per pattern: when stress first met the minimum
	history     []models.AdaptationRecord

	eventSink func(*models.StressEvent)
}

// New creates the adaptation engine with the configured patterns.
func New(cfg Config, l *logger.Logger, metrics domrepo.Metrics) *Engine {
	e := &Engine{
		cfg:         cfg,
		logger:      l,
		metrics:     metrics,
		stressSince: make(map[string]time.Time),
	}
	for i := range cfg.Patterns {
		p := cfg.Patterns[i]
		e.patterns = append(e.patterns, &p)
	}
	return e
}

// SetEventSink wires the asynchronous stress-event persistence hook.
func (e *Engine) SetEventSink(sink func(*models.StressEvent)) { e.eventSink = sink }

// Name implements repository.Subscriber.
func (e *Engine) Name() string { return "antifragile" }

// OnSignals implements repository.Subscriber.
func (e *Engine) OnSignals(_ context.Context, signals []models.Signal) error {
	e.ProcessStressEvent(signals)
	return nil
}

// StressLevel computes the severity-weighted stress score for a batch,
// clamped to [0,100].
func StressLevel(signals []models.Signal) float64 {
	var level float64
	for i := range signals {
		level += signals[i].Severity.StressWeight()
	}
	if level > 100 {
		level = 100
	}
	return level
}

// ProcessStressEvent evaluates all patterns against the batch, executes the
// adaptations of activated patterns, and records one immutable StressEvent.
func (e *Engine) ProcessStressEvent(signals []models.Signal) models.StressAdaptationResult {
	now := time.Now()
	level := StressLevel(signals)
	e.metrics.SetStressLevel(level)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.expireCooldowns(now)
	e.trimHistory(now)

	result := models.StressAdaptationResult{StressLevel: level}
	present := make(map[models.SignalType]struct{}, len(signals))
	for i := range signals {
		present[signals[i].Type] = struct{}{}
	}

	for _, p := range e.patterns {
		if !e.shouldActivate(p, level, present, now) {
			continue
		}

		p.IsActive = true
		p.LastActivated = now
		p.ActivationCount++
		result.ActivatedPatterns = append(result.ActivatedPatterns, p.ID)

		successes := 0
		for _, kind := range p.Adaptations {
			out := runAdaptation(kind, signals)
			rec := models.AdaptationRecord{
				ID:                uuid.NewString(),
				PatternID:         p.ID,
				Kind:              kind,
				Success:           out.success,
				PerformanceImpact: out.impact,
				Description:       out.description,
				Timestamp:         now,
			}
			e.history = append(e.history, rec)
			result.Records = append(result.Records, rec)
			if out.success {
				successes++
			}
		}

		batchRate := 0.0
		if len(p.Adaptations) > 0 {
			batchRate = float64(successes) / float64(len(p.Adaptations))
		}
		n := float64(p.ActivationCount)
		p.SuccessRate = (p.SuccessRate*(n-1) + batchRate) / n

		e.logger.Info("antifragile pattern activated",
			logger.String("pattern", p.ID),
			logger.Any("stress_level", level),
			logger.Int("adaptations", len(p.Adaptations)),
			logger.Any("success_rate", p.SuccessRate))
	}

	event := e.buildEvent(signals, level, result, now)
	result.Event = event
	if e.eventSink != nil {
		e.eventSink(event)
	}
	return result
}

// shouldActivate applies the trigger gates: cooldown, stress floor, required
// types, duration threshold, and the success-rate gate for repeat activations.
func (e *Engine) shouldActivate(p *models.Pattern, level float64, present map[models.SignalType]struct{}, now time.Time) bool {
	if !p.LastActivated.IsZero() && now.Sub(p.LastActivated) < e.cfg.ActivationCooldown {
		return false
	}
	if level < p.Trigger.MinStressLevel {
		delete(e.stressSince, p.ID)
		return false
	}
	for _, st := range p.Trigger.RequiredSignalTypes {
		if _, ok := present[st]; !ok {
			return false
		}
	}
	if p.Trigger.DurationThreshold > 0 {
		since, ok := e.stressSince[p.ID]
		if !ok {
			e.stressSince[p.ID] = now
			return false
		}
		if now.Sub(since) < p.Trigger.DurationThreshold {
			return false
		}
	}
	if p.ActivationCount > 0 && p.SuccessRate < e.cfg.MinSuccessRate {
		return false
	}
	return true
}

func (e *Engine) expireCooldowns(now time.Time) {
	for _, p := range e.patterns {
		if p.IsActive && now.Sub(p.LastActivated) >= e.cfg.ActivationCooldown {
			p.IsActive = false
		}
	}
}

func (e *Engine) trimHistory(now time.Time) {
	cutoff := now.Add(-e.cfg.HistoryRetention)
	idx := 0
	for idx < len(e.history) && e.history[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		e.history = e.history[idx:]
	}
}

func (e *Engine) buildEvent(signals []models.Signal, level float64, result models.StressAdaptationResult, now time.Time) *models.StressEvent {
	ids := make([]string, 0, len(signals))
	var critical int
	for i := range signals {
		ids = append(ids, signals[i].ID)
		if signals[i].Severity == models.SeverityCritical {
			critical++
		}
	}
	var kinds []models.AdaptationKind
	var impactSum float64
	successes := 0
	for _, rec := range result.Records {
		kinds = append(kinds, rec.Kind)
		impactSum += rec.PerformanceImpact
		if rec.Success {
			successes++
		}
	}

	outcome := models.StressOutcome{Success: len(result.Records) == 0 || successes*2 >= len(result.Records)}
	if len(result.Records) > 0 {
		outcome.ImprovementRate = impactSum / float64(len(result.Records))
		if !outcome.Success {
			outcome.FollowUpActions = []string{"review failed adaptations", "reassess pattern thresholds"}
		}
		outcome.LessonsLearned = []string{
			fmt.Sprintf("stress level %.0f activated %d patterns", level, len(result.ActivatedPatterns)),
		}
	}

	// Derived performance figures: deterministic functions of the batch until
	// real instrumentation lands. Bounds: non-negative, errorRate in [0,1].
	errRate := 0.01 * float64(critical)
	if errRate > 1 {
		errRate = 1
	}
	return &models.StressEvent{
		ID:                 uuid.NewString(),
		Timestamp:          now,
		StressLevel:        level,
		TriggerSignals:     ids,
		AdaptationsApplied: kinds,
		Performance: models.PerformanceSnapshot{
			ResponseTimeMS:      50 + 10*float64(len(signals)),
			Throughput:          float64(len(signals)),
			ErrorRate:           errRate,
			ResourceUtilization: level / 100,
		},
		Outcome: outcome,
	}
}

// Status returns a read-only snapshot of the engine.
func (e *Engine) Status() models.AntifragileStatus {
	now := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireCooldowns(now)

	var active []models.Pattern
	for _, p := range e.patterns {
		if p.IsActive {
			active = append(active, *p)
		}
	}

	recent := 0
	successes := 0
	dayAgo := now.Add(-24 * time.Hour)
	for i := range e.history {
		if e.history[i].Timestamp.After(dayAgo) {
			recent++
		}
		if e.history[i].Success {
			successes++
		}
	}
	rate := 0.0
	if len(e.history) > 0 {
		rate = float64(successes) / float64(len(e.history))
	}

	score := rate*50 + float64(len(active))*10 + float64(recent)*2
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	return models.AntifragileStatus{
		ActivePatterns:    active,
		PatternCount:      len(e.patterns),
		RecentAdaptations: recent,
		SuccessRate:       rate,
		Score:             score,
		CollectedAt:       now,
	}
}

var _ domrepo.Subscriber = (*Engine)(nil)
