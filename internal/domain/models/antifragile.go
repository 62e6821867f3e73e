package models

import "time"

// AdaptationKind names a strategy the antifragile engine can execute.
type AdaptationKind string

const (
	AdaptCapacityScaling       AdaptationKind = "CAPACITY_SCALING"
	AdaptEfficiencyImprovement AdaptationKind = "EFFICIENCY_IMPROVEMENT"
	AdaptRedundancyEnhancement AdaptationKind = "REDUNDANCY_ENHANCEMENT"
	AdaptStressLearning        AdaptationKind = "STRESS_LEARNING"
	AdaptThresholdAdaptation   AdaptationKind = "THRESHOLD_ADAPTATION"
)

// TriggerConditions gate a pattern's activation.
type TriggerConditions struct {
	MinStressLevel      float64       `json:"minStressLevel" yaml:"min_stress_level"`
	RequiredSignalTypes []SignalType  `json:"requiredSignalTypes" yaml:"required_signal_types"`
	DurationThreshold   time.Duration `json:"durationThreshold" yaml:"duration_threshold"`
}

// Pattern is a named rule that runs adaptations once stress conditions are met.
// Patterns are supplied by configuration, not hardcoded.
type Pattern struct {
	ID              string            `json:"id" yaml:"id"`
	Name            string            `json:"name" yaml:"name"`
	Trigger         TriggerConditions `json:"triggerConditions" yaml:"trigger"`
	Adaptations     []AdaptationKind  `json:"adaptations" yaml:"adaptations"`
	IsActive        bool              `json:"isActive" yaml:"-"`
	LastActivated   time.Time         `json:"lastActivated" yaml:"-"`
	ActivationCount int               `json:"activationCount" yaml:"-"`
	SuccessRate     float64           `json:"successRate" yaml:"-"`
}

// AdaptationRecord is one adaptation execution in the append-only history.
type AdaptationRecord struct {
	ID                string         `json:"id"`
	PatternID         string         `json:"patternId"`
	Kind              AdaptationKind `json:"kind"`
	Success           bool           `json:"success"`
	PerformanceImpact float64        `json:"performanceImpact"`
	Description       string         `json:"description"`
	Timestamp         time.Time      `json:"timestamp"`
}

// PerformanceSnapshot holds derived performance figures for a stress event.
// Values are deterministic functions of the signal batch until real
// instrumentation replaces them; bounds are preserved either way.
type PerformanceSnapshot struct {
	ResponseTimeMS      float64 `json:"responseTimeMs"`
	Throughput          float64 `json:"throughput"`
	ErrorRate           float64 `json:"errorRate"`
	ResourceUtilization float64 `json:"resourceUtilization"`
}

// StressOutcome summarizes how a stress event played out.
type StressOutcome struct {
	Success         bool     `json:"success"`
	ImprovementRate float64  `json:"improvementRate"`
	LessonsLearned  []string `json:"lessonsLearned,omitempty"`
	FollowUpActions []string `json:"followUpActions,omitempty"`
}

// StressEvent is created once per processed signal batch, immutable after creation.
type StressEvent struct {
	ID                 string              `json:"id"`
	Timestamp          time.Time           `json:"timestamp"`
	StressLevel        float64             `json:"stressLevel"`
	TriggerSignals     []string            `json:"triggerSignals"`
	AdaptationsApplied []AdaptationKind    `json:"adaptationsApplied"`
	Performance        PerformanceSnapshot `json:"performanceMetrics"`
	Outcome            StressOutcome       `json:"outcome"`
}

// StressAdaptationResult is returned by ProcessStressEvent.
type StressAdaptationResult struct {
	StressLevel       float64            `json:"stressLevel"`
	ActivatedPatterns []string           `json:"activatedPatterns"`
	Records           []AdaptationRecord `json:"records"`
	Event             *StressEvent       `json:"event"`
}

// AntifragileStatus is a read-only snapshot of the adaptation engine.
type AntifragileStatus struct {
	ActivePatterns    []Pattern `json:"activePatterns"`
	PatternCount      int       `json:"patternCount"`
	RecentAdaptations int       `json:"recentAdaptations"` // last 24h
	SuccessRate       float64   `json:"successRate"`
	Score             float64   `json:"antifragileScore"`
	CollectedAt       time.Time `json:"collectedAt"`
}
