package models

import (
	"fmt"
	"time"
)

// SignalType classifies the real-world condition a signal describes.
type SignalType string

const (
	SignalAssetCondition         SignalType = "ASSET_CONDITION"
	SignalEmergency              SignalType = "EMERGENCY"
	SignalMaintenance            SignalType = "MAINTENANCE"
	SignalRiskEscalation         SignalType = "RISK_ESCALATION"
	SignalEnvironmental          SignalType = "ENVIRONMENTAL"
	SignalPerformanceDegradation SignalType = "PERFORMANCE_DEGRADATION"
)

// Severity is the urgency class of a signal, also reused as allocation priority.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank orders severities; stress weights per severity are 10/20/30/40.
var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

var severityWeight = map[Severity]float64{
	SeverityLow:      10,
	SeverityMedium:   20,
	SeverityHigh:     30,
	SeverityCritical: 40,
}

// Known reports whether s is a recognized severity.
func (s Severity) Known() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// StressWeight returns the stress-level contribution of a signal of this severity.
func (s Severity) StressWeight() float64 {
	return severityWeight[s]
}

var knownSignalTypes = map[SignalType]struct{}{
	SignalAssetCondition:         {},
	SignalEmergency:              {},
	SignalMaintenance:            {},
	SignalRiskEscalation:         {},
	SignalEnvironmental:          {},
	SignalPerformanceDegradation: {},
}

// Known reports whether t is a recognized signal type.
func (t SignalType) Known() bool {
	_, ok := knownSignalTypes[t]
	return ok
}

// SignalStatus is the external lifecycle of an ingested signal.
type SignalStatus string

const (
	SignalActive       SignalStatus = "ACTIVE"
	SignalAcknowledged SignalStatus = "ACKNOWLEDGED"
	SignalResolved     SignalStatus = "RESOLVED"
)

// Signal is an immutable event record produced by external monitors.
type Signal struct {
	ID          string                 `json:"id"`
	Type        SignalType             `json:"type"`
	Severity    Severity               `json:"severity"`
	Source      string                 `json:"source"`
	Timestamp   time.Time              `json:"timestamp"`
	Description string                 `json:"description,omitempty"`
	Strength    float64                `json:"strength,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Status      SignalStatus           `json:"status,omitempty"`
}

// Validate rejects malformed signals; they are filtered, never coerced.
func (s *Signal) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil signal", ErrInvalidRequest)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: empty signal id", ErrInvalidRequest)
	}
	if !s.Type.Known() {
		return fmt.Errorf("%w: unknown signal type %q", ErrInvalidRequest, s.Type)
	}
	if !s.Severity.Known() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidRequest, s.Severity)
	}
	if s.Strength < 0 {
		return fmt.Errorf("%w: negative strength", ErrInvalidRequest)
	}
	return nil
}

// IsEmergency reports whether the signal matches the domain managers'
// auto-allocation criteria: EMERGENCY, or RISK_ESCALATION at HIGH or above.
func (s *Signal) IsEmergency() bool {
	if s.Type == SignalEmergency {
		return true
	}
	return s.Type == SignalRiskEscalation && s.Severity.AtLeast(SeverityHigh)
}
