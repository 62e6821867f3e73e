package antifragile

import (
	"fmt"

	"MarginFlow/internal/domain/models"
)

// Adaptation executions are pure functions of the signal batch. The impact
// figures are deterministic placeholders pending real instrumentation; they
// stay non-negative and bounded so downstream scores hold their [0,100] range.

type adaptationOutcome struct {
	success     bool
	impact      float64
	description string
}

func runAdaptation(kind models.AdaptationKind, signals []models.Signal) adaptationOutcome {
	var critical, high, emergencies int
	types := make(map[models.SignalType]struct{})
	for i := range signals {
		types[signals[i].Type] = struct{}{}
		switch signals[i].Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityHigh:
			high++
		}
		if signals[i].IsEmergency() {
			emergencies++
		}
	}

	switch kind {
	case models.AdaptCapacityScaling:
		ok := emergencies > 0
		impact := capImpact(5 + 0.5*float64(emergencies))
		return adaptationOutcome{ok, impact, fmt.Sprintf("scaled capacity for %d emergency signals", emergencies)}

	case models.AdaptEfficiencyImprovement:
		impact := capImpact(2 + 0.25*float64(len(signals)))
		return adaptationOutcome{true, impact, fmt.Sprintf("tuned processing paths across %d signals", len(signals))}

	case models.AdaptRedundancyEnhancement:
		ok := critical > 0 || high > 1
		impact := capImpact(4 + float64(critical)*2)
		return adaptationOutcome{ok, impact, fmt.Sprintf("added redundancy for %d critical conditions", critical)}

	case models.AdaptStressLearning:
		impact := capImpact(1 + float64(len(types)))
		return adaptationOutcome{true, impact, fmt.Sprintf("recorded stress profile over %d signal types", len(types))}

	case models.AdaptThresholdAdaptation:
		ok := len(signals) >= 3
		impact := capImpact(3)
		return adaptationOutcome{ok, impact, "recalibrated trigger thresholds from observed cluster"}

	default:
		return adaptationOutcome{false, 0, fmt.Sprintf("unknown adaptation kind %q", kind)}
	}
}

func capImpact(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 15 {
		return 15
	}
	return v
}
