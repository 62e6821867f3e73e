package models

import "time"

// Operator compares a metric value against a threshold.
type Operator string

const (
	OpGT  Operator = "GT"
	OpLT  Operator = "LT"
	OpGTE Operator = "GTE"
	OpLTE Operator = "LTE"
	OpEQ  Operator = "EQ"
)

// Matches applies the operator to (value, threshold).
func (o Operator) Matches(value, threshold float64) bool {
	switch o {
	case OpGT:
		return value > threshold
	case OpLT:
		return value < threshold
	case OpGTE:
		return value >= threshold
	case OpLTE:
		return value <= threshold
	case OpEQ:
		return value == threshold
	default:
		return false
	}
}

// AlertThreshold is one configured alerting rule.
type AlertThreshold struct {
	Metric   string   `json:"metric" yaml:"metric"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    float64  `json:"value" yaml:"value"`
	Severity Severity `json:"severity" yaml:"severity"`
}

// AlertStatus is the forward-only lifecycle of a monitoring alert.
type AlertStatus string

const (
	AlertActive       AlertStatus = "ACTIVE"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertResolved     AlertStatus = "RESOLVED"
)

// MonitoringAlert is emitted when a threshold matches a metrics snapshot.
type MonitoringAlert struct {
	ID             string                 `json:"id"`
	Timestamp      time.Time              `json:"timestamp"`
	Severity       Severity               `json:"severity"`
	Type           string                 `json:"type"`
	Metric         string                 `json:"metric"`
	Message        string                 `json:"message"`
	Context        map[string]interface{} `json:"context,omitempty"`
	Status         AlertStatus            `json:"status"`
	AcknowledgedAt *time.Time             `json:"acknowledgedAt,omitempty"`
	ResolvedAt     *time.Time             `json:"resolvedAt,omitempty"`
	Resolution     string                 `json:"resolution,omitempty"`
}

// ComponentScores are the weighted inputs to the overall resilience score.
type ComponentScores struct {
	SignalProcessing float64 `json:"signalProcessing"`
	Antifragile      float64 `json:"antifragile"`
	Adaptive         float64 `json:"adaptive"`
	MarginEfficiency float64 `json:"marginEfficiency"`
	ResponseTime     float64 `json:"responseTime"`
	ErrorHandling    float64 `json:"errorHandling"`
}

// SystemPerformance is the performance block of a metrics snapshot.
type SystemPerformance struct {
	LatencyMS    float64 `json:"latencyMs"`
	Throughput   float64 `json:"throughput"`
	ErrorRate    float64 `json:"errorRate"`
	Availability float64 `json:"availability"`
}

// ResilienceMetrics is a point-in-time snapshot assembled by the monitor.
type ResilienceMetrics struct {
	Timestamp            time.Time          `json:"timestamp"`
	OverallScore         float64            `json:"overallScore"`
	Components           ComponentScores    `json:"components"`
	Performance          SystemPerformance  `json:"performance"`
	MarginUtilization    map[string]float64 `json:"marginUtilization"`
	AntifragileScore     float64            `json:"antifragileScore"`
	SignalsProcessed     int64              `json:"signalsProcessed"`
	SignalsFiltered      int64              `json:"signalsFiltered"`
	SeverityDistribution map[Severity]int64 `json:"severityDistribution"`
	Health               string             `json:"health"` // healthy, degraded, critical
}
