package models

import "time"

// MarginType is the resource dimension an allocation draws from.
type MarginType string

const (
	MarginTime      MarginType = "TIME"
	MarginCapacity  MarginType = "CAPACITY"
	MarginMaterial  MarginType = "MATERIAL"
	MarginFinancial MarginType = "FINANCIAL"
)

// AllocationState tracks the lifecycle of a margin allocation.
type AllocationState string

const (
	StateAllocated         AllocationState = "ALLOCATED"
	StatePartiallyDeployed AllocationState = "PARTIALLY_DEPLOYED"
	StateRecovered         AllocationState = "RECOVERED"
)

// Allocation reserves margin amount for a specific operation.
// Owned exclusively by its domain manager.
type Allocation struct {
	ID          string          `json:"id"`
	Domain      string          `json:"domain"`
	Type        MarginType      `json:"marginType"`
	Amount      float64         `json:"amount"`
	Deployed    float64         `json:"deployed"`
	OperationID string          `json:"operationId"`
	Priority    Severity        `json:"priority"`
	Reason      string          `json:"reason,omitempty"`
	State       AllocationState `json:"state"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Remaining is the undeployed part of the allocation.
func (a *Allocation) Remaining() float64 {
	return a.Amount - a.Deployed
}

// Deployment consumes part of an allocation's amount for immediate use.
type Deployment struct {
	ID           string    `json:"id"`
	AllocationID string    `json:"allocationId"`
	Amount       float64   `json:"amount"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// MarginEvent is a recent-events ring entry kept for metrics and dashboards.
type MarginEvent struct {
	Kind         string    `json:"kind"` // allocate, deploy, recover, auto_allocate, ttl_recover
	AllocationID string    `json:"allocationId"`
	Amount       float64   `json:"amount"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// DomainStatus is a read-only snapshot of one domain manager's pool.
type DomainStatus struct {
	Domain            string        `json:"domain"`
	Type              MarginType    `json:"marginType"`
	Enabled           bool          `json:"enabled"`
	Capacity          float64       `json:"capacity"`
	TotalAllocated    float64       `json:"totalAllocated"`
	TotalDeployed     float64       `json:"totalDeployed"`
	AvailableMargin   float64       `json:"availableMargin"`
	UtilizationRate   float64       `json:"utilizationRate"`
	ActiveAllocations int           `json:"activeAllocations"`
	ActiveDeployments int           `json:"activeDeployments"`
	RecentEvents      []MarginEvent `json:"recentEvents"`
	CollectedAt       time.Time     `json:"collectedAt"`
}
