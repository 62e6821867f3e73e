package models

// Requests for engine HTTP endpoints. Defined in domain for consistency and reuse.

type IngestSignalsRequest struct {
	Signals []Signal `json:"signals" validate:"required,min=1,max=500"`
}

type AllocateRequest struct {
	OperationID string  `json:"operationId" validate:"required"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Priority    string  `json:"priority" default:"MEDIUM" validate:"oneof=LOW MEDIUM HIGH CRITICAL"`
	Reason      string  `json:"reason" validate:"max=500"`
}

type DeployRequest struct {
	AllocationID string  `json:"allocationId" validate:"required"`
	Amount       float64 `json:"amount" validate:"required,gt=0"`
	Reason       string  `json:"reason" validate:"max=500"`
}

type RecoverRequest struct {
	AllocationID string `json:"allocationId" validate:"required"`
	Reason       string `json:"reason" validate:"max=500"`
}

type MetricsHistoryRequest struct {
	Limit int `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type AlertsRequest struct {
	All   bool `query:"all" json:"all"`
	Limit int  `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type ResolveAlertRequest struct {
	Resolution string `json:"resolution" validate:"max=500"`
}
