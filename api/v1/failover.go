package v1

import "time"

type TriggerFailoverRequest struct {
	PrimaryInstanceID string `json:"primary_instance_id" binding:"required"`
	Reason            string `json:"reason"`
}

type TriggerFailoverResponseData struct {
	EventID string `json:"event_id"`
}

type TriggerFailoverResponse struct {
	Response
	Data TriggerFailoverResponseData
}

type FailoverEventDetail struct {
	EventID           string           `json:"event_id"`
	PrimaryInstanceID string           `json:"primary_instance_id"`
	Reason            string           `json:"reason"`
	Status            string           `json:"status"`
	StartedAt         time.Time        `json:"started_at"`
	FinishedAt        *time.Time       `json:"finished_at,omitempty"`
	Phases            map[string]int64 `json:"phases"`
	TotalTimeMs       int64            `json:"total_time_ms"`
	NewInstanceID     string           `json:"new_instance_id,omitempty"`
	DataRestoredBytes int64            `json:"data_restored_bytes"`
	FilesSyncedCount  int64            `json:"files_synced_count"`
	FailureReason     string           `json:"failure_reason,omitempty"`
}

type GetFailoverEventResponse struct {
	Response
	Data FailoverEventDetail
}

type ListFailoverRequest struct {
	PrimaryInstanceID string `form:"primary_instance_id"`
	Status            string `form:"status"`
	Since             string `form:"since" example:"2026-08-01T00:00:00Z"`
	Until             string `form:"until"`
	Page              int    `form:"page"`
	PageSize          int    `form:"page_size"`
}

type ListFailoverResponseData struct {
	List  []*FailoverEventDetail `json:"list"`
	Total int64                  `json:"total"`
}

type ListFailoverResponse struct {
	Response
	Data ListFailoverResponseData
}

type FailoverStatsRequest struct {
	Since string `form:"since"`
}

type FailoverStatsData struct {
	Total          int64            `json:"total"`
	Success        int64            `json:"success"`
	Failed         int64            `json:"failed"`
	InProgress     int64            `json:"in_progress"`
	SuccessRate    float64          `json:"success_rate"`
	AvgTotalTimeMs float64          `json:"avg_total_time_ms"`
	ByReason       map[string]int64 `json:"by_reason"`
}

type FailoverStatsResponse struct {
	Response
	Data FailoverStatsData
}
