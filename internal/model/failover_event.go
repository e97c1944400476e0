package model

import (
	"encoding/json"
	"time"
)

// Failover reasons.
const (
	ReasonSpotPreemption  = "SPOT_PREEMPTION"
	ReasonNetworkTimeout  = "NETWORK_TIMEOUT"
	ReasonProviderError   = "PROVIDER_ERROR"
	ReasonHostMaintenance = "HOST_MAINTENANCE"
	ReasonOutOfMemory     = "OUT_OF_MEMORY"
	ReasonUnknown         = "UNKNOWN"
)

// Failover event status. Transitions only IN_PROGRESS -> {SUCCESS, FAILED}.
const (
	FailoverStatusInProgress = "IN_PROGRESS"
	FailoverStatusSuccess    = "SUCCESS"
	FailoverStatusFailed     = "FAILED"
)

// Phase keys recorded per failover, in execution order.
const (
	PhaseDetection          = "detection"
	PhaseFailoverActivation = "failover_activation"
	PhaseGpuSearch          = "gpu_search"
	PhaseProvisioning       = "provisioning"
	PhaseRestore            = "restore"
)

// FailoverEvent is a single failover occurrence. Once terminal it is
// append-only for audit; nothing updates a SUCCESS or FAILED row again.
type FailoverEvent struct {
	Id                int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	EventID           string    `json:"event_id" gorm:"column:event_id;uniqueIndex"`
	PrimaryInstanceID string    `json:"primary_instance_id" gorm:"column:primary_instance_id;index"`
	Reason            string    `json:"reason" gorm:"column:reason"`
	Status            string    `json:"status" gorm:"column:status;index"`
	StartedAt         time.Time `json:"started_at" gorm:"column:started_at;index"`
	FinishedAt        time.Time `json:"finished_at" gorm:"column:finished_at"`
	Phases            string    `json:"-" gorm:"column:phases"` // JSON: phase name -> duration ms
	TotalTimeMs       int64     `json:"total_time_ms" gorm:"column:total_time_ms"`
	NewInstanceID     string    `json:"new_instance_id" gorm:"column:new_instance_id"`
	DataRestoredBytes int64     `json:"data_restored_bytes" gorm:"column:data_restored_bytes"`
	FilesSyncedCount  int64     `json:"files_synced_count" gorm:"column:files_synced_count"`
	FailureReason     string    `json:"failure_reason" gorm:"column:failure_reason"`
	CreateTime        time.Time `json:"create_time" gorm:"column:gmt_create"`
	UpdateTime        time.Time `json:"update_time" gorm:"column:gmt_modified"`
}

func (FailoverEvent) TableName() string {
	return "failover_event"
}

// PhaseDurations decodes the phases JSON column. Missing/invalid data yields
// an empty map rather than an error; phases are advisory timings.
func (e *FailoverEvent) PhaseDurations() map[string]int64 {
	out := make(map[string]int64)
	if e.Phases == "" {
		return out
	}
	_ = json.Unmarshal([]byte(e.Phases), &out)
	return out
}

// SetPhaseDurations encodes the phase map into the JSON column.
func (e *FailoverEvent) SetPhaseDurations(phases map[string]int64) {
	data, err := json.Marshal(phases)
	if err != nil {
		return
	}
	e.Phases = string(data)
}

func (e *FailoverEvent) Terminal() bool {
	return e.Status == FailoverStatusSuccess || e.Status == FailoverStatusFailed
}
