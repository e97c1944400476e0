package model

import (
	"time"
)

// Instance lifecycle states, mirrored from the provider side.
const (
	InstanceStateProvisioning = "PROVISIONING"
	InstanceStateRunning      = "RUNNING"
	InstanceStatePaused       = "PAUSED"
	InstanceStateInterrupted  = "INTERRUPTED"
	InstanceStateDestroyed    = "DESTROYED"
)

type Instance struct {
	Id           int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	InstanceID   string    `json:"instance_id" gorm:"column:instance_id;uniqueIndex"` // provider-side opaque id
	Provider     string    `json:"provider" gorm:"column:provider"`                   // SPOT_GPU / CPU_STANDBY / REPLACEMENT_GPU
	GpuType      string    `json:"gpu_type" gorm:"column:gpu_type"`
	GpuCount     int       `json:"gpu_count" gorm:"column:gpu_count"`
	VRAMGb       int       `json:"vram_gb" gorm:"column:vram_gb"`
	State        string    `json:"state" gorm:"column:state;index"`
	IPAddress    string    `json:"ip_address" gorm:"column:ip_address"`
	Region       string    `json:"region" gorm:"column:region"`
	HourlyCost   float64   `json:"hourly_cost" gorm:"column:hourly_cost"`
	WorkspaceDir string    `json:"workspace_dir" gorm:"column:workspace_dir"`
	CreateTime   time.Time `json:"create_time" gorm:"column:gmt_create"`
	UpdateTime   time.Time `json:"update_time" gorm:"column:gmt_modified"`
	ResourceHash string    `json:"resource_hash" gorm:"column:resource_hash;index"`
	LastSyncTime time.Time `json:"last_sync_time" gorm:"column:last_sync_time"`
}

func (Instance) TableName() string {
	return "instance"
}
