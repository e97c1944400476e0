package model

import (
	"time"
)

// Sync states of a primary/standby pair.
const (
	SyncStateInitialSync    = "INITIAL_SYNC"
	SyncStateReady          = "READY"
	SyncStateStale          = "STALE"
	SyncStateFailoverActive = "FAILOVER_ACTIVE"
)

// Association lifecycle. Only one ACTIVE association may exist per primary.
const (
	AssociationStatusActive     = "ACTIVE"
	AssociationStatusTerminated = "TERMINATED"
)

// StandbyAssociation binds a primary GPU instance to its warm CPU standby.
// The registry row, not the orchestrator process, is the source of truth for
// "does this GPU have a backup".
type StandbyAssociation struct {
	Id                  int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	PrimaryInstanceID   string    `json:"primary_instance_id" gorm:"column:primary_instance_id;index"`
	StandbyInstanceID   string    `json:"standby_instance_id" gorm:"column:standby_instance_id;index"`
	SyncState           string    `json:"sync_state" gorm:"column:sync_state"`
	Status              string    `json:"status" gorm:"column:status;index"`
	LastSyncAt          time.Time `json:"last_sync_at" gorm:"column:last_sync_at"`
	SyncIntervalSeconds int       `json:"sync_interval_seconds" gorm:"column:sync_interval_seconds;default:30"`
	BytesSyncedTotal    int64     `json:"bytes_synced_total" gorm:"column:bytes_synced_total"`
	AutoFailover        bool      `json:"auto_failover" gorm:"column:auto_failover;default:true"`
	AutoRecovery        bool      `json:"auto_recovery" gorm:"column:auto_recovery;default:true"`
	ProviderZone        string    `json:"standby_provider_zone" gorm:"column:provider_zone"`
	MachineType         string    `json:"standby_machine_type" gorm:"column:machine_type"`
	CreateTime          time.Time `json:"create_time" gorm:"column:gmt_create"`
	UpdateTime          time.Time `json:"update_time" gorm:"column:gmt_modified"`
}

func (StandbyAssociation) TableName() string {
	return "standby_association"
}
