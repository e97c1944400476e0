package v1

import "time"

type AssociateStandbyRequest struct {
	PrimaryInstanceID string `json:"primary_instance_id" binding:"required"`
	// StandbyInstanceID reuses an existing CPU instance; empty provisions a new one.
	StandbyInstanceID   string `json:"standby_instance_id"`
	MachineType         string `json:"machine_type"`
	ProviderZone        string `json:"provider_zone"`
	SyncIntervalSeconds int    `json:"sync_interval_seconds"`
	AutoFailover        *bool  `json:"auto_failover"`
	AutoRecovery        *bool  `json:"auto_recovery"`
	// Migrate atomically replaces an existing association with this one.
	Migrate bool `json:"migrate"`
}

type StandbyDetail struct {
	PrimaryInstanceID   string    `json:"primary_instance_id"`
	StandbyInstanceID   string    `json:"standby_instance_id"`
	SyncState           string    `json:"sync_state"`
	Status              string    `json:"status"`
	LastSyncAt          time.Time `json:"last_sync_at"`
	SyncIntervalSeconds int       `json:"sync_interval_seconds"`
	BytesSyncedTotal    int64     `json:"bytes_synced_total"`
	AutoFailover        bool      `json:"auto_failover"`
	AutoRecovery        bool      `json:"auto_recovery"`
	StandbyIPAddress    string    `json:"standby_ip_address"`
	StandbyMachineType  string    `json:"standby_machine_type"`
}

type AssociateStandbyResponse struct {
	Response
	Data StandbyDetail
}

type GetStandbyResponse struct {
	Response
	Data StandbyDetail
}

type DissociateStandbyRequest struct {
	// DestroyStandby also releases the CPU instance at the provider.
	DestroyStandby bool `form:"destroy_standby"`
}

type SyncNowResponseData struct {
	BytesSynced int64 `json:"bytes_synced"`
	FilesSynced int64 `json:"files_synced"`
}

type SyncNowResponse struct {
	Response
	Data SyncNowResponseData
}
