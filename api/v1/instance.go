package v1

import "time"

type StandbyOptions struct {
	Enabled             bool   `json:"enabled"`
	MachineType         string `json:"machine_type"`
	ProviderZone        string `json:"provider_zone"`
	SyncIntervalSeconds int    `json:"sync_interval_seconds"`
	AutoFailover        *bool  `json:"auto_failover"`
	AutoRecovery        *bool  `json:"auto_recovery"`
}

type CreateInstanceRequest struct {
	GpuType   string          `json:"gpu_type" binding:"required"`
	GpuCount  int             `json:"gpu_count"`
	VRAMGb    int             `json:"vram_gb"`
	Region    string          `json:"region"`
	MaxHourly float64         `json:"max_hourly"`
	DiskGb    int             `json:"disk_gb"`
	Image     string          `json:"image"`
	Standby   *StandbyOptions `json:"standby"`
}

type InstanceDetail struct {
	InstanceID   string    `json:"instance_id"`
	Provider     string    `json:"provider"`
	GpuType      string    `json:"gpu_type"`
	GpuCount     int       `json:"gpu_count"`
	VRAMGb       int       `json:"vram_gb"`
	State        string    `json:"state"`
	IPAddress    string    `json:"ip_address"`
	Region       string    `json:"region"`
	HourlyCost   float64   `json:"hourly_cost"`
	WorkspaceDir string    `json:"workspace_dir"`
	CreateTime   time.Time `json:"create_time"`
}

type CreateInstanceResponseData struct {
	Instance *InstanceDetail `json:"instance"`
	Standby  *InstanceDetail `json:"standby,omitempty"`
}

type CreateInstanceResponse struct {
	Response
	Data CreateInstanceResponseData
}

type GetInstanceResponse struct {
	Response
	Data InstanceDetail
}

type ListInstanceRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Provider string `form:"provider"`
	State    string `form:"state"`
}

type ListInstanceResponseData struct {
	List  []*InstanceDetail `json:"list"`
	Total int64             `json:"total"`
}

type ListInstanceResponse struct {
	Response
	Data ListInstanceResponseData
}

type ListOffersRequest struct {
	GpuType   string  `form:"gpu_type"`
	MinVRAMGb int     `form:"min_vram_gb"`
	Region    string  `form:"region"`
	MaxHourly float64 `form:"max_hourly"`
}

type OfferDetail struct {
	ID         string  `json:"id"`
	GpuType    string  `json:"gpu_type"`
	GpuCount   int     `json:"gpu_count"`
	VRAMGb     int     `json:"vram_gb"`
	Region     string  `json:"region"`
	HourlyCost float64 `json:"hourly_cost"`
	Verified   bool    `json:"verified"`
}

type ListOffersResponse struct {
	Response
	Data []*OfferDetail
}
