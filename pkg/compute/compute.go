package compute

import (
	"context"
	"errors"
	"time"
)

// ProviderKind identifies which backing cloud an instance was leased from.
type ProviderKind string

const (
	ProviderSpotGPU        ProviderKind = "SPOT_GPU"
	ProviderCPUStandby     ProviderKind = "CPU_STANDBY"
	ProviderReplacementGPU ProviderKind = "REPLACEMENT_GPU"
)

// InstanceState mirrors the provider-side lifecycle of a leased instance.
type InstanceState string

const (
	StateProvisioning InstanceState = "PROVISIONING"
	StateRunning      InstanceState = "RUNNING"
	StatePaused       InstanceState = "PAUSED"
	StateInterrupted  InstanceState = "INTERRUPTED"
	StateDestroyed    InstanceState = "DESTROYED"
)

var (
	// ErrProviderUnavailable marks transient transport/API failures. Safe to retry.
	ErrProviderUnavailable = errors.New("compute: provider unavailable")
	// ErrNoCapacity means no offer or instance matched the request. Retrying
	// without changing the filter will not help.
	ErrNoCapacity = errors.New("compute: no capacity")
	// ErrInstanceNotFound is fatal to the specific operation.
	ErrInstanceNotFound = errors.New("compute: instance not found")
)

// Instance is a compute resource leased from a provider.
type Instance struct {
	ID         string        `json:"id"`
	Provider   ProviderKind  `json:"provider"`
	GpuType    string        `json:"gpu_type,omitempty"`
	State      InstanceState `json:"state"`
	IPAddress  string        `json:"ip_address"`
	Region     string        `json:"region"`
	HourlyCost float64       `json:"hourly_cost"`
	CreatedAt  time.Time     `json:"created_at"`
}

// InstanceSpec describes what to lease. RequestToken makes CreateInstance
// idempotent: retries with the same token must return the same instance.
type InstanceSpec struct {
	RequestToken string  `json:"request_token"`
	GpuType      string  `json:"gpu_type,omitempty"`
	GpuCount     int     `json:"gpu_count,omitempty"`
	VRAMGb       int     `json:"vram_gb,omitempty"`
	MachineType  string  `json:"machine_type,omitempty"`
	Region       string  `json:"region,omitempty"`
	DiskGb       int     `json:"disk_gb,omitempty"`
	MaxHourly    float64 `json:"max_hourly,omitempty"`
	Image        string  `json:"image,omitempty"`
}

// Offer is a marketplace listing the caller may turn into an instance.
type Offer struct {
	ID         string  `json:"id"`
	GpuType    string  `json:"gpu_type"`
	GpuCount   int     `json:"gpu_count"`
	VRAMGb     int     `json:"vram_gb"`
	Region     string  `json:"region"`
	HourlyCost float64 `json:"hourly_cost"`
	Verified   bool    `json:"verified"`
}

// OfferFilter narrows ListOffers. Zero values mean "don't care".
type OfferFilter struct {
	GpuType   string  `json:"gpu_type,omitempty"`
	MinVRAMGb int     `json:"min_vram_gb,omitempty"`
	Region    string  `json:"region,omitempty"`
	MaxHourly float64 `json:"max_hourly,omitempty"`
}

// Provider is the uniform adapter over heterogeneous compute clouds.
// An empty ListOffers result is not an error; transport failures are.
type Provider interface {
	Name() string
	CreateInstance(ctx context.Context, spec *InstanceSpec) (*Instance, error)
	GetInstance(ctx context.Context, id string) (*Instance, error)
	DestroyInstance(ctx context.Context, id string) error
	PauseInstance(ctx context.Context, id string) error
	ResumeInstance(ctx context.Context, id string) error
	ListOffers(ctx context.Context, filter *OfferFilter) ([]*Offer, error)
}
