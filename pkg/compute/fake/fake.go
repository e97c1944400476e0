// Package fake provides an in-memory compute.Provider used by tests and the
// local development config, where no real marketplace credentials exist.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gpustandby/pkg/compute"
)

type Provider struct {
	mu        sync.Mutex
	name      string
	kind      compute.ProviderKind
	seq       int
	instances map[string]*compute.Instance
	byToken   map[string]string
	offers    []*compute.Offer

	// CreateErr/GetErr/ListErr, when set, are returned by the corresponding
	// call to simulate provider failures.
	CreateErr error
	GetErr    error
	ListErr   error
}

func NewProvider(name string, kind compute.ProviderKind) *Provider {
	return &Provider{
		name:      name,
		kind:      kind,
		instances: make(map[string]*compute.Instance),
		byToken:   make(map[string]string),
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) SetOffers(offers []*compute.Offer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers = offers
}

// Interrupt flips an instance to INTERRUPTED, simulating spot preemption.
func (p *Provider) Interrupt(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if inst, ok := p.instances[id]; ok {
		inst.State = compute.StateInterrupted
	}
}

// Seed registers an instance as if it had been provisioned earlier.
func (p *Provider) Seed(inst *compute.Instance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instances[inst.ID] = inst
}

func (p *Provider) CreateInstance(ctx context.Context, spec *compute.InstanceSpec) (*compute.Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	if id, ok := p.byToken[spec.RequestToken]; ok {
		return cloned(p.instances[id]), nil
	}
	p.seq++
	inst := &compute.Instance{
		ID:        fmt.Sprintf("%s-%d", p.name, p.seq),
		Provider:  p.kind,
		GpuType:   spec.GpuType,
		State:     compute.StateRunning,
		IPAddress: fmt.Sprintf("10.0.0.%d", p.seq),
		Region:    spec.Region,
		CreatedAt: time.Now(),
	}
	p.instances[inst.ID] = inst
	if spec.RequestToken != "" {
		p.byToken[spec.RequestToken] = inst.ID
	}
	return cloned(inst), nil
}

func (p *Provider) GetInstance(ctx context.Context, id string) (*compute.Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.GetErr != nil {
		return nil, p.GetErr
	}
	inst, ok := p.instances[id]
	if !ok {
		return nil, compute.ErrInstanceNotFound
	}
	return cloned(inst), nil
}

func (p *Provider) DestroyInstance(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	inst, ok := p.instances[id]
	if !ok {
		return compute.ErrInstanceNotFound
	}
	inst.State = compute.StateDestroyed
	return nil
}

func (p *Provider) PauseInstance(ctx context.Context, id string) error {
	return p.setState(id, compute.StatePaused)
}

func (p *Provider) ResumeInstance(ctx context.Context, id string) error {
	return p.setState(id, compute.StateRunning)
}

func (p *Provider) setState(id string, state compute.InstanceState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	inst, ok := p.instances[id]
	if !ok {
		return compute.ErrInstanceNotFound
	}
	inst.State = state
	return nil
}

func (p *Provider) ListOffers(ctx context.Context, filter *compute.OfferFilter) ([]*compute.Offer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	var out []*compute.Offer
	for _, o := range p.offers {
		if filter != nil {
			if filter.GpuType != "" && o.GpuType != filter.GpuType {
				continue
			}
			if filter.MinVRAMGb > 0 && o.VRAMGb < filter.MinVRAMGb {
				continue
			}
			if filter.MaxHourly > 0 && o.HourlyCost > filter.MaxHourly {
				continue
			}
		}
		c := *o
		out = append(out, &c)
	}
	return out, nil
}

func cloned(inst *compute.Instance) *compute.Instance {
	c := *inst
	return &c
}
