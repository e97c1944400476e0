package gce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gpustandby/pkg/compute"
	"gpustandby/pkg/log"

	"go.uber.org/zap"
)

// Client talks to a GCP-style on-demand cloud where the cheap CPU standby
// machines live. On-demand capacity is effectively always available, so this
// adapter never answers with spot-style capacity errors unless the API says so.
type Client struct {
	baseUrl    *url.URL
	httpClient *http.Client
	project    string
	token      string
	logger     *log.Logger
}

func NewClient(apiURL, project, token string, logger *log.Logger) (*Client, error) {
	baseUrl, err := url.Parse(apiURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseUrl: baseUrl,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		project: project,
		token:   token,
		logger:  logger,
	}, nil
}

func (c *Client) Name() string { return "gce" }

func (c *Client) request(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	endpoint := c.baseUrl.JoinPath("/compute/v1/projects", c.project, path).String()
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", compute.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := string(raw)
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", compute.ErrInstanceNotFound, msg)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", compute.ErrProviderUnavailable, msg)
		default:
			return fmt.Errorf("gce API error (status %d): %s", resp.StatusCode, msg)
		}
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

type instancePayload struct {
	Name              string `json:"name"`
	Status            string `json:"status"`
	MachineType       string `json:"machineType"`
	Zone              string `json:"zone"`
	NetworkIP         string `json:"networkIP"`
	CreationTimestamp string `json:"creationTimestamp"`
	HourlyCost        float64 `json:"hourlyCost"`
}

func (p *instancePayload) toInstance() *compute.Instance {
	created, _ := time.Parse(time.RFC3339, p.CreationTimestamp)
	return &compute.Instance{
		ID:         p.Name,
		Provider:   compute.ProviderCPUStandby,
		State:      mapStatus(p.Status),
		IPAddress:  p.NetworkIP,
		Region:     p.Zone,
		HourlyCost: p.HourlyCost,
		CreatedAt:  created,
	}
}

func mapStatus(s string) compute.InstanceState {
	switch s {
	case "PROVISIONING", "STAGING":
		return compute.StateProvisioning
	case "RUNNING":
		return compute.StateRunning
	case "SUSPENDED", "STOPPED", "TERMINATED":
		return compute.StatePaused
	default:
		return compute.StateProvisioning
	}
}

func (c *Client) CreateInstance(ctx context.Context, spec *compute.InstanceSpec) (*compute.Instance, error) {
	start := time.Now()
	body := map[string]interface{}{
		"name":        "standby-" + spec.RequestToken,
		"machineType": spec.MachineType,
		"zone":        spec.Region,
		"diskSizeGb":  spec.DiskGb,
		"sourceImage": spec.Image,
	}
	var payload instancePayload
	err := c.request(ctx, http.MethodPost, "/zones/"+spec.Region+"/instances", body, &payload)
	c.logger.WithContext(ctx).Info("gce CreateInstance",
		zap.String("request_token", spec.RequestToken),
		zap.String("machine_type", spec.MachineType),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err))
	if err != nil {
		return nil, err
	}
	return payload.toInstance(), nil
}

func (c *Client) GetInstance(ctx context.Context, id string) (*compute.Instance, error) {
	var payload instancePayload
	if err := c.request(ctx, http.MethodGet, "/instances/"+id, nil, &payload); err != nil {
		return nil, err
	}
	return payload.toInstance(), nil
}

func (c *Client) DestroyInstance(ctx context.Context, id string) error {
	start := time.Now()
	err := c.request(ctx, http.MethodDelete, "/instances/"+id, nil, nil)
	c.logger.WithContext(ctx).Info("gce DestroyInstance",
		zap.String("instance_id", id),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err))
	return err
}

func (c *Client) PauseInstance(ctx context.Context, id string) error {
	start := time.Now()
	err := c.request(ctx, http.MethodPost, "/instances/"+id+"/suspend", nil, nil)
	c.logger.WithContext(ctx).Info("gce PauseInstance",
		zap.String("instance_id", id),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err))
	return err
}

func (c *Client) ResumeInstance(ctx context.Context, id string) error {
	start := time.Now()
	err := c.request(ctx, http.MethodPost, "/instances/"+id+"/resume", nil, nil)
	c.logger.WithContext(ctx).Info("gce ResumeInstance",
		zap.String("instance_id", id),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err))
	return err
}

// ListOffers for an on-demand cloud reports the configured machine types of a
// zone. The orchestrator only consults this when provisioning standbys.
func (c *Client) ListOffers(ctx context.Context, filter *compute.OfferFilter) ([]*compute.Offer, error) {
	region := ""
	if filter != nil {
		region = filter.Region
	}
	var resp struct {
		Items []struct {
			Name       string  `json:"name"`
			Zone       string  `json:"zone"`
			HourlyCost float64 `json:"hourlyCost"`
		} `json:"items"`
	}
	if err := c.request(ctx, http.MethodGet, "/zones/"+region+"/machineTypes", nil, &resp); err != nil {
		return nil, err
	}
	offers := make([]*compute.Offer, 0, len(resp.Items))
	for _, it := range resp.Items {
		if filter != nil && filter.MaxHourly > 0 && it.HourlyCost > filter.MaxHourly {
			continue
		}
		offers = append(offers, &compute.Offer{
			ID:         it.Name,
			Region:     it.Zone,
			HourlyCost: it.HourlyCost,
		})
	}
	return offers, nil
}
