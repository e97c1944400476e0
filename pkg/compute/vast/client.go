package vast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gpustandby/pkg/compute"
	"gpustandby/pkg/log"

	"go.uber.org/zap"
)

// Client talks to a Vast.ai-style spot GPU marketplace. Instances bought here
// are discounted and preemptible; the marketplace can reclaim them with little
// notice, which is exactly the event the failover orchestrator exists for.
type Client struct {
	baseUrl    *url.URL
	httpClient *http.Client
	apiKey     string
	logger     *log.Logger
}

func NewClient(apiURL, apiKey string, logger *log.Logger) (*Client, error) {
	baseUrl, err := url.Parse(apiURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseUrl: baseUrl,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiKey: apiKey,
		logger: logger,
	}, nil
}

func (c *Client) Name() string { return "vast" }

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("vast API error (status %d): %s", e.Status, e.Message)
}

func (c *Client) request(ctx context.Context, req *http.Request, result interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", compute.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error string `json:"error"`
			Msg   string `json:"msg"`
		}
		msg := string(body)
		if json.Unmarshal(body, &errResp) == nil {
			if errResp.Error != "" {
				msg = errResp.Error
			} else if errResp.Msg != "" {
				msg = errResp.Msg
			}
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", compute.ErrInstanceNotFound, msg)
		case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusGone:
			return fmt.Errorf("%w: %s", compute.ErrNoCapacity, msg)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", compute.ErrProviderUnavailable, msg)
		default:
			return &apiError{Status: resp.StatusCode, Message: msg}
		}
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	endpoint := c.baseUrl.JoinPath("/api/v0", path)
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	return c.request(ctx, req, result)
}

func (c *Client) send(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	endpoint := c.baseUrl.JoinPath("/api/v0", path).String()
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.request(ctx, req, result)
}

type instancePayload struct {
	ID          string  `json:"id"`
	GpuName     string  `json:"gpu_name"`
	ActualState string  `json:"actual_state"`
	PublicIP    string  `json:"public_ipaddr"`
	Geolocation string  `json:"geolocation"`
	DphTotal    float64 `json:"dph_total"`
	StartDate   int64   `json:"start_date"`
}

func (p *instancePayload) toInstance() *compute.Instance {
	return &compute.Instance{
		ID:         p.ID,
		Provider:   compute.ProviderSpotGPU,
		GpuType:    p.GpuName,
		State:      mapState(p.ActualState),
		IPAddress:  p.PublicIP,
		Region:     p.Geolocation,
		HourlyCost: p.DphTotal,
		CreatedAt:  time.Unix(p.StartDate, 0),
	}
}

func mapState(s string) compute.InstanceState {
	switch s {
	case "loading", "created":
		return compute.StateProvisioning
	case "running":
		return compute.StateRunning
	case "stopped", "paused":
		return compute.StatePaused
	case "interrupted", "preempted":
		return compute.StateInterrupted
	case "destroyed", "deleted":
		return compute.StateDestroyed
	default:
		return compute.StateProvisioning
	}
}

// CreateInstance leases a machine from the marketplace. The client-supplied
// request token is forwarded as an Idempotency-Key header so orchestrator
// retries never double-provision.
func (c *Client) CreateInstance(ctx context.Context, spec *compute.InstanceSpec) (*compute.Instance, error) {
	start := time.Now()
	body := map[string]interface{}{
		"client_id": spec.RequestToken,
		"gpu_name":  spec.GpuType,
		"num_gpus":  spec.GpuCount,
		"disk":      spec.DiskGb,
		"image":     spec.Image,
		"price":     spec.MaxHourly,
	}
	if spec.Region != "" {
		body["geolocation"] = spec.Region
	}

	endpoint := c.baseUrl.JoinPath("/api/v0", "/instances/").String()
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", spec.RequestToken)

	var payload instancePayload
	err = c.request(ctx, req, &payload)
	c.logger.WithContext(ctx).Info("vast CreateInstance",
		zap.String("request_token", spec.RequestToken),
		zap.String("gpu_type", spec.GpuType),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err))
	if err != nil {
		return nil, err
	}
	return payload.toInstance(), nil
}

func (c *Client) GetInstance(ctx context.Context, id string) (*compute.Instance, error) {
	var payload instancePayload
	if err := c.get(ctx, "/instances/"+id+"/", nil, &payload); err != nil {
		return nil, err
	}
	return payload.toInstance(), nil
}

func (c *Client) DestroyInstance(ctx context.Context, id string) error {
	start := time.Now()
	err := c.send(ctx, http.MethodDelete, "/instances/"+id+"/", nil, nil)
	c.logger.WithContext(ctx).Info("vast DestroyInstance",
		zap.String("instance_id", id),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err))
	return err
}

func (c *Client) PauseInstance(ctx context.Context, id string) error {
	start := time.Now()
	err := c.send(ctx, http.MethodPut, "/instances/"+id+"/", map[string]string{"state": "stopped"}, nil)
	c.logger.WithContext(ctx).Info("vast PauseInstance",
		zap.String("instance_id", id),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err))
	return err
}

func (c *Client) ResumeInstance(ctx context.Context, id string) error {
	start := time.Now()
	err := c.send(ctx, http.MethodPut, "/instances/"+id+"/", map[string]string{"state": "running"}, nil)
	c.logger.WithContext(ctx).Info("vast ResumeInstance",
		zap.String("instance_id", id),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err))
	return err
}

// ListOffers queries current marketplace availability. An empty result set is
// a normal answer, not a transport failure.
func (c *Client) ListOffers(ctx context.Context, filter *compute.OfferFilter) ([]*compute.Offer, error) {
	query := url.Values{}
	if filter != nil {
		if filter.GpuType != "" {
			query.Set("gpu_name", filter.GpuType)
		}
		if filter.MinVRAMGb > 0 {
			query.Set("gpu_ram_gte", strconv.Itoa(filter.MinVRAMGb))
		}
		if filter.Region != "" {
			query.Set("geolocation", filter.Region)
		}
		if filter.MaxHourly > 0 {
			query.Set("dph_lte", strconv.FormatFloat(filter.MaxHourly, 'f', -1, 64))
		}
	}

	var resp struct {
		Offers []struct {
			ID       int64   `json:"id"`
			GpuName  string  `json:"gpu_name"`
			NumGpus  int     `json:"num_gpus"`
			GpuRam   int     `json:"gpu_ram"`
			Geo      string  `json:"geolocation"`
			DphTotal float64 `json:"dph_total"`
			Verified bool    `json:"verified"`
		} `json:"offers"`
	}
	if err := c.get(ctx, "/bundles/", query, &resp); err != nil {
		return nil, err
	}

	offers := make([]*compute.Offer, 0, len(resp.Offers))
	for _, o := range resp.Offers {
		offers = append(offers, &compute.Offer{
			ID:         strconv.FormatInt(o.ID, 10),
			GpuType:    o.GpuName,
			GpuCount:   o.NumGpus,
			VRAMGb:     o.GpuRam,
			Region:     o.Geo,
			HourlyCost: o.DphTotal,
			Verified:   o.Verified,
		})
	}
	return offers, nil
}
