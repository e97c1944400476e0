package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gpustandby/internal/repository"
	"gpustandby/pkg/log"

	"github.com/spf13/viper"
)

// FileInfo describes one file in an instance workspace, as reported by the
// on-instance agent. Path is relative to the workspace root.
type FileInfo struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Mode    uint32    `json:"mode"`
}

// Transport moves workspace files in and out of instances. Implementations
// talk to the lightweight file agent that runs on every leased machine.
type Transport interface {
	Probe(ctx context.Context, instanceID string) error
	ListFiles(ctx context.Context, instanceID string) ([]FileInfo, error)
	ReadFile(ctx context.Context, instanceID, path string) (io.ReadCloser, error)
	WriteFile(ctx context.Context, instanceID, path string, info FileInfo, r io.Reader) error
}

// AgentTransport reaches the file agent over HTTP at the instance's address.
type AgentTransport struct {
	instanceRepo repository.InstanceRepository
	httpClient   *http.Client
	port         int
	logger       *log.Logger
}

// NewTransport is the production transport, configured from sync.agent_port.
func NewTransport(conf *viper.Viper, instanceRepo repository.InstanceRepository, logger *log.Logger) Transport {
	return NewAgentTransport(instanceRepo, conf.GetInt("sync.agent_port"), logger)
}

func NewAgentTransport(instanceRepo repository.InstanceRepository, port int, logger *log.Logger) *AgentTransport {
	if port == 0 {
		port = 8799
	}
	return &AgentTransport{
		instanceRepo: instanceRepo,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		port:   port,
		logger: logger,
	}
}

func (t *AgentTransport) baseURL(ctx context.Context, instanceID string) (string, error) {
	inst, err := t.instanceRepo.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return "", err
	}
	if inst == nil || inst.IPAddress == "" {
		return "", fmt.Errorf("no address known for instance %s", instanceID)
	}
	return fmt.Sprintf("http://%s:%d/agent/v1", inst.IPAddress, t.port), nil
}

func (t *AgentTransport) Probe(ctx context.Context, instanceID string) error {
	base, err := t.baseURL(ctx, instanceID)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent health check failed: status %d", resp.StatusCode)
	}
	return nil
}

func (t *AgentTransport) ListFiles(ctx context.Context, instanceID string) ([]FileInfo, error) {
	base, err := t.baseURL(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/files", nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent list failed: status %d", resp.StatusCode)
	}
	var files []FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, err
	}
	return files, nil
}

func (t *AgentTransport) ReadFile(ctx context.Context, instanceID, path string) (io.ReadCloser, error) {
	base, err := t.baseURL(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/files/content?path="+url.QueryEscape(path), nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("agent read failed: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (t *AgentTransport) WriteFile(ctx context.Context, instanceID, path string, info FileInfo, r io.Reader) error {
	base, err := t.baseURL(ctx, instanceID)
	if err != nil {
		return err
	}
	endpoint := base + "/files/content?path=" + url.QueryEscape(path) +
		"&mode=" + strconv.FormatUint(uint64(info.Mode), 8) +
		"&mtime=" + strconv.FormatInt(info.ModTime.Unix(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("agent write failed: status %d", resp.StatusCode)
	}
	return nil
}
