package vast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"gpustandby/pkg/compute"
	"gpustandby/pkg/log"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	conf := viper.New()
	conf.Set("log.log_file_name", filepath.Join(t.TempDir(), "test.log"))
	conf.Set("log.log_level", "error")
	conf.Set("log.encoding", "console")

	client, err := NewClient(server.URL, "test-key", log.NewLog(conf))
	require.NoError(t, err)
	return client
}

func TestCreateInstanceSendsIdempotencyKey(t *testing.T) {
	var gotKey, gotAuth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/v0/instances/", r.URL.Path)
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "RTX4090", body["gpu_name"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":           "12345",
			"gpu_name":     "RTX4090",
			"actual_state": "loading",
			"dph_total":    0.42,
		})
	}))

	inst, err := client.CreateInstance(context.Background(), &compute.InstanceSpec{
		RequestToken: "evt-777",
		GpuType:      "RTX4090",
		GpuCount:     1,
		MaxHourly:    0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-777", gotKey)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "12345", inst.ID)
	assert.Equal(t, compute.StateProvisioning, inst.State)
	assert.Equal(t, compute.ProviderSpotGPU, inst.Provider)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, compute.ErrInstanceNotFound},
		{"conflict", http.StatusConflict, compute.ErrNoCapacity},
		{"gone", http.StatusGone, compute.ErrNoCapacity},
		{"server error", http.StatusInternalServerError, compute.ErrProviderUnavailable},
		{"rate limited", http.StatusTooManyRequests, compute.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"error": tt.name})
			}))
			_, err := client.GetInstance(context.Background(), "12345")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGetInstanceMapsStates(t *testing.T) {
	state := "running"
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v0/instances/12345/", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":            "12345",
			"actual_state":  state,
			"public_ipaddr": "5.6.7.8",
		})
	}))

	inst, err := client.GetInstance(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, compute.StateRunning, inst.State)
	assert.Equal(t, "5.6.7.8", inst.IPAddress)

	state = "preempted"
	inst, err = client.GetInstance(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, compute.StateInterrupted, inst.State)
}

func TestListOffersForwardsFilter(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v0/bundles/", r.URL.Path)
		assert.Equal(t, "RTX4090", r.URL.Query().Get("gpu_name"))
		assert.Equal(t, "24", r.URL.Query().Get("gpu_ram_gte"))
		assert.Equal(t, "us-east", r.URL.Query().Get("geolocation"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"offers": []map[string]interface{}{
				{"id": 101, "gpu_name": "RTX4090", "num_gpus": 1, "gpu_ram": 24, "geolocation": "us-east", "dph_total": 0.42, "verified": true},
				{"id": 102, "gpu_name": "RTX4090", "num_gpus": 2, "gpu_ram": 24, "geolocation": "us-east", "dph_total": 0.78, "verified": false},
			},
		})
	}))

	offers, err := client.ListOffers(context.Background(), &compute.OfferFilter{
		GpuType:   "RTX4090",
		MinVRAMGb: 24,
		Region:    "us-east",
	})
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, "101", offers[0].ID)
	assert.Equal(t, 24, offers[0].VRAMGb)
	assert.True(t, offers[0].Verified)

	// an empty marketplace is a normal answer
	empty := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"offers": []interface{}{}})
	}))
	offers, err = empty.ListOffers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, offers)
}
