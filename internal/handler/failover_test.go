package handler_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	v1 "gpustandby/api/v1"
	"gpustandby/internal/handler"
	"gpustandby/pkg/log"
	mock_service "gpustandby/test/mocks/service"

	"github.com/gavv/httpexpect/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/spf13/viper"
)

func setupFailoverRouter(t *testing.T, svc *mock_service.MockFailoverService) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conf := viper.New()
	conf.Set("log.log_file_name", filepath.Join(t.TempDir(), "test.log"))
	conf.Set("log.log_level", "error")
	conf.Set("log.encoding", "console")

	h := handler.NewFailoverHandler(handler.NewHandler(log.NewLog(conf)), svc)

	router := gin.New()
	group := router.Group("/api/v1/failovers")
	group.GET("", h.ListFailovers)
	group.GET("/stats", h.FailoverStats)
	group.GET("/:id", h.GetFailoverEvent)
	group.POST("", h.TriggerFailover)
	group.POST("/:id/cancel", h.CancelFailover)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestTriggerFailover(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc := mock_service.NewMockFailoverService(ctrl)

	svc.EXPECT().
		Trigger(gomock.Any(), &v1.TriggerFailoverRequest{PrimaryInstanceID: "gpu-1", Reason: "SPOT_PREEMPTION"}).
		Return(&v1.TriggerFailoverResponseData{EventID: "evt-1"}, nil)

	e := httpexpect.Default(t, setupFailoverRouter(t, svc).URL)
	obj := e.POST("/api/v1/failovers").
		WithJSON(map[string]string{"primary_instance_id": "gpu-1", "reason": "SPOT_PREEMPTION"}).
		Expect().Status(http.StatusOK).JSON().Object()
	obj.Value("code").IsEqual(0)
	obj.Value("data").Object().Value("event_id").IsEqual("evt-1")
}

func TestTriggerFailoverValidatesBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc := mock_service.NewMockFailoverService(ctrl)

	e := httpexpect.Default(t, setupFailoverRouter(t, svc).URL)
	obj := e.POST("/api/v1/failovers").
		WithJSON(map[string]string{"reason": "SPOT_PREEMPTION"}).
		Expect().Status(http.StatusBadRequest).JSON().Object()
	obj.Value("code").IsEqual(400)
}

func TestTriggerFailoverConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc := mock_service.NewMockFailoverService(ctrl)

	svc.EXPECT().
		Trigger(gomock.Any(), gomock.Any()).
		Return(nil, v1.ErrFailoverInProgress)

	e := httpexpect.Default(t, setupFailoverRouter(t, svc).URL)
	obj := e.POST("/api/v1/failovers").
		WithJSON(map[string]string{"primary_instance_id": "gpu-1"}).
		Expect().Status(http.StatusInternalServerError).JSON().Object()
	obj.Value("code").IsEqual(3001)
}

func TestGetFailoverEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc := mock_service.NewMockFailoverService(ctrl)

	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	svc.EXPECT().
		GetEvent(gomock.Any(), "evt-1").
		Return(&v1.FailoverEventDetail{
			EventID:           "evt-1",
			PrimaryInstanceID: "gpu-1",
			Status:            "SUCCESS",
			StartedAt:         started,
			Phases:            map[string]int64{"detection": 120, "restore": 4500},
			TotalTimeMs:       52000,
			NewInstanceID:     "gpu-2",
		}, nil)

	e := httpexpect.Default(t, setupFailoverRouter(t, svc).URL)
	data := e.GET("/api/v1/failovers/evt-1").
		Expect().Status(http.StatusOK).JSON().Object().Value("data").Object()
	data.Value("status").IsEqual("SUCCESS")
	data.Value("new_instance_id").IsEqual("gpu-2")
	data.Value("phases").Object().Value("restore").IsEqual(4500)
}

func TestGetFailoverEventNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc := mock_service.NewMockFailoverService(ctrl)

	svc.EXPECT().
		GetEvent(gomock.Any(), "evt-missing").
		Return(nil, v1.ErrEventNotFound)

	e := httpexpect.Default(t, setupFailoverRouter(t, svc).URL)
	obj := e.GET("/api/v1/failovers/evt-missing").
		Expect().Status(http.StatusInternalServerError).JSON().Object()
	obj.Value("code").IsEqual(3003)
}

func TestListFailoversForwardsQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc := mock_service.NewMockFailoverService(ctrl)

	svc.EXPECT().
		History(gomock.Any(), &v1.ListFailoverRequest{
			PrimaryInstanceID: "gpu-1",
			Status:            "FAILED",
			Page:              2,
			PageSize:          10,
		}).
		Return(&v1.ListFailoverResponseData{List: []*v1.FailoverEventDetail{}, Total: 0}, nil)

	e := httpexpect.Default(t, setupFailoverRouter(t, svc).URL)
	e.GET("/api/v1/failovers").
		WithQuery("primary_instance_id", "gpu-1").
		WithQuery("status", "FAILED").
		WithQuery("page", 2).
		WithQuery("page_size", 10).
		Expect().Status(http.StatusOK).
		JSON().Object().Value("data").Object().Value("total").IsEqual(0)
}

func TestFailoverStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc := mock_service.NewMockFailoverService(ctrl)

	svc.EXPECT().
		Stats(gomock.Any(), &v1.FailoverStatsRequest{}).
		Return(&v1.FailoverStatsData{
			Total:          10,
			Success:        8,
			Failed:         2,
			SuccessRate:    0.8,
			AvgTotalTimeMs: 47000,
			ByReason:       map[string]int64{"SPOT_PREEMPTION": 9, "NETWORK_TIMEOUT": 1},
		}, nil)

	e := httpexpect.Default(t, setupFailoverRouter(t, svc).URL)
	data := e.GET("/api/v1/failovers/stats").
		Expect().Status(http.StatusOK).JSON().Object().Value("data").Object()
	data.Value("success_rate").IsEqual(0.8)
	data.Value("by_reason").Object().Value("SPOT_PREEMPTION").IsEqual(9)
}

func TestCancelFailover(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc := mock_service.NewMockFailoverService(ctrl)

	svc.EXPECT().Cancel(gomock.Any(), "gpu-1").Return(nil)

	e := httpexpect.Default(t, setupFailoverRouter(t, svc).URL)
	e.POST("/api/v1/failovers/gpu-1/cancel").
		Expect().Status(http.StatusOK).
		JSON().Object().Value("code").IsEqual(0)
}
