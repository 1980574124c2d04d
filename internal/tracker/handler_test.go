package tracker

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, store EventStoreInterface, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	NewHandler(store).Router().ServeHTTP(rr, req)
	return rr
}

func TestHandler_GetOrderStatus_Found(t *testing.T) {
	store := &mockStore{
		orderStatus: OrderStatusView{
			OrderID:   "ORD-0001",
			PizzaType: "hawaiian",
			Size:      "medium",
			Status:    "ready",
			UpdatedAt: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		},
		orderStatusOK: true,
	}

	rr := doRequest(t, store, "/api/v1/orders/ORD-0001/status")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var got OrderStatusView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, store.orderStatus, got)
}

func TestHandler_GetOrderStatus_NotFound(t *testing.T) {
	rr := doRequest(t, &mockStore{}, "/api/v1/orders/ORD-9999/status")

	require.Equal(t, http.StatusNotFound, rr.Code)
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "not_found", problem["type"])
	assert.Equal(t, float64(http.StatusNotFound), problem["status"])
}

func TestHandler_GetOrderStatus_StoreError(t *testing.T) {
	store := &mockStore{storeErr: errors.New("connection refused")}

	rr := doRequest(t, store, "/api/v1/orders/ORD-0001/status")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHandler_GetOrderTimeline(t *testing.T) {
	store := &mockStore{
		timeline: []TimelineEntry{
			{EventType: "order_created", EquipmentID: "order_system", Timestamp: time.Now().UTC(), Payload: json.RawMessage(`{"status":"received"}`)},
			{EventType: "prep_started", EquipmentID: "prep_1", Timestamp: time.Now().UTC(), Payload: json.RawMessage(`{"prep_time":190}`)},
		},
	}

	rr := doRequest(t, store, "/api/v1/orders/ORD-0001/timeline?limit=5")

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		OrderID string          `json:"order_id"`
		Events  []TimelineEntry `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ORD-0001", body.OrderID)
	require.Len(t, body.Events, 2)
	assert.Equal(t, "order_created", body.Events[0].EventType)
}

func TestHandler_GetRecentOrders(t *testing.T) {
	store := &mockStore{
		recent: []OrderStatusView{
			{OrderID: "ORD-0003", Status: "baking"},
			{OrderID: "ORD-0002", Status: "delivered"},
		},
	}

	rr := doRequest(t, store, "/api/v1/orders/recent")

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Orders []OrderStatusView `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Orders, 2)
	assert.Equal(t, "ORD-0003", body.Orders[0].OrderID)
}

func TestHandler_GetOvenTemperatures(t *testing.T) {
	store := &mockStore{
		temps: []OvenTemperature{
			{OvenID: "oven_1", Temperature: 451.2, DoorOpen: false},
			{OvenID: "oven_2", Temperature: 389.0, DoorOpen: true},
		},
	}

	rr := doRequest(t, store, "/api/v1/ovens/temperatures?window_seconds=600")

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Ovens []OvenTemperature `json:"ovens"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Ovens, 2)
	assert.True(t, body.Ovens[1].DoorOpen)
}

func TestHandler_GetLatestMetrics(t *testing.T) {
	store := &mockStore{
		metrics:   json.RawMessage(`{"active_orders": 4, "completed_orders": 17}`),
		metricsOK: true,
	}

	rr := doRequest(t, store, "/api/v1/metrics/latest")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"active_orders": 4, "completed_orders": 17}`, rr.Body.String())
}

func TestHandler_GetLatestMetrics_NoneYet(t *testing.T) {
	rr := doRequest(t, &mockStore{}, "/api/v1/metrics/latest")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAtoiDefault(t *testing.T) {
	assert.Equal(t, 50, atoiDefault("", 50))
	assert.Equal(t, 7, atoiDefault("7", 50))
	assert.Equal(t, 50, atoiDefault("seven", 50))
}
