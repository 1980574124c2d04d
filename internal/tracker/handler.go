package tracker

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

type Handler struct {
	store EventStoreInterface
}

func NewHandler(store EventStoreInterface) *Handler { return &Handler{store: store} }

func (h *Handler) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/orders/{order_id}/status", h.GetOrderStatus)
	mux.HandleFunc("GET /api/v1/orders/{order_id}/timeline", h.GetOrderTimeline)
	mux.HandleFunc("GET /api/v1/orders/recent", h.GetRecentOrders)
	mux.HandleFunc("GET /api/v1/ovens/temperatures", h.GetOvenTemperatures)
	mux.HandleFunc("GET /api/v1/metrics/latest", h.GetLatestMetrics)
	return mux
}

func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("order_id")
	v, ok, err := h.store.GetOrderStatus(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if !ok {
		writeProblem(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) GetOrderTimeline(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("order_id")
	limit := atoiDefault(r.URL.Query().Get("limit"), 50)
	offset := atoiDefault(r.URL.Query().Get("offset"), 0)
	events, err := h.store.GetOrderTimeline(r.Context(), id, limit, offset)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "events": events})
}

func (h *Handler) GetRecentOrders(w http.ResponseWriter, r *http.Request) {
	limit := atoiDefault(r.URL.Query().Get("limit"), 10)
	orders, err := h.store.RecentOrders(r.Context(), limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) GetOvenTemperatures(w http.ResponseWriter, r *http.Request) {
	windowSec := atoiDefault(r.URL.Query().Get("window_seconds"), 300)
	temps, err := h.store.LatestOvenTemperatures(r.Context(), time.Duration(windowSec)*time.Second)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ovens": temps})
}

func (h *Handler) GetLatestMetrics(w http.ResponseWriter, r *http.Request) {
	payload, ok, err := h.store.LatestMetrics(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if !ok {
		writeProblem(w, http.StatusNotFound, "not_found", "no metrics recorded yet")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem emits a simplified Problem+JSON error body.
func writeProblem(w http.ResponseWriter, code int, typ, detail string) {
	writeJSON(w, code, map[string]any{
		"type":   typ,
		"title":  http.StatusText(code),
		"status": code,
		"detail": detail,
	})
}

func atoiDefault(s string, d int) int {
	if s == "" {
		return d
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return n
}
