package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"netwatch/internal/model"
	"netwatch/internal/service"
)

// TrafficHandler serves telemetry ingestion and the query endpoints.
type TrafficHandler struct {
	traffic *service.TrafficService
	nodes   *service.NodeService
}

func NewTrafficHandler(traffic *service.TrafficService, nodes *service.NodeService) *TrafficHandler {
	return &TrafficHandler{traffic: traffic, nodes: nodes}
}

// Ingest handles POST /ingest, authenticated by the X-API-Key header.
func (h *TrafficHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	node, err := h.nodes.ResolveByAPIKey(r.Context(), r.Header.Get("X-API-Key"))
	if err != nil {
		respondWithError(w, err)
		return
	}

	var req service.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid request body")
		return
	}

	_, alert, err := h.traffic.Ingest(r.Context(), node, &req)
	if err != nil {
		respondWithError(w, err)
		return
	}

	payload := Envelope{}
	if alert != nil {
		payload["alert"] = alert
	}
	respondSuccess(w, "Traffic data recorded", payload)
}

// Get handles GET /traffic, dispatching on query parameters:
// ?realtime=true recent feed, ?alerts alert list, ?bandwidth hourly bandwidth,
// ?raw=true&node_id= raw node feed, ?node_id=&hours= aggregated summary.
func (h *TrafficHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("realtime") == "true":
		h.realtime(w, r)
	case q.Has("alerts"):
		h.alerts(w, r)
	case q.Has("bandwidth"):
		h.bandwidth(w, r)
	case q.Get("raw") == "true":
		h.nodeFeed(w, r)
	case q.Has("node_id"):
		h.summary(w, r)
	default:
		respondBadRequest(w, "Invalid parameters")
	}
}

func parseID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return id, err == nil && id > 0
}

func parseIntParam(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func (h *TrafficHandler) summary(w http.ResponseWriter, r *http.Request) {
	nodeID, ok := parseID(r, "node_id")
	if !ok {
		respondBadRequest(w, "Node ID required")
		return
	}

	hours := parseIntParam(r, "hours")
	buckets, stats, err := h.traffic.Summary(r.Context(), identityFrom(r), nodeID, hours)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if buckets == nil {
		buckets = []*model.SummaryBucket{}
	}
	if hours <= 0 {
		hours = 24
	}

	respondSuccess(w, "", Envelope{
		"summary":    buckets,
		"stats":      stats,
		"time_range": strconv.Itoa(hours) + " hours",
	})
}

func (h *TrafficHandler) realtime(w http.ResponseWriter, r *http.Request) {
	records, err := h.traffic.Realtime(r.Context(), identityFrom(r))
	if err != nil {
		respondWithError(w, err)
		return
	}
	if records == nil {
		records = []*model.TrafficRecord{}
	}

	respondSuccess(w, "", Envelope{
		"traffic":   records,
		"count":     len(records),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *TrafficHandler) alerts(w http.ResponseWriter, r *http.Request) {
	var nodeID *int64
	if id, ok := parseID(r, "node_id"); ok {
		nodeID = &id
	}

	alerts, err := h.traffic.Alerts(r.Context(), identityFrom(r), nodeID, parseIntParam(r, "limit"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*model.Alert{}
	}

	respondSuccess(w, "", Envelope{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (h *TrafficHandler) bandwidth(w http.ResponseWriter, r *http.Request) {
	nodeID, ok := parseID(r, "node_id")
	if !ok {
		respondBadRequest(w, "Node ID required")
		return
	}

	points, err := h.traffic.Bandwidth(r.Context(), identityFrom(r), nodeID, parseIntParam(r, "hours"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	if points == nil {
		points = []*model.BandwidthPoint{}
	}

	respondSuccess(w, "", Envelope{
		"bandwidth": points,
	})
}

func (h *TrafficHandler) nodeFeed(w http.ResponseWriter, r *http.Request) {
	nodeID, ok := parseID(r, "node_id")
	if !ok {
		respondBadRequest(w, "Node ID required")
		return
	}

	records, err := h.traffic.TrafficByNode(r.Context(), identityFrom(r), nodeID, parseIntParam(r, "limit"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	if records == nil {
		records = []*model.TrafficRecord{}
	}

	respondSuccess(w, "", Envelope{
		"traffic": records,
		"count":   len(records),
	})
}
