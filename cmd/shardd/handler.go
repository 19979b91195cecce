package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/shardcoord"
)

type handler struct {
	router *shardcoord.Router
	shard  *shardcoord.Shard // nil in router mode
}

func newHandler(router *shardcoord.Router, shard *shardcoord.Shard) http.Handler {
	h := &handler{router: router, shard: shard}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /shards", h.shards)
	mux.HandleFunc("GET /route", h.route)
	mux.HandleFunc("POST /ids", h.mint)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{"router": h.router.Healthy()}
	healthy := h.router.Healthy()

	if h.shard != nil {
		status["shard"] = h.shard.Healthy()
		status["state"] = h.shard.State().String()
		healthy = healthy && h.shard.Healthy()
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *handler) shards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.router.Snapshot())
}

func (h *handler) route(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")

	shard, err := h.router.RouteShortID(code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": code, "shardId": shard})
}

func (h *handler) mint(w http.ResponseWriter, r *http.Request) {
	if h.shard == nil {
		http.Error(w, "not a shard process", http.StatusNotFound)
		return
	}

	code, err := h.shard.MintShortID(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"code": code, "shardId": h.shard.ShardID()})
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, shardcoord.ErrInvalidShortID):
		code = http.StatusBadRequest
	case errors.Is(err, shardcoord.ErrShardOffline), errors.Is(err, shardcoord.ErrNotStarted):
		code = http.StatusServiceUnavailable
	case errors.Is(err, shardcoord.ErrCapacityExhausted):
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
