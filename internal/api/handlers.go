package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"hnswdb/internal/shard"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body: "+err.Error(), "")
		return false
	}
	return true
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required", "")
		return
	}
	var req InsertRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.shard.Insert(r.Context(), req.ID, req.Vector, req.Metadata); err != nil {
		writeShardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InsertResponse{Success: true, ID: req.ID, Message: "inserted"})
}

func (s *Server) handleBatchInsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required", "")
		return
	}
	var req BatchInsertRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	items := make([]shard.InsertItem, len(req.Vectors))
	for i, v := range req.Vectors {
		items[i] = shard.InsertItem{ID: v.ID, Vector: v.Vector, Metadata: v.Metadata}
	}

	results, err := s.shard.BatchInsert(r.Context(), items)
	if err != nil {
		writeShardError(w, err)
		return
	}

	resp := BatchInsertResponse{
		Total:   len(results),
		Results: make([]BatchInsertItemResp, len(results)),
	}
	for i, res := range results {
		item := BatchInsertItemResp{ID: res.ID}
		if res.Err != nil {
			item.Message = res.Err.Error()
			resp.Failed++
		} else {
			item.Success = true
			item.Message = "inserted"
			resp.Inserted++
		}
		resp.Results[i] = item
	}
	resp.Success = true
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required", "")
		return
	}
	var req SearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	k := req.K
	if k <= 0 {
		k = 10
	}
	if k > 100 {
		writeError(w, http.StatusBadRequest, "k must be <= 100", "")
		return
	}

	hits, err := s.shard.Search(r.Context(), req.Vector, k, 0)
	if err != nil {
		writeShardError(w, err)
		return
	}

	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = SearchResult{ID: h.ID, Score: h.Score, Distance: h.Distance, Metadata: h.Metadata}
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Success:   true,
		Count:     len(results),
		Algorithm: "HNSW",
		Results:   results,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required", "")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/vector/get/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id path segment required", "")
		return
	}

	rec, vec, err := s.shard.GetVector(r.Context(), id)
	if err != nil {
		writeShardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GetResponse{ID: rec.ID, Vector: vec, Metadata: rec.Metadata})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "DELETE required", "")
		return
	}
	var req DeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.shard.Delete(r.Context(), req.ID); err != nil {
		writeShardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Success: true, Message: "deleted"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required", "")
		return
	}

	stats, err := s.shard.Stats(r.Context())
	if err != nil {
		writeShardError(w, err)
		return
	}
	degrees, err := s.shard.LayerDegrees(r.Context())
	if err != nil {
		writeShardError(w, err)
		return
	}
	entryLevel, _, err := s.shard.EntryPointLevel(r.Context())
	if err != nil {
		writeShardError(w, err)
		return
	}

	shouldCompact, err := s.shard.ShouldCompact(r.Context())
	if err != nil {
		writeShardError(w, err)
		return
	}
	ratio := stats.OrphanRatio * 100
	recommendation := "healthy"
	if shouldCompact {
		recommendation = "compact recommended: tombstone ratio above threshold"
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Success:              true,
		Algorithm:            "HNSW",
		Dimension:            stats.Dimension,
		NumVectors:           stats.LiveVectors,
		NumActive:            stats.LiveVectors,
		NumDeleted:           stats.Tombstones,
		NumNodes:             stats.GraphNodes,
		EntryPointLevel:      entryLevel,
		ConnectionsPerLayer:  degrees,
		DeletionRatioPercent: ratio,
		Recommendation:       recommendation,
	})
}
