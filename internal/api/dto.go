// Package api implements the JSON-over-HTTP request/response contract:
// plain net/http handlers bound to a shard controller, in the style
// of the pack's own hand-rolled JSON servers (no router framework, a
// bare http.ServeMux and one handler method per route).
package api

// InsertRequest is the body of POST /api/vector/insert.
type InsertRequest struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// InsertResponse is the success body of POST /api/vector/insert.
type InsertResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

// BatchInsertRequest is the body of POST /api/vector/batch-insert.
type BatchInsertRequest struct {
	Vectors []BatchInsertItem `json:"vectors"`
}

// BatchInsertItem is one entry of a BatchInsertRequest.
type BatchInsertItem struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// BatchInsertResponse is the success body of POST /api/vector/batch-insert.
type BatchInsertResponse struct {
	Success  bool                  `json:"success"`
	Total    int                   `json:"total"`
	Inserted int                   `json:"inserted"`
	Failed   int                   `json:"failed"`
	Results  []BatchInsertItemResp `json:"results"`
}

// BatchInsertItemResp reports one item's outcome within a batch insert.
type BatchInsertItemResp struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SearchRequest is the body of POST /api/vector/search.
type SearchRequest struct {
	Vector []float32 `json:"vector"`
	K      int       `json:"k,omitempty"`
}

// SearchResponse is the success body of POST /api/vector/search.
type SearchResponse struct {
	Success   bool           `json:"success"`
	Count     int            `json:"count"`
	Algorithm string         `json:"algorithm"`
	Results   []SearchResult `json:"results"`
}

// SearchResult is one ranked hit within a SearchResponse.
type SearchResult struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Distance float32        `json:"distance"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// GetResponse is the success body of GET /api/vector/get/:id.
type GetResponse struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DeleteRequest is the body of DELETE /api/vector/delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// DeleteResponse is the success body of DELETE /api/vector/delete.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatsResponse is the success body of GET /api/vector/stats.
type StatsResponse struct {
	Success              bool    `json:"success"`
	Algorithm            string  `json:"algorithm"`
	Dimension            int     `json:"dimension"`
	NumVectors           int     `json:"num_vectors"`
	NumActive            int     `json:"num_active"`
	NumDeleted           int     `json:"num_deleted"`
	NumNodes             int     `json:"num_nodes"`
	EntryPointLevel      int     `json:"entry_point_level"`
	ConnectionsPerLayer  []int   `json:"connections_per_layer"`
	DeletionRatioPercent float64 `json:"deletion_ratio_percent"`
	Recommendation       string  `json:"recommendation"`
}

// HealthResponse is the body of GET /health, the one unauthenticated
// surface.
type HealthResponse struct {
	Status        string            `json:"status"`
	Service       string            `json:"service"`
	Version       string            `json:"version"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// ErrorResponse is the non-2xx error envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}
