package shard

import (
	"encoding/json"
	"time"

	"hnswdb/internal/hnsw"
	"hnswdb/internal/recordstore"
	"hnswdb/internal/vecmath"
)

// persistedMeta is the shard's "meta" singleton row: the construction
// parameters needed to validate a reopened shard against its config and
// to rebuild a fresh Graph with identical behavior.
type persistedMeta struct {
	Dimension      int     `json:"dimension"`
	Metric         string  `json:"metric"`
	M              int     `json:"m"`
	M0             int     `json:"m0"`
	EFConstruction int     `json:"ef_construction"`
	MaxLevel       int     `json:"max_level"`
	LevelMult      float64 `json:"level_mult"`
	Seed           uint64  `json:"seed"`
}

func metaFromConfig(cfg Config) persistedMeta {
	return persistedMeta{
		Dimension:      cfg.Dimension,
		Metric:         string(cfg.Metric),
		M:              cfg.M,
		M0:             cfg.M0,
		EFConstruction: cfg.EFConstruction,
		MaxLevel:       cfg.MaxLevel,
		LevelMult:      cfg.LevelMult,
		Seed:           cfg.Seed,
	}
}

func (m persistedMeta) graphConfig() hnsw.Config {
	return hnsw.Config{
		Dimension:      m.Dimension,
		Metric:         vecmath.Metric(m.Metric),
		M:              m.M,
		M0:             m.M0,
		EFConstruction: m.EFConstruction,
		MaxLevel:       m.MaxLevel,
		LevelMult:      m.LevelMult,
		Seed:           m.Seed,
	}
}

// persistedEntry captures the graph's current entry point, written as
// part of every mutating batch so a restart can resume search without
// replaying the whole insertion history's traversal order.
type persistedEntry struct {
	HasEntry bool   `json:"has_entry"`
	NodeID   uint64 `json:"node_id"`
	MaxLayer int    `json:"max_layer"`
}

// persistedNode is the durable form of one hnsw.Node.
type persistedNode struct {
	Vector    []float32  `json:"vector"`
	Level     int        `json:"level"`
	Neighbors [][]uint64 `json:"neighbors"`
}

func encodeNode(n *hnsw.Node) []byte {
	neighbors := make([][]uint64, len(n.Neighbors))
	for i, layer := range n.Neighbors {
		row := make([]uint64, len(layer))
		for j, id := range layer {
			row[j] = uint64(id)
		}
		neighbors[i] = row
	}
	b, _ := json.Marshal(persistedNode{Vector: n.Vector, Level: n.Level, Neighbors: neighbors})
	return b
}

func decodeNode(data []byte) (*hnsw.Node, error) {
	var pn persistedNode
	if err := json.Unmarshal(data, &pn); err != nil {
		return nil, err
	}
	neighbors := make([][]hnsw.NodeID, len(pn.Neighbors))
	for i, row := range pn.Neighbors {
		layer := make([]hnsw.NodeID, len(row))
		for j, id := range row {
			layer[j] = hnsw.NodeID(id)
		}
		neighbors[i] = layer
	}
	return &hnsw.Node{Vector: pn.Vector, Level: pn.Level, Neighbors: neighbors}, nil
}

// persistedRecord is the durable form of one recordstore.Record.
type persistedRecord struct {
	ID        string         `json:"id"`
	NodeID    uint64         `json:"node_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Dimension int            `json:"dimension"`
	CreatedAt time.Time      `json:"created_at"`
}

func encodeRecord(r *recordstore.Record) []byte {
	b, _ := json.Marshal(persistedRecord{
		ID:        r.ID,
		NodeID:    uint64(r.NodeID),
		Metadata:  r.Metadata,
		Dimension: r.Dimension,
		CreatedAt: r.CreatedAt,
	})
	return b
}

func decodeRecord(data []byte) (*recordstore.Record, error) {
	var pr persistedRecord
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, err
	}
	return &recordstore.Record{
		ID:        pr.ID,
		NodeID:    hnsw.NodeID(pr.NodeID),
		Metadata:  pr.Metadata,
		Dimension: pr.Dimension,
		CreatedAt: pr.CreatedAt,
	}, nil
}

func encodeEntry(nodeID hnsw.NodeID, hasEntry bool, maxLayer int) []byte {
	b, _ := json.Marshal(persistedEntry{HasEntry: hasEntry, NodeID: uint64(nodeID), MaxLayer: maxLayer})
	return b
}

func decodeEntry(data []byte) (persistedEntry, error) {
	var pe persistedEntry
	err := json.Unmarshal(data, &pe)
	return pe, err
}

func encodeMeta(m persistedMeta) []byte {
	b, _ := json.Marshal(m)
	return b
}

func decodeMeta(data []byte) (persistedMeta, error) {
	var m persistedMeta
	err := json.Unmarshal(data, &m)
	return m, err
}
