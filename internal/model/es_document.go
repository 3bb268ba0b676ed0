package model

// VectorDocument 定义了 Elasticsearch 向量引擎中一条记录的结构。
// 同一次构建的所有记录共享 BuildID，Position 指向构建时的分块下标。
type VectorDocument struct {
	BuildID      string    `json:"build_id"`
	Position     int       `json:"position"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version,omitempty"`
}
