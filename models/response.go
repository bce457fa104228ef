package models

type IngestResponse struct {
	AddedChunks int    `json:"added_chunks"`
	Error       string `json:"error,omitempty"`
}

type SearchResponse struct {
	Count  int     `json:"count"`
	Chunks []Chunk `json:"chunks"`
}

type StatsResponse struct {
	Chunks int `json:"chunks"`
}
