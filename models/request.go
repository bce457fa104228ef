package models

type IngestRequest struct {
	DataDir string `json:"data_dir"`
	Clear   bool   `json:"clear"`
}

type SearchRequest struct {
	Question  string            `json:"question"`
	Filter    map[string]string `json:"filter,omitempty"`
	TopK      int               `json:"top_k,omitempty"`
	FetchK    int               `json:"fetch_k,omitempty"`
	MMRLambda *float64          `json:"mmr_lambda,omitempty"`
}
