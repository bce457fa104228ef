package models

// RetrievalQuery is the input to the retrieval pipeline: a natural-language
// question plus an optional metadata filter (exact-match key/value constraints,
// e.g. {"source_type": "companies"}).
type RetrievalQuery struct {
	Question string            `json:"question"`
	Filter   map[string]string `json:"filter,omitempty"`
}

// NewRetrievalQuery wraps a bare question string; the pipeline accepts both
// forms uniformly.
func NewRetrievalQuery(question string) RetrievalQuery {
	return RetrievalQuery{Question: question}
}

// SearchHit is one candidate returned by the index store, carrying the stored
// embedding so the pipeline can compute diversity locally.
type SearchHit struct {
	Chunk     Chunk
	Embedding []float32
	Distance  float32
}
