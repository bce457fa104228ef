package models

// OllamaEmbedRequest is the payload for Ollama's /api/embeddings endpoint,
// which embeds chunk and query text for the index.
type OllamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// OllamaEmbedResponse carries the embedding vector Ollama returns.
type OllamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}
