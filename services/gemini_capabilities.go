package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"

	"esgdocs/models"
)

const geminiModel = "gemini-2.5-flash"

const rewritePromptTemplate = `Rewrite the user's question as a search query against a corpus of corporate ESG and sustainability reports.
- Include company names, the ESG area (E/S/G), policy keywords, and English synonyms where relevant.
- Output a single line with no bullets and no commentary.
Question: %s
Metadata filter: %s`

// GeminiRewriter is a QueryRewriter backed by the Gemini API. It expands
// questions with domain vocabulary so they match report language better.
type GeminiRewriter struct {
	client *genai.Client
}

func NewGeminiRewriter(client *genai.Client) *GeminiRewriter {
	return &GeminiRewriter{client: client}
}

func (g *GeminiRewriter) Rewrite(ctx context.Context, question string, filter map[string]string) (string, error) {
	filterJSON, _ := json.Marshal(filter)
	prompt := fmt.Sprintf(rewritePromptTemplate, question, string(filterJSON))

	result, err := g.client.Models.GenerateContent(ctx, geminiModel, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini rewrite call failed: %w", err)
	}
	rewritten := strings.TrimSpace(result.Text())
	if rewritten == "" {
		return question, nil
	}
	return rewritten, nil
}

const rerankPromptTemplate = `Score how relevant each passage is to the query on a 0.0-1.0 scale.
Query: %s

%s

Respond with a JSON array of objects like [{"index": 0, "score": 0.92}, ...], one object per passage, and nothing else.`

// GeminiReranker is a Reranker backed by the Gemini API: a second, more
// precise relevance pass over the MMR candidate set.
type GeminiReranker struct {
	client *genai.Client
}

func NewGeminiReranker(client *genai.Client) *GeminiReranker {
	return &GeminiReranker{client: client}
}

type rerankScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func (g *GeminiReranker) Rerank(ctx context.Context, query string, candidates []models.Chunk, topK int) ([]models.Chunk, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var passages strings.Builder
	for i, c := range candidates {
		text := c.Text
		if len([]rune(text)) > 600 {
			text = string([]rune(text)[:600])
		}
		passages.WriteString(fmt.Sprintf("[%d] %s\n\n", i, text))
	}
	prompt := fmt.Sprintf(rerankPromptTemplate, query, passages.String())

	result, err := g.client.Models.GenerateContent(ctx, geminiModel, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini rerank call failed: %w", err)
	}

	raw := strings.TrimSpace(result.Text())
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var scores []rerankScore
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &scores); err != nil {
		return nil, fmt.Errorf("could not parse rerank scores: %w", err)
	}

	byScore := make([]rerankScore, 0, len(scores))
	for _, s := range scores {
		if s.Index >= 0 && s.Index < len(candidates) {
			byScore = append(byScore, s)
		}
	}
	sort.SliceStable(byScore, func(i, j int) bool {
		return byScore[i].Score > byScore[j].Score
	})

	reordered := make([]models.Chunk, 0, len(byScore))
	seen := make(map[int]bool, len(byScore))
	for _, s := range byScore {
		if seen[s.Index] {
			continue
		}
		seen[s.Index] = true
		reordered = append(reordered, candidates[s.Index])
	}
	if len(reordered) > topK {
		reordered = reordered[:topK]
	}
	return reordered, nil
}
