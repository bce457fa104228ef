package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"esgdocs/models"
)

// SegmentationService splits cleaned page text into bounded, overlapping
// chunks and stamps each one with its content address.
type SegmentationService struct {
	cfg      SegmentationConfig
	splitter textsplitter.RecursiveCharacter
}

func NewSegmentationService(cfg SegmentationConfig) *SegmentationService {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		// Prefer paragraph breaks, then lines, then sentences, then words.
		textsplitter.WithSeparators([]string{"\n\n", "\n", ".", " "}),
	)
	return &SegmentationService{cfg: cfg, splitter: splitter}
}

// SplitPage splits one cleaned page into chunks carrying the page's metadata.
// The content address is the chunk's identity, so identical fragments of the
// same page (the splitter can emit a trailing fragment more than once)
// collapse to one chunk here.
func (s *SegmentationService) SplitPage(text string, meta models.ChunkMetadata) ([]models.Chunk, error) {
	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split page %d of %s: %w", meta.Page, meta.SourceFile, err)
	}
	chunks := make([]models.Chunk, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		id := ContentAddress(meta.SourceFile, meta.Page, trimmed)
		if seen[id] {
			continue
		}
		seen[id] = true
		chunks = append(chunks, models.Chunk{
			ID:       id,
			Text:     trimmed,
			Metadata: meta,
		})
	}
	return chunks, nil
}

// WholePageChunk wraps already-normalized text (OCR output) as a single chunk
// without re-splitting it.
func (s *SegmentationService) WholePageChunk(text string, meta models.ChunkMetadata) models.Chunk {
	trimmed := strings.TrimSpace(text)
	return models.Chunk{
		ID:       ContentAddress(meta.SourceFile, meta.Page, trimmed),
		Text:     trimmed,
		Metadata: meta,
	}
}

// ContentAddress computes the deterministic identity of a chunk from its
// source file, page number, and trimmed text. Chunks with equal addresses are
// the same chunk: this is the dedup key that makes re-ingestion idempotent.
func ContentAddress(sourceFile string, page int, text string) string {
	h := sha256.New()
	h.Write([]byte(sourceFile))
	h.Write([]byte{0})
	h.Write([]byte(fmt.Sprintf("%d", page)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(h.Sum(nil))
}
