package services

// The cleaning and extraction thresholds below were tuned against real
// sustainability reports; they are configuration, not invariants, so every
// engine instance can override them.

// ExtractionConfig controls the extraction layer and its OCR fallback.
type ExtractionConfig struct {
	// OCRAlphaThreshold flags a page as an OCR candidate when its alphabetic
	// rune count is below this value (near-empty text layer).
	OCRAlphaThreshold int
	// OCRMinLength discards OCR output shorter than this many runes.
	OCRMinLength int
}

func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		OCRAlphaThreshold: 15,
		OCRMinLength:      10,
	}
}

// CleaningConfig controls header/footer detection and the garbage filters.
type CleaningConfig struct {
	// EdgeLines is how many lines at the top and bottom of each page are
	// considered header/footer candidates.
	EdgeLines int
	// RepeatRatio is the fraction of pages a candidate line must appear on to
	// count as a running header/footer (minimum 2 pages regardless).
	RepeatRatio float64
	// MaxHeaderLen and MaxHeaderTokens bound what a header/footer line may
	// look like: short, few alphabetic tokens.
	MaxHeaderLen    int
	MaxHeaderTokens int
	// NavWordThreshold is how many navigation-menu words must appear before a
	// page is treated as a navigation/contents page.
	NavWordThreshold int
	// MinPageLen and MinAlphaRatio drop pages that are too short or dominated
	// by digits and symbols after cleaning.
	MinPageLen    int
	MinAlphaRatio float64
}

func DefaultCleaningConfig() CleaningConfig {
	return CleaningConfig{
		EdgeLines:        3,
		RepeatRatio:      0.6,
		MaxHeaderLen:     60,
		MaxHeaderTokens:  10,
		NavWordThreshold: 4,
		MinPageLen:       10,
		MinAlphaRatio:    0.2,
	}
}

// SegmentationConfig controls the chunk splitter.
type SegmentationConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

func DefaultSegmentationConfig() SegmentationConfig {
	return SegmentationConfig{
		ChunkSize:    1200,
		ChunkOverlap: 150,
	}
}

// RetrievalConfig holds the pipeline defaults; per-request values override
// them.
type RetrievalConfig struct {
	TopK   int
	FetchK int
	// FetchKCeiling is the hard cap on candidates pulled from the store.
	FetchKCeiling int
	// MMRLambda is the diversity weight of the MMR search: 0 is pure
	// relevance, 1 pure diversity.
	MMRLambda float64
	// MinOCRChunkLen is used by the default post-filter: OCR-origin chunks
	// shorter than this are treated as recognition noise.
	MinOCRChunkLen int
	// DefaultFilter is merged under every per-query filter.
	DefaultFilter map[string]string
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:           6,
		FetchK:         30,
		FetchKCeiling:  50,
		MMRLambda:      0.3,
		MinOCRChunkLen: 60,
	}
}

// CountryBySourceType maps a category folder to a coarse country/region tag.
var CountryBySourceType = map[string]string{
	"domestic":  "KR",
	"companies": "KR",
	"global":    "GLOBAL",
}

// SourceFolders are the category subfolders scanned under the data root.
var SourceFolders = []string{"domestic", "global", "companies"}
