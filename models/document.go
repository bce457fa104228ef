package models

// SourceDocument identifies one PDF report on disk, together with the metadata
// inferred from its filename and category folder.
type SourceDocument struct {
	Path       string `json:"path"`
	FileName   string `json:"file_name"`
	SourceType string `json:"source_type"` // category folder: domestic, global, companies
	Company    string `json:"company,omitempty"`
	Year       string `json:"year,omitempty"`
	Country    string `json:"country,omitempty"`
	PageCount  int    `json:"page_count"`
}

// Page is one physical page of a SourceDocument as produced by the extraction
// layer, before cleaning.
type Page struct {
	Number int    // 1-based
	Text   string // raw text-layer content, may be empty
	OCR    bool   // text was recovered via OCR rather than the text layer
	Parser string // set when a secondary extraction route produced the text
}

// ChunkMetadata is attached to every chunk stored in the index.
type ChunkMetadata struct {
	SourceFile string `json:"source_file"`
	SourceType string `json:"source_type"`
	Page       int    `json:"page"`
	Company    string `json:"company,omitempty"`
	Year       string `json:"year,omitempty"`
	Country    string `json:"country,omitempty"`
	OCR        bool   `json:"ocr,omitempty"`
	Parser     string `json:"parser,omitempty"`
}

// Chunk is the unit stored in and retrieved from the index. ID is the content
// address: a sha256 over (source file, page, trimmed text), so identical chunks
// collapse to one entry and re-ingestion is idempotent.
type Chunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// QCEvent records why a page was skipped, dropped, or routed to OCR during
// ingestion of one document.
type QCEvent struct {
	Page   int    `json:"page"`
	Status string `json:"status"` // skip, drop, ocr_candidate, error
	Reason string `json:"reason"`
}
