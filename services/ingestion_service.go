package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"esgdocs/models"
)

// errStoreWrite marks index-store write failures, which fail the whole batch.
// All other per-document errors only skip that document.
var errStoreWrite = errors.New("index store write failed")

// IngestionService drives the one-way ingestion flow: PDF -> pages -> cleaned
// text -> chunks -> index. Documents are independent, so they are processed in
// parallel; the store's upsert-by-address is the dedup boundary shared between
// workers.
type IngestionService struct {
	extractor *ExtractorService
	cleaner   *CleaningService
	ocr       *OCRService
	segmenter *SegmentationService
	embedder  Embedder
	store     IndexStore
	qc        *QCReporter
	workers   int
}

func NewIngestionService(
	extractor *ExtractorService,
	cleaner *CleaningService,
	ocr *OCRService,
	segmenter *SegmentationService,
	embedder Embedder,
	store IndexStore,
	qc *QCReporter,
	workers int,
) *IngestionService {
	if workers <= 0 {
		workers = 4
	}
	return &IngestionService{
		extractor: extractor,
		cleaner:   cleaner,
		ocr:       ocr,
		segmenter: segmenter,
		embedder:  embedder,
		store:     store,
		qc:        qc,
		workers:   workers,
	}
}

// IngestDirectory scans the category subfolders under root and indexes every
// PDF. With clear set, the index is dropped and rebuilt from scratch;
// otherwise ingestion is incremental and re-running over an unchanged corpus
// adds zero chunks. Returns the number of newly added chunks.
func (s *IngestionService) IngestDirectory(ctx context.Context, root string, clear bool) (int, error) {
	runID := uuid.New().String()[:8]
	log.Printf("INGEST[%s]: starting directory scan for: %s (clear=%v)", runID, root, clear)

	if clear {
		if err := s.store.Reset(ctx); err != nil {
			return 0, fmt.Errorf("failed to clear index: %w", err)
		}
		log.Printf("INGEST[%s]: index cleared", runID)
	}

	var added atomic.Int64
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)

	for _, folder := range SourceFolders {
		dir := filepath.Join(root, folder)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		paths, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
		if err != nil {
			return 0, fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, path := range paths {
			path, folder := path, folder
			group.Go(func() error {
				count, err := s.processDocument(gctx, path, folder)
				if err != nil {
					return err
				}
				added.Add(int64(count))
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		// Entries upserted before the failure stay; a re-run converges because
		// ingestion is idempotent.
		return int(added.Load()), err
	}
	log.Printf("INGEST[%s]: scan finished, %d new chunks", runID, added.Load())
	return int(added.Load()), nil
}

// IngestFile indexes a single PDF incrementally. The category is taken from
// the file's parent folder name.
func (s *IngestionService) IngestFile(ctx context.Context, path string) (int, error) {
	folder := filepath.Base(filepath.Dir(path))
	return s.processDocument(ctx, path, folder)
}

// processDocument runs the full per-document pipeline. Unreadable documents
// are skipped with a log line, never failing the batch; only store write
// failures propagate.
func (s *IngestionService) processDocument(ctx context.Context, path, folder string) (int, error) {
	doc, pages, events, err := s.extractor.LoadDocument(path, folder)
	if err != nil {
		log.Printf("INGEST: skipping unreadable document %s: %v", filepath.Base(path), err)
		return 0, nil
	}
	log.Printf("INGEST: processing %s (%d pages)", doc.FileName, doc.PageCount)

	chunks, ocrTargets, headersFooters, events := s.chunkDocument(doc, pages, events)

	// OCR only pages whose text layer was too thin to clean.
	recovered := s.ocr.ExtractPageText(doc.Path, ocrTargets)
	chunks, events = s.appendOCRChunks(doc, recovered, chunks, events)

	added, err := s.indexChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}

	if s.qc != nil {
		if err := s.qc.WriteReport(doc, headersFooters, events, added); err != nil {
			log.Printf("INGEST: QC report failed for %s: %v", doc.FileName, err)
		}
	}
	log.Printf("INGEST: %s done, %d new chunks (%d total in document)", doc.FileName, added, len(chunks))
	return added, nil
}

// chunkDocument runs noise suppression and segmentation over raw pages and
// returns the text-layer chunks plus the pages that need the OCR route.
func (s *IngestionService) chunkDocument(doc *models.SourceDocument, pages []models.Page, events []models.QCEvent) ([]models.Chunk, []int, HeaderFooterSet, []models.QCEvent) {
	rawTexts := make([]string, len(pages))
	for i, p := range pages {
		rawTexts[i] = p.Text
	}
	headersFooters := s.cleaner.DetectHeadersFooters(rawTexts)

	chunks := make([]models.Chunk, 0)
	var ocrTargets []int
	for _, page := range pages {
		skip, reason := s.cleaner.ShouldSkipPage(page.Text, page.Number)
		if skip {
			events = append(events, models.QCEvent{Page: page.Number, Status: "skip", Reason: reason})
			continue
		}

		stripped := s.cleaner.StripHeadersFooters(page.Text, headersFooters)
		cleaned := s.cleaner.CleanPage(stripped)
		if cleaned == "" {
			if s.extractor.NeedsOCR(page.Text) {
				ocrTargets = append(ocrTargets, page.Number)
				events = append(events, models.QCEvent{Page: page.Number, Status: "ocr_candidate", Reason: "low_text"})
			} else {
				events = append(events, models.QCEvent{Page: page.Number, Status: "drop", Reason: "clean_failed"})
			}
			continue
		}

		page.Text = cleaned
		meta := chunkMetadata(doc, page)
		pageChunks, err := s.segmenter.SplitPage(page.Text, meta)
		if err != nil {
			log.Printf("INGEST: failed to split page %d of %s: %v", page.Number, doc.FileName, err)
			events = append(events, models.QCEvent{Page: page.Number, Status: "error", Reason: "split_failed"})
			continue
		}
		chunks = append(chunks, pageChunks...)
	}
	return chunks, ocrTargets, headersFooters, events
}

// appendOCRChunks cleans recovered OCR text and adds one whole-page chunk per
// page that survives cleaning.
func (s *IngestionService) appendOCRChunks(doc *models.SourceDocument, recovered []PageText, chunks []models.Chunk, events []models.QCEvent) ([]models.Chunk, []models.QCEvent) {
	for _, page := range recovered {
		cleaned := s.cleaner.CleanPage(page.Text)
		if cleaned == "" {
			events = append(events, models.QCEvent{Page: page.Page, Status: "drop", Reason: "ocr_noise"})
			continue
		}
		meta := chunkMetadata(doc, models.Page{Number: page.Page, OCR: true})
		chunks = append(chunks, s.segmenter.WholePageChunk(cleaned, meta))
	}
	return chunks, events
}

// indexChunks filters out chunks whose content address is already stored,
// embeds the remainder, and upserts them. Embedding cost is only paid for new
// chunks.
func (s *IngestionService) indexChunks(ctx context.Context, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	existing, err := s.store.ExistingIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errStoreWrite, err)
	}

	seen := make(map[string]bool, len(chunks))
	fresh := make([]models.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if existing[chunk.ID] || seen[chunk.ID] {
			continue
		}
		seen[chunk.ID] = true
		fresh = append(fresh, chunk)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	vectors := make([][]float32, 0, len(fresh))
	for _, chunk := range fresh {
		vector, err := s.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return 0, fmt.Errorf("could not embed chunk %s: %w", chunk.ID, err)
		}
		vectors = append(vectors, vector)
	}

	if err := s.store.Upsert(ctx, fresh, vectors); err != nil {
		return 0, fmt.Errorf("%w: %v", errStoreWrite, err)
	}
	return len(fresh), nil
}

func chunkMetadata(doc *models.SourceDocument, page models.Page) models.ChunkMetadata {
	return models.ChunkMetadata{
		SourceFile: doc.FileName,
		SourceType: doc.SourceType,
		Page:       page.Number,
		Company:    doc.Company,
		Year:       doc.Year,
		Country:    doc.Country,
		OCR:        page.OCR,
		Parser:     page.Parser,
	}
}

// WatchDirectory starts a long-running watcher over the category folders and
// ingests PDFs as they appear. Blocks until the context is cancelled.
func (s *IngestionService) WatchDirectory(ctx context.Context, root string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("WATCHER ERROR: Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.EqualFold(filepath.Ext(event.Name), ".pdf") {
					continue
				}
				// Downloads and copies surface as Create plus Writes; both
				// routes end in the same idempotent ingestion.
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					log.Printf("WATCHER: new report detected: %s. Ingesting...", event.Name)
					if _, err := s.IngestFile(ctx, event.Name); err != nil {
						log.Printf("WATCHER ERROR: failed to ingest %s: %v", event.Name, err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("WATCHER ERROR: %v", err)
			case <-ctx.Done():
				log.Println("WATCHER: Context cancelled, shutting down watcher.")
				return
			}
		}
	}()

	for _, folder := range SourceFolders {
		dir := filepath.Join(root, folder)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.Printf("WATCHER ERROR: Failed to watch %s: %v", dir, err)
			continue
		}
		log.Printf("WATCHER: Watching directory: %s", dir)
	}

	<-ctx.Done()
}
