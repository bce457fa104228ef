package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/joho/godotenv"
	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"esgdocs/models"
)

func init() {
	// Load .env file from the current directory
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}
	err := license.SetMeteredKey(os.Getenv("UNIDOC_LICENSE_KEY"))
	if err != nil {
		fmt.Printf("ERROR: Failed to set Unidoc license key: %v. PDF processing will fail.\n", err)
	}
}

// ExtractorService turns one source PDF into page-level text. UniPDF is the
// primary parser; documents it cannot open are retried with the ledongthuc
// reader, and pages produced that way are tagged with the parser name.
type ExtractorService struct {
	cfg ExtractionConfig
}

func NewExtractorService(cfg ExtractionConfig) *ExtractorService {
	return &ExtractorService{cfg: cfg}
}

var yearRe = regexp.MustCompile(`20\d{2}`)

// LoadDocument opens a PDF and returns the document record plus one Page per
// physical page. A failure on a single page is recorded as a skipped page, not
// an error; only a document that neither parser can open fails.
func (e *ExtractorService) LoadDocument(path, sourceType string) (*models.SourceDocument, []models.Page, []models.QCEvent, error) {
	doc := e.inferMetadata(path, sourceType)

	pages, events, err := e.loadWithUniPDF(path)
	if err != nil {
		log.Printf("EXTRACTOR: unipdf failed to open %s (%v), retrying with ledongthuc", doc.FileName, err)
		pages, events, err = e.loadWithLedongthuc(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("could not open %s with any parser: %w", doc.FileName, err)
		}
	}

	doc.PageCount = len(pages)
	return doc, pages, events, nil
}

func (e *ExtractorService) loadWithUniPDF(path string) ([]models.Page, []models.QCEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader, err := model.NewPdfReader(f)
	if err != nil {
		return nil, nil, err
	}
	numPages, err := reader.GetNumPages()
	if err != nil {
		return nil, nil, err
	}

	pages := make([]models.Page, 0, numPages)
	var events []models.QCEvent
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			events = append(events, models.QCEvent{Page: i, Status: "error", Reason: "page_unreadable"})
			pages = append(pages, models.Page{Number: i})
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			events = append(events, models.QCEvent{Page: i, Status: "error", Reason: "extractor_init"})
			pages = append(pages, models.Page{Number: i})
			continue
		}
		text, err := ex.ExtractText()
		if err != nil {
			events = append(events, models.QCEvent{Page: i, Status: "error", Reason: "extract_failed"})
			pages = append(pages, models.Page{Number: i})
			continue
		}
		pages = append(pages, models.Page{Number: i, Text: text})
	}
	return pages, events, nil
}

func (e *ExtractorService) loadWithLedongthuc(path string) ([]models.Page, []models.QCEvent, error) {
	f, reader, err := ledongthuc.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]models.Page, 0, numPages)
	var events []models.QCEvent
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			events = append(events, models.QCEvent{Page: i, Status: "error", Reason: "page_unreadable"})
			pages = append(pages, models.Page{Number: i, Parser: "ledongthuc"})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			events = append(events, models.QCEvent{Page: i, Status: "error", Reason: "extract_failed"})
			pages = append(pages, models.Page{Number: i, Parser: "ledongthuc"})
			continue
		}
		pages = append(pages, models.Page{Number: i, Text: text, Parser: "ledongthuc"})
	}
	return pages, events, nil
}

// NeedsOCR reports whether a page's text layer is too thin to be real content,
// typical of scanned or image-only pages.
func (e *ExtractorService) NeedsOCR(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	alpha := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	return alpha < e.cfg.OCRAlphaThreshold
}

// inferMetadata recovers company and year from the filename and maps the
// category folder to a country tag. Filenames follow the convention
// "<company>_<anything>_<year>.pdf".
func (e *ExtractorService) inferMetadata(path, sourceType string) *models.SourceDocument {
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	company := stem
	if idx := strings.Index(stem, "_"); idx >= 0 {
		company = stem[:idx]
	}
	company = strings.TrimSpace(company)

	year := yearRe.FindString(stem)

	return &models.SourceDocument{
		Path:       path,
		FileName:   name,
		SourceType: sourceType,
		Company:    company,
		Year:       year,
		Country:    CountryBySourceType[sourceType],
	}
}
