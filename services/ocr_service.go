package services

import (
	"bytes"
	"image/png"
	"log"
	"os"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	"github.com/otiai10/gosseract/v2"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// OCREngine recognizes text in one raster image. It is pluggable so tests can
// run without a Tesseract installation.
type OCREngine interface {
	Recognize(image []byte) (string, error)
}

// TesseractEngine shells into Tesseract via gosseract with Korean and English
// trained data, matching the corpus.
type TesseractEngine struct{}

// Recognize creates a fresh client per call; gosseract clients are not safe
// for concurrent use across document workers.
func (TesseractEngine) Recognize(image []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage("kor", "eng"); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", err
	}
	return client.Text()
}

// OCRService recovers text from image-only pages: it pulls the embedded raster
// images out of the flagged pages, runs the OCR engine, and normalizes the
// output for the detected script.
type OCRService struct {
	cfg    ExtractionConfig
	engine OCREngine
}

func NewOCRService(cfg ExtractionConfig, engine OCREngine) *OCRService {
	return &OCRService{cfg: cfg, engine: engine}
}

// PageText is OCR output attributed to a page number.
type PageText struct {
	Page int
	Text string
}

// ExtractPageText runs OCR over the embedded images of the given pages and
// returns the usable text per page. OCR and image-decoding errors are
// page-local: the page simply contributes no text.
func (o *OCRService) ExtractPageText(path string, targetPages []int) []PageText {
	if len(targetPages) == 0 {
		return nil
	}
	targets := make(map[int]bool, len(targetPages))
	for _, p := range targetPages {
		targets[p] = true
	}

	f, err := os.Open(path)
	if err != nil {
		log.Printf("OCR: could not reopen %s for image extraction: %v", path, err)
		return nil
	}
	defer f.Close()

	reader, err := model.NewPdfReader(f)
	if err != nil {
		log.Printf("OCR: could not parse %s for image extraction: %v", path, err)
		return nil
	}
	numPages, err := reader.GetNumPages()
	if err != nil {
		return nil
	}

	var out []PageText
	for i := 1; i <= numPages; i++ {
		if !targets[i] {
			continue
		}
		text := o.recognizePage(reader, i)
		if text != "" {
			out = append(out, PageText{Page: i, Text: text})
		}
	}
	return out
}

func (o *OCRService) recognizePage(reader *model.PdfReader, pageNum int) string {
	page, err := reader.GetPage(pageNum)
	if err != nil {
		return ""
	}
	ex, err := extractor.New(page)
	if err != nil {
		return ""
	}
	images, err := ex.ExtractPageImages(nil)
	if err != nil {
		log.Printf("OCR: image extraction failed on page %d: %v", pageNum, err)
		return ""
	}

	var sb strings.Builder
	for _, mark := range images.Images {
		goImg, err := mark.Image.ToGoImage()
		if err != nil {
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, goImg); err != nil {
			continue
		}
		recognized, err := o.engine.Recognize(buf.Bytes())
		if err != nil {
			log.Printf("OCR: recognition failed on page %d: %v", pageNum, err)
			continue
		}
		normalized := NormalizeOCRText(recognized)
		if len([]rune(normalized)) >= o.cfg.OCRMinLength {
			sb.WriteString(normalized)
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String())
}

// koreanPunctuation is the punctuation kept by the Korean cleanup path.
const koreanPunctuation = ".,()%:-"

// NormalizeOCRText detects the script of recognized text and applies the
// matching cleanup: the Korean path keeps alphanumerics, Hangul syllables, and
// a fixed punctuation set; the Latin path keeps printable ASCII.
func NormalizeOCRText(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	info := whatlanggo.Detect(trimmed)
	var cleaned string
	if info.Lang == whatlanggo.Kor {
		cleaned = normalizeKorean(trimmed)
	} else {
		cleaned = normalizeLatin(trimmed)
	}
	return collapseWhitespace(cleaned)
}

func normalizeKorean(text string) string {
	var sb strings.Builder
	for _, r := range text {
		switch {
		case r >= '가' && r <= '힣':
			sb.WriteRune(r)
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(r)
		case strings.ContainsRune(koreanPunctuation, r):
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func normalizeLatin(text string) string {
	var sb strings.Builder
	for _, r := range text {
		if r == '\n' || (r >= 0x20 && r < 0x7f) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		kept = append(kept, strings.Join(fields, " "))
	}
	return strings.Join(kept, "\n")
}
