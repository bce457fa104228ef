package services

import (
	"regexp"
	"strings"
	"unicode"
)

// CleaningService removes layout noise from extracted report pages: repeating
// headers/footers, navigation menus, cover and contents pages, and garbage
// lines left behind by the PDF text layer.
type CleaningService struct {
	cfg CleaningConfig
}

func NewCleaningService(cfg CleaningConfig) *CleaningService {
	return &CleaningService{cfg: cfg}
}

// Words that dominate the navigation banners of sustainability reports.
var navMenuWords = []string{
	"OVERVIEW",
	"ENVIRONMENTAL",
	"SOCIAL",
	"GOVERNANCE",
	"APPENDIX",
}

// Keywords that mark a page as table-of-contents style layout furniture.
var layoutKeywords = []string{
	"CONTENTS",
	"TABLE OF CONTENTS",
	"INDEX",
	"SUSTAINABILITY REPORT",
}

var (
	alphaTokenRe     = regexp.MustCompile(`[A-Za-z가-힣]+`)
	romanNumeralRe   = regexp.MustCompile(`^[IVXLCDM]+$`)
	shortUppercaseRe = regexp.MustCompile(`^[A-Z]{1,3}$`)
)

// HeaderFooterSet holds the repeating lines detected for one document.
type HeaderFooterSet struct {
	Headers map[string]bool
	Footers map[string]bool
}

// looksLikeNavigation reports whether the text reads like a navigation menu or
// a table-of-contents marker rather than body content.
func (s *CleaningService) looksLikeNavigation(text string) bool {
	upper := strings.ToUpper(text)
	hits := 0
	for _, word := range navMenuWords {
		if strings.Contains(upper, word) {
			hits++
		}
	}
	if hits >= s.cfg.NavWordThreshold {
		return true
	}
	for _, kw := range layoutKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// isHeaderFooterCandidate reports whether a line looks like layout furniture:
// short, low token count, and not itself a dense navigation phrase.
func (s *CleaningService) isHeaderFooterCandidate(line string) bool {
	stripped := strings.TrimSpace(line)
	if stripped == "" {
		return false
	}
	if len(stripped) > s.cfg.MaxHeaderLen {
		return false
	}
	if len(alphaTokenRe.FindAllString(stripped, -1)) >= s.cfg.MaxHeaderTokens {
		return false
	}
	if s.looksLikeNavigation(stripped) {
		return false
	}
	return true
}

// DetectHeadersFooters scans every page of one document and collects the lines
// that repeat near-identically within the first and last EdgeLines of a high
// fraction of pages. Those are running headers/footers and get stripped
// verbatim from all pages later.
func (s *CleaningService) DetectHeadersFooters(pageTexts []string) HeaderFooterSet {
	headerCount := make(map[string]int)
	footerCount := make(map[string]int)

	for _, text := range pageTexts {
		lines := strings.Split(text, "\n")
		top := lines
		if len(top) > s.cfg.EdgeLines {
			top = lines[:s.cfg.EdgeLines]
		}
		bottom := lines
		if len(bottom) > s.cfg.EdgeLines {
			bottom = lines[len(lines)-s.cfg.EdgeLines:]
		}
		for _, line := range top {
			if s.isHeaderFooterCandidate(line) {
				headerCount[strings.TrimSpace(line)]++
			}
		}
		for _, line := range bottom {
			if s.isHeaderFooterCandidate(line) {
				footerCount[strings.TrimSpace(line)]++
			}
		}
	}

	threshold := int(float64(len(pageTexts)) * s.cfg.RepeatRatio)
	if threshold < 2 {
		threshold = 2
	}
	set := HeaderFooterSet{
		Headers: make(map[string]bool),
		Footers: make(map[string]bool),
	}
	for line, count := range headerCount {
		if count >= threshold {
			set.Headers[line] = true
		}
	}
	for line, count := range footerCount {
		if count >= threshold {
			set.Footers[line] = true
		}
	}
	return set
}

// StripHeadersFooters removes the detected repeating lines from one page.
func (s *CleaningService) StripHeadersFooters(text string, set HeaderFooterSet) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if set.Headers[stripped] || set.Footers[stripped] {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// ShouldSkipPage implements the whole-page skip policy: the first page is
// always a cover, and early pages dominated by navigation or contents layout
// carry no body text worth indexing.
func (s *CleaningService) ShouldSkipPage(text string, pageNumber int) (bool, string) {
	if pageNumber == 1 {
		return true, "cover"
	}
	if pageNumber <= 3 {
		upper := strings.ToUpper(text)
		if s.looksLikeNavigation(text) {
			return true, "nav_ui"
		}
		for _, kw := range layoutKeywords {
			if strings.Contains(upper, kw) {
				return true, "layout_keyword"
			}
		}
	}
	return false, ""
}

// dropGarbageLines removes lines that are clearly not content: bare page
// numbers, Roman numerals, 1-3 letter tab markers, and lines whose alphabetic
// tokens are all too short to mean anything.
func (s *CleaningService) dropGarbageLines(text string) string {
	kept := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		if isAllDigits(stripped) {
			continue
		}
		if romanNumeralRe.MatchString(stripped) {
			continue
		}
		if shortUppercaseRe.MatchString(stripped) {
			continue
		}
		tokens := alphaTokenRe.FindAllString(stripped, -1)
		if len(tokens) > 0 && allTokensShort(tokens) {
			continue
		}
		if s.looksLikeNavigation(stripped) {
			continue
		}
		kept = append(kept, stripped)
	}
	return strings.Join(kept, "\n")
}

// CleanPage runs the line-level garbage filter and the page-level quality
// gates. It returns the cleaned text, or "" when the page should be dropped.
func (s *CleaningService) CleanPage(text string) string {
	if text == "" {
		return ""
	}
	filtered := strings.TrimSpace(s.dropGarbageLines(text))
	if filtered == "" {
		return ""
	}
	if len([]rune(filtered)) < s.cfg.MinPageLen {
		return ""
	}
	alpha := 0
	total := 0
	for _, r := range filtered {
		total++
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	if float64(alpha)/float64(total+1) < s.cfg.MinAlphaRatio {
		return ""
	}
	return filtered
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func allTokensShort(tokens []string) bool {
	for _, t := range tokens {
		if len([]rune(t)) > 2 {
			return false
		}
	}
	return true
}
