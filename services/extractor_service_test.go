package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferMetadata(t *testing.T) {
	extractor := NewExtractorService(DefaultExtractionConfig())

	tests := []struct {
		name       string
		path       string
		sourceType string
		company    string
		year       string
		country    string
	}{
		{
			name:       "company and year from filename",
			path:       "data/companies/HanwhaE&C_sustainability_2023.pdf",
			sourceType: "companies",
			company:    "HanwhaE&C",
			year:       "2023",
			country:    "KR",
		},
		{
			name:       "no separator keeps whole stem as company",
			path:       "data/domestic/POSCO2022.pdf",
			sourceType: "domestic",
			company:    "POSCO2022",
			year:       "2022",
			country:    "KR",
		},
		{
			name:       "global folder maps to GLOBAL",
			path:       "data/global/Unilever_annual_report.pdf",
			sourceType: "global",
			company:    "Unilever",
			year:       "",
			country:    "GLOBAL",
		},
		{
			name:       "unknown folder has no country tag",
			path:       "data/misc/Foo_2021.pdf",
			sourceType: "misc",
			company:    "Foo",
			year:       "2021",
			country:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := extractor.inferMetadata(tt.path, tt.sourceType)
			assert.Equal(t, tt.company, doc.Company)
			assert.Equal(t, tt.year, doc.Year)
			assert.Equal(t, tt.country, doc.Country)
			assert.Equal(t, tt.sourceType, doc.SourceType)
		})
	}
}

func TestNeedsOCR(t *testing.T) {
	extractor := NewExtractorService(DefaultExtractionConfig())

	t.Run("empty text layer", func(t *testing.T) {
		assert.True(t, extractor.NeedsOCR("   \n  "))
	})

	t.Run("five alphabetic characters", func(t *testing.T) {
		assert.True(t, extractor.NeedsOCR("ab cd e 123 456"))
	})

	t.Run("just below threshold", func(t *testing.T) {
		assert.True(t, extractor.NeedsOCR(strings.Repeat("a", 14)))
	})

	t.Run("at threshold", func(t *testing.T) {
		assert.False(t, extractor.NeedsOCR(strings.Repeat("a", 15)))
	})

	t.Run("normal page", func(t *testing.T) {
		assert.False(t, extractor.NeedsOCR("A full paragraph of extracted text from the PDF layer."))
	})
}
