// Package detector classifies pages: language of the text and the site
// category a page URL belongs to.
package detector

import (
	"strings"

	"github.com/pemistahl/lingua-go"

	"github.com/mccodeai/mmgamerag/models"
)

// DefaultLanguages are the candidates considered by NewLanguageDetector
// when none are given.
var DefaultLanguages = []lingua.Language{
	lingua.Chinese,
	lingua.English,
	lingua.Japanese,
	lingua.Korean,
}

// LanguageDetector wraps a lingua detector restricted to a few languages.
type LanguageDetector struct {
	detector lingua.LanguageDetector
}

func NewLanguageDetector(languages ...lingua.Language) *LanguageDetector {
	if len(languages) < 2 {
		languages = DefaultLanguages
	}
	return &LanguageDetector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			Build(),
	}
}

// DetectLanguage returns the lower-case ISO 639-1 code of text, or "" when
// the text is too short or ambiguous.
func (d *LanguageDetector) DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

// categoryRules are checked in order against the lower-cased URL.
var categoryRules = []struct {
	fragments []string
	category  string
}{
	{[]string{"handbook", "guide", "gl/"}, models.CategoryGuide},
	{[]string{"down"}, models.CategoryDownload},
	{[]string{"news", "tech"}, models.CategoryNews},
}

// DetermineCategory maps a page URL, or its dump file name, to one of the
// fixed categories.
func DetermineCategory(pageURL string) string {
	lower := strings.ToLower(pageURL)
	for _, rule := range categoryRules {
		for _, f := range rule.fragments {
			if strings.Contains(lower, f) {
				return rule.category
			}
		}
	}
	return models.CategoryOther
}
