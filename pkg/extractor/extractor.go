// Package extractor derives image-context records from an extracted page.
package extractor

import (
	"strings"

	"github.com/mccodeai/mmgamerag/models"
)

// DefaultWindow caps the surrounding text kept on each side of an image, in runes.
const DefaultWindow = 200

// ImageContexts returns one record per image in page order, addressed to the
// page that owns the image. The text before
// an image runs back to the previous image and the text after runs forward to
// the next one, each capped at window runes nearest the image.
func ImageContexts(page *models.Page, window int) []models.ImageContext {
	if window <= 0 {
		window = DefaultWindow
	}

	var out []models.ImageContext
	for i, block := range page.Blocks {
		if block.Kind != models.BlockImage || block.Image == nil {
			continue
		}

		var before, after []string
		for j := i - 1; j >= 0 && page.Blocks[j].Kind == models.BlockText; j-- {
			before = append([]string{page.Blocks[j].Text}, before...)
		}
		for j := i + 1; j < len(page.Blocks) && page.Blocks[j].Kind == models.BlockText; j++ {
			after = append(after, page.Blocks[j].Text)
		}

		owner := block.Image.Link
		if owner == "" {
			owner = page.URL
		}
		out = append(out, models.ImageContext{
			URL:                owner,
			Src:                block.Image.Src,
			ContentBeforeImage: tail(strings.Join(before, "\n"), window),
			ImageDescription:   block.Image.Description(),
			ContentAfterImage:  head(strings.Join(after, "\n"), window),
		})
	}
	return out
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
