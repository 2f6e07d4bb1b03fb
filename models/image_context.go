package models

import "strings"

// ImageContext is one record of the image-context side file: an image with
// the text that surrounds it on its page.
type ImageContext struct {
	URL                string `json:"url"`
	Src                string `json:"src"`
	ContentBeforeImage string `json:"content_before_image"`
	ImageDescription   string `json:"image_description"`
	ContentAfterImage  string `json:"content_after_image"`
}

// Aggregate renders the record the way it is stored on ImageRecord nodes.
func (c ImageContext) Aggregate() string {
	var sb strings.Builder
	sb.WriteString("content_before_image: ")
	sb.WriteString(c.ContentBeforeImage)
	sb.WriteString("\nimage_description: ")
	sb.WriteString(c.ImageDescription)
	sb.WriteString("\ncontent_after_image: ")
	sb.WriteString(c.ContentAfterImage)
	return sb.String()
}
