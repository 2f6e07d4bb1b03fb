package models

import (
	"fmt"
	"html"
	"strings"
)

// BlockKind distinguishes text fragments from images inside a page.
type BlockKind string

const (
	BlockText  BlockKind = "text"
	BlockImage BlockKind = "img"
)

// Page represents the extracted content of a single walkthrough page.
// Blocks are kept in document order.
type Page struct {
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	Language string  `json:"language,omitempty"`
	Blocks   []Block `json:"blocks"`
}

// Block is either a text fragment or an image reference.
type Block struct {
	Kind  BlockKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Image *ImageRef `json:"image,omitempty"`
}

// ImageRef describes an image found inside the content container.
// Src is absolute and normalized to full resolution. Link is the page the
// image belongs to.
type ImageRef struct {
	Src    string `json:"src"`
	Alt    string `json:"alt,omitempty"`
	Title  string `json:"title,omitempty"`
	Width  string `json:"width,omitempty"`
	Height string `json:"height,omitempty"`
	Link   string `json:"link,omitempty"`
}

// TitleLinePrefix starts the first line of every serialized page.
const TitleLinePrefix = "Title: "

// Markup renders the image as an inline marker that survives in TextBlock content.
func (i ImageRef) Markup() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<img src="%s"`, html.EscapeString(i.Src))
	if i.Alt != "" {
		fmt.Fprintf(&sb, ` alt="%s"`, html.EscapeString(i.Alt))
	}
	if i.Title != "" {
		fmt.Fprintf(&sb, ` title="%s"`, html.EscapeString(i.Title))
	}
	if i.Width != "" {
		fmt.Fprintf(&sb, ` width="%s"`, html.EscapeString(i.Width))
	}
	if i.Height != "" {
		fmt.Fprintf(&sb, ` height="%s"`, html.EscapeString(i.Height))
	}
	if i.Link != "" {
		fmt.Fprintf(&sb, ` data-link="%s"`, html.EscapeString(i.Link))
	}
	sb.WriteString(">")
	return sb.String()
}

// Description is the alt text, or the title when alt is empty.
func (i ImageRef) Description() string {
	if strings.TrimSpace(i.Alt) != "" {
		return strings.TrimSpace(i.Alt)
	}
	return strings.TrimSpace(i.Title)
}

// PlainText concatenates the text fragments, one per line.
func (p *Page) PlainText() string {
	var sb strings.Builder
	sb.WriteString(TitleLinePrefix + p.Title + "\n")
	for _, block := range p.Blocks {
		if block.Kind != BlockText {
			continue
		}
		sb.WriteString(block.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// TextWithImages is PlainText with an image marker in place of every image.
func (p *Page) TextWithImages() string {
	var sb strings.Builder
	sb.WriteString(TitleLinePrefix + p.Title + "\n")
	sb.WriteString(p.Body())
	return sb.String()
}

// Body is the interleaved content without the title line. Text is escaped
// so only image markers read back as tags.
func (p *Page) Body() string {
	var sb strings.Builder
	for _, block := range p.Blocks {
		switch block.Kind {
		case BlockImage:
			if block.Image == nil {
				continue
			}
			sb.WriteString(block.Image.Markup())
		default:
			sb.WriteString(html.EscapeString(block.Text))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Images returns the image references in document order.
func (p *Page) Images() []ImageRef {
	var out []ImageRef
	for _, block := range p.Blocks {
		if block.Kind == BlockImage && block.Image != nil {
			out = append(out, *block.Image)
		}
	}
	return out
}

// TextCount is the number of text fragments.
func (p *Page) TextCount() int {
	n := 0
	for _, block := range p.Blocks {
		if block.Kind == BlockText {
			n++
		}
	}
	return n
}
