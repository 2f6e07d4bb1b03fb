package models

import "fmt"

// EntityKind enumerates the node kinds stored in the walkthrough graph.
type EntityKind string

const (
	KindCategory EntityKind = "Category"
	KindTitle    EntityKind = "Title"
	KindSubtitle EntityKind = "Subtitle"
	KindText     EntityKind = "txt"
	KindImage    EntityKind = "Img"
)

// Kinds lists every entity kind.
var Kinds = []EntityKind{KindCategory, KindTitle, KindSubtitle, KindText, KindImage}

// KeyProperty is the property that uniquely identifies an entity of this kind.
func (k EntityKind) KeyProperty() string {
	switch k {
	case KindCategory, KindTitle:
		return "name"
	case KindSubtitle, KindText:
		return "page_url"
	case KindImage:
		return "src"
	}
	return ""
}

func (k EntityKind) Valid() bool {
	return k.KeyProperty() != ""
}

// RelKind enumerates the graph relationships.
type RelKind string

const (
	RelHasTitle    RelKind = "HAS_TITLE"
	RelHasSubtitle RelKind = "HAS_SUBTITLE"
	RelHasText     RelKind = "HAS_TXT"
	RelHasImage    RelKind = "HAS_IMG"
)

// Endpoints returns the fixed source and target kinds of the relationship.
func (r RelKind) Endpoints() (from, to EntityKind, ok bool) {
	switch r {
	case RelHasTitle:
		return KindCategory, KindTitle, true
	case RelHasSubtitle:
		return KindTitle, KindSubtitle, true
	case RelHasText:
		return KindSubtitle, KindText, true
	case RelHasImage:
		return KindSubtitle, KindImage, true
	}
	return "", "", false
}

// Direction selects which side of a relationship a traversal follows.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	case Both:
		return "both"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Entity is implemented by every graph node struct.
type Entity interface {
	Kind() EntityKind
	Key() string
	Properties() map[string]string
}

// Category values.
const (
	CategoryGuide    = "guide"
	CategoryNews     = "news"
	CategoryDownload = "download"
	CategoryOther    = "other"
)

// Categories lists the fixed category names.
var Categories = []string{CategoryGuide, CategoryNews, CategoryDownload, CategoryOther}

type Category struct {
	Name string
}

func (c Category) Kind() EntityKind { return KindCategory }
func (c Category) Key() string      { return c.Name }
func (c Category) Properties() map[string]string {
	return map[string]string{"name": c.Name}
}

// Title groups the pages of one walkthrough series.
type Title struct {
	Name string
}

func (t Title) Kind() EntityKind { return KindTitle }
func (t Title) Key() string      { return t.Name }
func (t Title) Properties() map[string]string {
	return map[string]string{"name": t.Name}
}

// Subtitle is one page of a series.
type Subtitle struct {
	Name    string
	PageURL string
}

func (s Subtitle) Kind() EntityKind { return KindSubtitle }
func (s Subtitle) Key() string      { return s.PageURL }
func (s Subtitle) Properties() map[string]string {
	return map[string]string{"name": s.Name, "page_url": s.PageURL}
}

// TextBlock holds a page's content with inline image markers.
type TextBlock struct {
	PageURL  string
	Content  string
	Language string
}

func (t TextBlock) Kind() EntityKind { return KindText }
func (t TextBlock) Key() string      { return t.PageURL }
func (t TextBlock) Properties() map[string]string {
	props := map[string]string{"page_url": t.PageURL, "content": t.Content}
	if t.Language != "" {
		props["language"] = t.Language
	}
	return props
}

// ImageRecord is an image with the text surrounding it.
type ImageRecord struct {
	Src               string
	AggregatedContent string
	URL               string
}

func (i ImageRecord) Kind() EntityKind { return KindImage }
func (i ImageRecord) Key() string      { return i.Src }
func (i ImageRecord) Properties() map[string]string {
	return map[string]string{"src": i.Src, "aggregated_content": i.AggregatedContent, "url": i.URL}
}

func TitleFromProperties(props map[string]string) Title {
	return Title{Name: props["name"]}
}

func SubtitleFromProperties(props map[string]string) Subtitle {
	return Subtitle{Name: props["name"], PageURL: props["page_url"]}
}

func TextBlockFromProperties(props map[string]string) TextBlock {
	return TextBlock{PageURL: props["page_url"], Content: props["content"], Language: props["language"]}
}

func ImageRecordFromProperties(props map[string]string) ImageRecord {
	return ImageRecord{Src: props["src"], AggregatedContent: props["aggregated_content"], URL: props["url"]}
}
