package graph

import (
	"context"

	"github.com/mccodeai/mmgamerag/models"
)

// Reader walks the Category -> Title -> Subtitle -> Text chain.
type Reader struct {
	store Store
}

func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

// SubtitleOfText returns the Subtitle owning a Text node, or nil.
func (r *Reader) SubtitleOfText(ctx context.Context, textID string) (*Node, error) {
	return r.first(r.store.GetRelated(ctx, models.KindText, textID, models.RelHasText, models.Incoming))
}

// TitleOfSubtitle returns the Title owning a Subtitle, or nil.
func (r *Reader) TitleOfSubtitle(ctx context.Context, subtitleID string) (*Node, error) {
	return r.first(r.store.GetRelated(ctx, models.KindSubtitle, subtitleID, models.RelHasSubtitle, models.Incoming))
}

// SubtitlesOfTitle returns every Subtitle of a Title in discovery order.
func (r *Reader) SubtitlesOfTitle(ctx context.Context, titleID string) ([]Node, error) {
	return r.store.GetRelated(ctx, models.KindTitle, titleID, models.RelHasSubtitle, models.Outgoing)
}

// TextOfSubtitle returns the Text of a Subtitle, or nil.
func (r *Reader) TextOfSubtitle(ctx context.Context, subtitleID string) (*Node, error) {
	return r.first(r.store.GetRelated(ctx, models.KindSubtitle, subtitleID, models.RelHasText, models.Outgoing))
}

// ImagesOfSubtitle returns the images attached to a Subtitle.
func (r *Reader) ImagesOfSubtitle(ctx context.Context, subtitleID string) ([]Node, error) {
	return r.store.GetRelated(ctx, models.KindSubtitle, subtitleID, models.RelHasImage, models.Outgoing)
}

func (r *Reader) first(nodes []Node, err error) (*Node, error) {
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return &nodes[0], nil
}
