package upstream

import (
	"context"

	"github.com/flexcoop/archivist/internal/showmatch"
)

// ShowLister adapts Client to showmatch.ShowLister, converting the wire
// Show type into the matcher's scoring-only view.
type ShowLister struct {
	Client *Client
}

// ListShows satisfies showmatch.ShowLister.
func (l ShowLister) ListShows(ctx context.Context) ([]showmatch.Show, error) {
	shows, err := l.Client.GetShows(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]showmatch.Show, 0, len(shows))
	for _, s := range shows {
		out = append(out, showmatch.Show{
			ID:          s.ID,
			Title:       s.Title,
			Description: s.Description,
			Date:        s.Date,
			DurationS:   s.DurationS,
		})
	}
	return out, nil
}
