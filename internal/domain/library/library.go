package library

import (
	"novelnest/internal/domain/story"
	"sort"
	"time"
)

// Summary is the listing entry of a stored story.
type Summary struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Date   time.Time      `json:"date"`
	Scenes int            `json:"scenes"`
	Image  story.AssetRef `json:"image"`
}

// Library represents the stories available on this server
type Library struct {
	Stories     []Summary `json:"stories"`
	CreatorMode bool      `json:"creatorMode"`
}

func NewSummary(s *story.Story) Summary {
	sum := Summary{
		ID:     s.ID,
		Title:  s.DisplayTitle(),
		Date:   s.CreatedAt,
		Scenes: len(s.Scenes),
	}
	if len(s.Scenes) > 0 {
		sum.Image = s.Scenes[0].Image
	}
	return sum
}

// SortNewestFirst orders summaries by creation date, most recent first.
func (l *Library) SortNewestFirst() {
	sort.SliceStable(l.Stories, func(i, j int) bool {
		return l.Stories[i].Date.After(l.Stories[j].Date)
	})
}
