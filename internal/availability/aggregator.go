// Package availability projects a user's synced personal-calendar events onto
// a week grid of busy/free blocks.
package availability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
)

const dateLayout = "2006-01-02"

// Block is one rendered busy interval on a day. Private blocks keep their
// start/end and kind but carry no title when viewed by someone else.
type Block struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title,omitempty"`
	IsPrivate bool      `json:"is_private"`
}

// DayAvailability is one day of the grid with its blocks ordered by start.
type DayAvailability struct {
	Date   string  `json:"date"`
	Blocks []Block `json:"blocks"`
}

// WeekAvailability is seven consecutive days starting at WeekStart.
type WeekAvailability struct {
	UserID    string            `json:"user_id"`
	WeekStart string            `json:"week_start"`
	Days      []DayAvailability `json:"days"`
}

// Aggregator derives availability blocks from synced events and serves the
// materialized grid.
type Aggregator struct {
	syncedEvents *storage.SyncedEventRepository
	availability *storage.AvailabilityRepository
}

// NewAggregator creates an availability aggregator.
func NewAggregator(syncedEvents *storage.SyncedEventRepository, availability *storage.AvailabilityRepository) *Aggregator {
	return &Aggregator{syncedEvents: syncedEvents, availability: availability}
}

// Rebuild re-derives a user's availability blocks for [from, to] (whole days,
// inclusive) from their synced events and atomically replaces the stored
// range. Events spanning midnight are split into one block per day so every
// block belongs to exactly one date.
func (a *Aggregator) Rebuild(ctx context.Context, userID string, from, to time.Time) error {
	from = startOfDay(from)
	rangeEnd := startOfDay(to).AddDate(0, 0, 1)

	events, err := a.syncedEvents.ListForUserWindow(ctx, userID, from, rangeEnd)
	if err != nil {
		return fmt.Errorf("loading synced events: %w", err)
	}

	var blocks []models.AvailabilityBlock
	for i := range events {
		ev := &events[i]
		kind := blockKind(ev.Status)
		if kind == "" {
			continue
		}
		for _, seg := range splitByDay(ev.StartsAt, ev.EndsAt, from, rangeEnd) {
			title := ev.Title
			block := models.AvailabilityBlock{
				UserID:        userID,
				Date:          seg.start.Format(dateLayout),
				StartsAt:      seg.start,
				EndsAt:        seg.end,
				Kind:          kind,
				IsPrivate:     ev.IsPrivate,
				SourceEventID: &ev.ID,
			}
			if title != "" {
				block.Title = &title
			}
			blocks = append(blocks, block)
		}
	}

	err = a.availability.ReplaceRange(ctx, userID,
		from.Format(dateLayout), to.Format(dateLayout), blocks)
	if err != nil {
		return fmt.Errorf("materializing availability: %w", err)
	}
	return nil
}

// Week serves seven days of availability starting at weekStart. When the
// viewer is not the calendar's owner, private blocks are stripped of their
// title but keep their interval and kind.
func (a *Aggregator) Week(ctx context.Context, userID, viewerID string, weekStart time.Time) (*WeekAvailability, error) {
	start := startOfDay(weekStart)
	end := start.AddDate(0, 0, 6)

	stored, err := a.availability.ListRange(ctx, userID,
		start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("loading availability: %w", err)
	}

	byDate := make(map[string][]Block)
	for i := range stored {
		b := &stored[i]
		block := Block{
			Start:     b.StartsAt,
			End:       b.EndsAt,
			Kind:      b.Kind,
			IsPrivate: b.IsPrivate,
		}
		if b.Title != nil && (!b.IsPrivate || viewerID == userID) {
			block.Title = *b.Title
		}
		byDate[b.Date] = append(byDate[b.Date], block)
	}

	week := &WeekAvailability{
		UserID:    userID,
		WeekStart: start.Format(dateLayout),
		Days:      make([]DayAvailability, 0, 7),
	}
	for i := 0; i < 7; i++ {
		date := start.AddDate(0, 0, i).Format(dateLayout)
		blocks := byDate[date]
		sort.Slice(blocks, func(x, y int) bool { return blocks[x].Start.Before(blocks[y].Start) })
		if blocks == nil {
			blocks = []Block{}
		}
		week.Days = append(week.Days, DayAvailability{Date: date, Blocks: blocks})
	}
	return week, nil
}

// blockKind maps a provider event status onto an availability kind. Cancelled
// and free events produce no block.
func blockKind(status string) string {
	switch strings.ToLower(status) {
	case "cancelled", "canceled", "free":
		return ""
	case "tentative":
		return models.BlockTentative
	case "oof", "out_of_office", "outofoffice":
		return models.BlockOutOfOffice
	default:
		return models.BlockBusy
	}
}

type segment struct {
	start, end time.Time
}

// splitByDay clips [start, end) to the window and splits it at local
// midnights.
func splitByDay(start, end, windowStart, windowEnd time.Time) []segment {
	if start.Before(windowStart) {
		start = windowStart
	}
	if end.After(windowEnd) {
		end = windowEnd
	}
	if !start.Before(end) {
		return nil
	}

	var segments []segment
	for cursor := start; cursor.Before(end); {
		dayEnd := startOfDay(cursor).AddDate(0, 0, 1)
		segEnd := dayEnd
		if end.Before(segEnd) {
			segEnd = end
		}
		segments = append(segments, segment{start: cursor, end: segEnd})
		cursor = dayEnd
	}
	return segments
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
