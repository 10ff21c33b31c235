// Package guide selects the programmes to show for a channel and renders them
// as Xtream short-EPG listings.
package guide

import (
	"encoding/base64"
	"sort"
	"strconv"
	"time"

	"github.com/snapetech/epgbridge/internal/catalog"
)

const (
	// Lookback keeps programmes that ended up to two hours ago.
	Lookback int64 = 2 * 3600
	// Lookahead keeps programmes starting within the next twelve hours.
	Lookahead int64 = 12 * 3600

	listingTimeFormat = "2006-01-02 15:04:05"
)

// Slot is a programme with parsed times.
type Slot struct {
	Programme  catalog.Programme
	Start      int64
	Stop       int64
	NowPlaying bool
}

// SelectWindow returns the programmes overlapping [now-2h, now+12h), sorted
// by start time.
func SelectWindow(progs []catalog.Programme, now int64) []Slot {
	out := make([]Slot, 0, len(progs))
	for _, p := range progs {
		s := slot(p, now)
		if s.Stop > now-Lookback && s.Start < now+Lookahead {
			out = append(out, s)
		}
	}
	sortSlots(out)
	return out
}

func slot(p catalog.Programme, now int64) Slot {
	start, stop := ParseTimestamp(p.Start), ParseTimestamp(p.Stop)
	return Slot{
		Programme:  p,
		Start:      start,
		Stop:       stop,
		NowPlaying: start <= now && now < stop,
	}
}

func sortSlots(s []Slot) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Start < s[j].Start })
}

// Listing is one entry of get_short_epg / get_simple_data_table.
type Listing struct {
	ID             string `json:"id"`
	EPGID          string `json:"epg_id"`
	Title          string `json:"title"`
	Lang           string `json:"lang"`
	Start          string `json:"start"`
	End            string `json:"end"`
	Description    string `json:"description"`
	ChannelID      string `json:"channel_id"`
	StartTimestamp string `json:"start_timestamp"`
	StopTimestamp  string `json:"stop_timestamp"`
	NowPlaying     int    `json:"now_playing"`
	HasArchive     int    `json:"has_archive"`
}

// ShortEPG renders the window around now. limit <= 0 returns every slot.
func ShortEPG(progs []catalog.Programme, epgID string, now int64, limit int, lang string) []Listing {
	slots := SelectWindow(progs, now)
	if limit > 0 && len(slots) > limit {
		slots = slots[:limit]
	}
	return listings(slots, epgID, lang)
}

// FullTable renders every programme of the channel, sorted by start.
func FullTable(progs []catalog.Programme, epgID string, now int64, lang string) []Listing {
	slots := make([]Slot, 0, len(progs))
	for _, p := range progs {
		slots = append(slots, slot(p, now))
	}
	sortSlots(slots)
	return listings(slots, epgID, lang)
}

func listings(slots []Slot, epgID, lang string) []Listing {
	out := make([]Listing, 0, len(slots))
	for i, s := range slots {
		l := Listing{
			ID:             strconv.Itoa(i),
			EPGID:          epgID,
			Title:          base64.StdEncoding.EncodeToString([]byte(s.Programme.Title)),
			Lang:           lang,
			Start:          formatTime(s.Start),
			End:            formatTime(s.Stop),
			Description:    base64.StdEncoding.EncodeToString([]byte(s.Programme.Description)),
			ChannelID:      s.Programme.ChannelID,
			StartTimestamp: strconv.FormatInt(s.Start, 10),
			StopTimestamp:  strconv.FormatInt(s.Stop, 10),
		}
		if s.NowPlaying {
			l.NowPlaying = 1
		}
		out = append(out, l)
	}
	return out
}

func formatTime(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format(listingTimeFormat)
}
