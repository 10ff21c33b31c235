package catalog

import (
	"time"
)

// EPGChannel is one guide channel. NormalizedID is unique within a dataset;
// when several sources declare the same normalized ID the first one seen wins.
type EPGChannel struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	NormalizedID string `json:"normalized_id"`
}

// Programme is one scheduled airing. Start and Stop are raw XMLTV timestamps
// (e.g. "20260214180000 +0000"); see guide.ParseTimestamp.
type Programme struct {
	Start       string `json:"start"`
	Stop        string `json:"stop"`
	ChannelID   string `json:"channel_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// SourceSummary records what one EPG source contributed to a dataset.
type SourceSummary struct {
	URL        string `json:"url"`
	Channels   int    `json:"channels"`
	Programmes int    `json:"programmes"`
}

// EPGDataset is one generation of merged guide data. It is built once by
// epgcache and never mutated after publication; a refresh replaces it whole.
type EPGDataset struct {
	Channels   []EPGChannel           `json:"channels"`
	Programmes map[string][]Programme `json:"programmes"`
	// Raw holds every fetched source's <channel>/<programme> blocks verbatim,
	// in source order, for the merged XMLTV passthrough.
	Raw       []string        `json:"raw,omitempty"`
	Sources   []SourceSummary `json:"sources,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// EmptyDataset returns a dataset with no channels fetched at t.
func EmptyDataset(t time.Time) *EPGDataset {
	return &EPGDataset{
		Channels:   []EPGChannel{},
		Programmes: map[string][]Programme{},
		FetchedAt:  t,
	}
}

// ProgrammesFor returns the programmes filed under channelID (nil when none).
func (d *EPGDataset) ProgrammesFor(channelID string) []Programme {
	if d == nil || channelID == "" {
		return nil
	}
	return d.Programmes[channelID]
}

// ProgrammeCount is the total number of programmes across all channels.
func (d *EPGDataset) ProgrammeCount() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, progs := range d.Programmes {
		n += len(progs)
	}
	return n
}
