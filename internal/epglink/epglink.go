// Package epglink assigns EPG channel IDs to provider streams that lack one.
//
// A stream name is normalized with normalize.DisplayName and run through an
// ordered Pipeline of strategies. The first strategy that finds a channel
// wins. A stream that already carries an EPG ID is never touched.
package epglink

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/snapetech/epgbridge/internal/catalog"
	"github.com/snapetech/epgbridge/internal/normalize"
)

type MatchMethod string

const (
	MatchExisting MatchMethod = "existing"
	MatchExact    MatchMethod = "exact"
	MatchFuzzy    MatchMethod = "fuzzy"
)

// Strategy finds a channel for an already-normalized stream name.
type Strategy interface {
	Method() MatchMethod
	Match(name string, channels []catalog.EPGChannel) (catalog.EPGChannel, bool)
}

// Exact returns the first channel whose normalized ID equals the name.
type Exact struct{}

func (Exact) Method() MatchMethod { return MatchExact }

func (Exact) Match(name string, channels []catalog.EPGChannel) (catalog.EPGChannel, bool) {
	for _, ch := range channels {
		if ch.NormalizedID == name {
			return ch, true
		}
	}
	return catalog.EPGChannel{}, false
}

// LongestContainment considers channels whose normalized ID is at least
// MinLen runes and either contains the name or is contained in it. The
// longest ID wins; on equal length the earlier channel wins.
type LongestContainment struct {
	MinLen int
}

func (LongestContainment) Method() MatchMethod { return MatchFuzzy }

func (s LongestContainment) Match(name string, channels []catalog.EPGChannel) (catalog.EPGChannel, bool) {
	var best catalog.EPGChannel
	bestLen := 0
	for _, ch := range channels {
		n := utf8.RuneCountInString(ch.NormalizedID)
		if n < s.MinLen || n <= bestLen {
			continue
		}
		if strings.Contains(name, ch.NormalizedID) || strings.Contains(ch.NormalizedID, name) {
			best, bestLen = ch, n
		}
	}
	return best, bestLen > 0
}

// Pipeline runs strategies in order; the first hit short-circuits.
type Pipeline []Strategy

// DefaultPipeline is exact equality, then longest containment with a
// four-rune floor so short generic IDs never match by substring.
var DefaultPipeline = Pipeline{Exact{}, LongestContainment{MinLen: 4}}

// Match normalizes streamName and returns the matched channel and method.
func (p Pipeline) Match(streamName string, channels []catalog.EPGChannel) (catalog.EPGChannel, MatchMethod, bool) {
	name := normalize.DisplayName(streamName)
	if name == "" {
		return catalog.EPGChannel{}, "", false
	}
	for _, s := range p {
		if ch, ok := s.Match(name, channels); ok {
			return ch, s.Method(), true
		}
	}
	return catalog.EPGChannel{}, "", false
}

// Resolve returns the EPG ID for a stream: existingID when it is set,
// otherwise the ID of the channel DefaultPipeline finds, otherwise existingID.
func Resolve(streamName, existingID string, channels []catalog.EPGChannel) string {
	if strings.TrimSpace(existingID) != "" {
		return existingID
	}
	if ch, _, ok := DefaultPipeline.Match(streamName, channels); ok {
		return ch.ID
	}
	return existingID
}

type ApplyResult struct {
	Applied       int            `json:"applied"`
	AlreadyLinked int            `json:"already_linked"`
	Unmatched     int            `json:"unmatched"`
	Methods       map[string]int `json:"methods"`
}

// EnrichStreams fills EPGChannelID in place for streams that have none.
// Existing IDs are preserved and counted as already linked.
func EnrichStreams(streams []catalog.Stream, ds *catalog.EPGDataset) ApplyResult {
	res := ApplyResult{Methods: map[string]int{}}
	var channels []catalog.EPGChannel
	if ds != nil {
		channels = ds.Channels
	}
	for i := range streams {
		st := &streams[i]
		if strings.TrimSpace(st.EPGChannelID) != "" {
			res.AlreadyLinked++
			continue
		}
		ch, method, ok := DefaultPipeline.Match(st.Name, channels)
		if !ok {
			res.Unmatched++
			continue
		}
		st.EPGChannelID = ch.ID
		res.Applied++
		res.Methods[string(method)]++
	}
	return res
}

type StreamMatch struct {
	StreamID     string      `json:"stream_id"`
	Name         string      `json:"name"`
	Normalized   string      `json:"normalized_name,omitempty"`
	EPGChannelID string      `json:"epg_channel_id,omitempty"`
	Matched      bool        `json:"matched"`
	Method       MatchMethod `json:"method,omitempty"`
	DisplayName  string      `json:"epg_display_name,omitempty"`
	Reason       string      `json:"reason,omitempty"`
}

type Report struct {
	TotalStreams int            `json:"total_streams"`
	Matched      int            `json:"matched"`
	Unmatched    int            `json:"unmatched"`
	Methods      map[string]int `json:"methods"`
	Rows         []StreamMatch  `json:"rows"`
}

// MatchStreams reports what enrichment would do for each stream without
// modifying them. Rows are ordered matched first, then by name.
func MatchStreams(streams []catalog.Stream, ds *catalog.EPGDataset) Report {
	var channels []catalog.EPGChannel
	if ds != nil {
		channels = ds.Channels
	}
	rep := Report{
		TotalStreams: len(streams),
		Methods:      map[string]int{},
		Rows:         make([]StreamMatch, 0, len(streams)),
	}
	for _, st := range streams {
		row := StreamMatch{
			StreamID:   st.StreamID,
			Name:       st.Name,
			Normalized: normalize.DisplayName(st.Name),
		}
		switch {
		case strings.TrimSpace(st.EPGChannelID) != "":
			row.Matched, row.EPGChannelID, row.Method = true, st.EPGChannelID, MatchExisting
		case row.Normalized == "":
			row.Reason = "empty normalized name"
		default:
			if ch, method, ok := DefaultPipeline.Match(st.Name, channels); ok {
				row.Matched, row.EPGChannelID, row.Method, row.DisplayName = true, ch.ID, method, ch.DisplayName
			} else {
				row.Reason = "no channel match"
			}
		}
		if row.Matched {
			rep.Matched++
			rep.Methods[string(row.Method)]++
		}
		rep.Rows = append(rep.Rows, row)
	}
	rep.Unmatched = rep.TotalStreams - rep.Matched
	sort.SliceStable(rep.Rows, func(i, j int) bool {
		if rep.Rows[i].Matched != rep.Rows[j].Matched {
			return rep.Rows[i].Matched
		}
		return strings.ToLower(rep.Rows[i].Name) < strings.ToLower(rep.Rows[j].Name)
	})
	return rep
}

func (r Report) UnmatchedRows() []StreamMatch {
	out := make([]StreamMatch, 0, r.Unmatched)
	for _, row := range r.Rows {
		if !row.Matched {
			out = append(out, row)
		}
	}
	return out
}

func (r Report) SummaryString() string {
	methods := make([]string, 0, len(r.Methods))
	for k := range r.Methods {
		methods = append(methods, k)
	}
	sort.Strings(methods)
	var b strings.Builder
	fmt.Fprintf(&b, "EPG matches: %d/%d (%.1f%%)", r.Matched, r.TotalStreams, pct(r.Matched, r.TotalStreams))
	if len(methods) > 0 {
		b.WriteString(" [")
		for i, k := range methods {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%d", k, r.Methods[k])
		}
		b.WriteString("]")
	}
	return b.String()
}

func pct(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) * 100 / float64(b)
}
