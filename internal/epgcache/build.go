package epgcache

import (
	"strings"
	"time"

	"github.com/snapetech/epgbridge/internal/catalog"
	"github.com/snapetech/epgbridge/internal/epgsource"
	"github.com/snapetech/epgbridge/internal/guide"
	"github.com/snapetech/epgbridge/internal/normalize"
	"github.com/snapetech/epgbridge/internal/safeurl"
	"github.com/snapetech/epgbridge/internal/xmltv"
)

// Build merges parsed documents into one dataset. Channels are deduplicated
// by normalized ID, first seen wins. A programme whose channel reference
// normalizes to a kept channel is filed under that channel's ID. A programme
// from a later document that starts at the same instant as one an earlier
// document filed on that channel is dropped; programmes without a parsable
// start are always kept.
func Build(docs []epgsource.Document, fetchedAt time.Time) *catalog.EPGDataset {
	ds := catalog.EmptyDataset(fetchedAt)
	kept := map[string]string{} // normalized ID -> kept channel ID
	starts := map[string]map[int64]int{} // channel -> start epoch -> document index

	for di, doc := range docs {
		parsed := xmltv.Parse(doc.Text)
		ds.Sources = append(ds.Sources, catalog.SourceSummary{
			URL:        safeurl.Redact(doc.Source.URL),
			Channels:   len(parsed.Channels),
			Programmes: len(parsed.Programmes),
		})
		ds.Raw = append(ds.Raw, parsed.Blocks...)

		for _, rc := range parsed.Channels {
			id := strings.TrimSpace(rc.ID)
			nid := normalize.ChannelID(id)
			if nid == "" {
				continue
			}
			if _, dup := kept[nid]; dup {
				continue
			}
			kept[nid] = id
			ds.Channels = append(ds.Channels, catalog.EPGChannel{
				ID:           id,
				DisplayName:  strings.TrimSpace(rc.DisplayName),
				NormalizedID: nid,
			})
		}

		for _, rp := range parsed.Programmes {
			ch := strings.TrimSpace(rp.Channel)
			if ch == "" {
				continue
			}
			if id, ok := kept[normalize.ChannelID(ch)]; ok {
				ch = id
			}
			if at := guide.ParseTimestamp(rp.Start); at != 0 {
				seen := starts[ch]
				if seen == nil {
					seen = map[int64]int{}
					starts[ch] = seen
				}
				if owner, ok := seen[at]; ok && owner != di {
					continue
				}
				seen[at] = di
			}
			ds.Programmes[ch] = append(ds.Programmes[ch], catalog.Programme{
				Start:       rp.Start,
				Stop:        rp.Stop,
				ChannelID:   ch,
				Title:       rp.Title,
				Description: rp.Description,
			})
		}
	}
	return ds
}
