package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/snapetech/epgbridge/internal/catalog"
)

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "epg.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Load(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("empty store err = %v, want ErrNoSnapshot", err)
	}

	at := time.Date(2026, 2, 14, 18, 0, 0, 0, time.UTC)
	ds := catalog.EmptyDataset(at)
	ds.Channels = []catalog.EPGChannel{
		{ID: "Telefe.ar", DisplayName: "Telefe", NormalizedID: "TELEFE"},
		{ID: "TyC.Sports.ar", DisplayName: "TyC Sports", NormalizedID: "TYC SPORTS"},
	}
	ds.Programmes["Telefe.ar"] = []catalog.Programme{
		{Start: "20260214180000 +0000", Stop: "20260214190000 +0000", ChannelID: "Telefe.ar", Title: "Noticias"},
		{Start: "20260214190000 +0000", Stop: "20260214200000 +0000", ChannelID: "Telefe.ar", Title: "Novela", Description: "Capítulo 1"},
	}
	ds.Raw = []string{`<channel id="Telefe.ar"/>`, `<channel id="TyC.Sports.ar"/>`}
	ds.Sources = []catalog.SourceSummary{{URL: "http://epg.example/ar.xml", Channels: 2, Programmes: 2}}

	if err := s.Save(ctx, ds); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got.FetchedAt.Equal(at) {
		t.Errorf("fetched_at = %v want %v", got.FetchedAt, at)
	}
	got.FetchedAt = ds.FetchedAt
	if diff := cmp.Diff(ds, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	// A second save replaces, not appends.
	next := catalog.EmptyDataset(at.Add(time.Hour))
	if err := s.Save(ctx, next); err != nil {
		t.Fatal(err)
	}
	got, err = s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Channels) != 0 || got.ProgrammeCount() != 0 || len(got.Raw) != 0 {
		t.Fatalf("old rows survived: %+v", got)
	}
}
