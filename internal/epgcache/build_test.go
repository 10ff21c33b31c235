package epgcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/epgbridge/internal/epgsource"
)

func TestBuild_mergesSources(t *testing.T) {
	first := `<tv>
<channel id="Telefe.ar"><display-name>Telefe</display-name></channel>
<channel id="Canal.Trece.ar"><display-name>El Trece</display-name></channel>
<programme start="20260214180000 +0000" stop="20260214190000 +0000" channel="Telefe.ar"><title>Noticias</title></programme>
</tv>`
	// Same channel under a different country-suffixed ID, plus an overlap.
	second := `<tv>
<channel id="telefe.uy"><display-name>Telefe Uruguay</display-name></channel>
<channel id="TyC.Sports.ar"><display-name>TyC Sports</display-name></channel>
<programme start="20260214180000 +0000" stop="20260214190000 +0000" channel="telefe.uy"><title>Noticias (dup)</title></programme>
<programme start="20260214190000 +0000" stop="20260214200000 +0000" channel="telefe.uy"><title>Novela</title></programme>
<programme start="20260214190000 +0000" stop="20260214200000 +0000" channel="Orphan.ar"><title>Sin canal</title></programme>
<programme start="20260214190000 +0000" stop="20260214200000 +0000" channel=""><title>Nada</title></programme>
</tv>`
	at := time.Unix(1771092000, 0)
	ds := Build([]epgsource.Document{
		{Source: epgsource.Source{URL: "http://a.example/ar.xml"}, Text: first},
		{Source: epgsource.Source{URL: "http://b.example/uy.xml?username=u&password=p"}, Text: second},
	}, at)

	require.Len(t, ds.Channels, 3)
	assert.Equal(t, "Telefe.ar", ds.Channels[0].ID)
	assert.Equal(t, "TELEFE", ds.Channels[0].NormalizedID)
	assert.Equal(t, "TRECE", ds.Channels[1].NormalizedID)
	assert.Equal(t, "TyC.Sports.ar", ds.Channels[2].ID)

	telefe := ds.ProgrammesFor("Telefe.ar")
	require.Len(t, telefe, 2, "overlap dropped, second-source programme remapped")
	assert.Equal(t, "Noticias", telefe[0].Title)
	assert.Equal(t, "Novela", telefe[1].Title)
	assert.Equal(t, "Telefe.ar", telefe[1].ChannelID)
	assert.Empty(t, ds.ProgrammesFor("telefe.uy"))
	assert.Len(t, ds.ProgrammesFor("Orphan.ar"), 1)
	assert.Equal(t, 3, ds.ProgrammeCount())

	assert.Len(t, ds.Raw, 9, "raw passthrough keeps every block, duplicates included")
	require.Len(t, ds.Sources, 2)
	assert.Equal(t, 4, ds.Sources[1].Programmes)
	assert.NotContains(t, ds.Sources[1].URL, "password=p")
	assert.Equal(t, at, ds.FetchedAt)
}

func TestBuild_duplicateStarts(t *testing.T) {
	first := `<channel id="Telefe.ar"/>
<programme channel="Telefe.ar"><title>Sin horario 1</title></programme>
<programme channel="Telefe.ar"><title>Sin horario 2</title></programme>
<programme start="20260214180000 +0000" channel="Telefe.ar"><title>A</title></programme>
<programme start="20260214180000 +0000" channel="Telefe.ar"><title>A bis</title></programme>`
	second := `<programme start="20260214150000 -0300" channel="Telefe.ar"><title>A otra zona</title></programme>
<programme channel="Telefe.ar"><title>Sin horario 3</title></programme>`
	ds := Build([]epgsource.Document{{Text: first}, {Text: second}}, time.Unix(0, 0))

	var titles []string
	for _, p := range ds.ProgrammesFor("Telefe.ar") {
		titles = append(titles, p.Title)
	}
	assert.Equal(t, []string{"Sin horario 1", "Sin horario 2", "A", "A bis", "Sin horario 3"}, titles)
}

func TestBuild_noDocuments(t *testing.T) {
	ds := Build(nil, time.Unix(5, 0))
	assert.NotNil(t, ds.Channels)
	assert.Empty(t, ds.Channels)
	assert.Equal(t, 0, ds.ProgrammeCount())
}
