package normalize

import "testing"

func TestChannelID(t *testing.T) {
	tests := map[string]string{
		"Telefe.ar":          "TELEFE",
		"TyC.Sports.ar":      "TYC SPORTS",
		"Canal.9.ar":         "9",
		"CANAL.Trece.ar":     "TRECE",
		"A&E (Latam)":        "A AND E",
		"  espn_2.us  ":      "ESPN 2",
		"Disney's.Junior":    "DISNEYS JUNIOR",
		"Canal 26 HD":        "CANAL 26 HD",
		"América.TV.ar":      "AMERICA TV",
		"":                   "",
		"(solo anotacion)":   "",
		"Cine.Canal.Plus.ar": "CINE CANAL PLUS",
		"telefe.ar (backup)": "TELEFE",
		"Canal.Trece.ar(HD)": "TRECE",
	}
	for in, want := range tests {
		if got := ChannelID(in); got != want {
			t.Errorf("ChannelID(%q)=%q want %q", in, got, want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"AR: Telefe HD":          "TELEFE",
		"CANAL: Trece FHD":       "TRECE",
		"AR | TN":                "TN",
		"ESPNᴴᴰ (Backup)":        "ESPN",
		"Fox Sports ᶠᴴᴰ":         "FOX SPORTS",
		"HBO ꜰʜᴅ":                "HBO",
		"Discovery ˢᴰ":           "DISCOVERY",
		"A&E UHD":                "A AND E",
		"Ｃｉｎｅｍａｘ ＨＤ":             "CINEMAX",
		"Canal 9 (Buenos Aires)": "CANAL 9",
		"  TV   Pública  ":       "TV PUBLICA",
		"Telefe.ar":              "TELEFE AR",
		"HD":                     "",
		"":                       "",
	}
	for in, want := range tests {
		if got := DisplayName(in); got != want {
			t.Errorf("DisplayName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestDisplayName_idempotent(t *testing.T) {
	inputs := []string{
		"AR: Telefe HD",
		"ESPNᴴᴰ (Backup)",
		"ʜ'ᴅ Cinema",
		"HBO ꜰʜᴅ",
		"Ｃｉｎｅｍａｘ ＨＤ",
		"Fox'HD Sports!",
		"CANAL: A&E | Latam",
		"ÑUBLE tv",
		"Россия 1 HD",
	}
	for _, in := range inputs {
		once := DisplayName(in)
		if twice := DisplayName(once); twice != once {
			t.Errorf("DisplayName not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestFunctionsDiverge(t *testing.T) {
	// Same raw text, different conventions.
	if ChannelID("Canal.9.ar") == DisplayName("Canal.9.ar") {
		t.Fatal("ChannelID and DisplayName must not agree on catalog-style ids")
	}
	if ChannelID("ESPN HD") == DisplayName("ESPN HD") {
		t.Fatal("only DisplayName strips quality tags")
	}
}
