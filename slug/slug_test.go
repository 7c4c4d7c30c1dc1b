package slug

import "testing"

func TestEncode(t *testing.T) {
	// WHAT: Encode lowercases, transliterates and hyphenates.
	// WHY: Slugs are used verbatim in links and must be stable.
	cases := []struct {
		mk, model string
		year      int
		want      string
	}{
		{"Toyota", "Camry", 2020, "toyota-camry-2020"},
		{"  Land Rover ", "Range Rover Sport", 2018, "land-rover-range-rover-sport-2018"},
		{"Лада", "Нива", 2021, "lada-niva-2021"},
		{"ГАЗ", "Волга", 1975, "gaz-volga-1975"},
		{"Škoda", "Octavia", 2019, "skoda-octavia-2019"},
		{"Citroën", "C4 — Picasso!!", 2012, "citroen-c4-picasso-2012"},
		{"Москвич", "Щука ёж", 1960, "moskvich-schuka-ezh-1960"},
		{"", "Model", 2000, "model-2000"},
		{"###", "", 2000, "2000"},
	}
	for _, tc := range cases {
		got := Encode(tc.mk, tc.model, tc.year)
		if got != tc.want {
			t.Errorf("Encode(%q, %q, %d): got %q, want %q", tc.mk, tc.model, tc.year, got, tc.want)
		}
	}
}

func TestPart_HardAndSoftSignsVanish(t *testing.T) {
	// WHAT: ъ and ь map to nothing.
	// WHY: They have no Latin equivalent in the table.
	if got := Part("Подъезд Мальчик"); got != "podezd-malchik" {
		t.Errorf("got %q", got)
	}
}

func TestDecode(t *testing.T) {
	// WHAT: Decode splits make, model and year.
	// WHY: Detail pages resolve vehicles from the slug in the URL.
	p, ok := Decode("land-rover-range-rover-2018")
	if !ok {
		t.Fatal("decode failed")
	}
	if p.Make != "land" || p.Model != "rover-range-rover" || p.Year != 2018 {
		t.Errorf("got %+v", p)
	}

	p, ok = Decode("  Toyota--Camry-2020 ")
	if !ok {
		t.Fatal("decode with empty segments failed")
	}
	if p.Make != "toyota" || p.Model != "camry" || p.Year != 2020 {
		t.Errorf("got %+v", p)
	}
}

func TestDecode_Rejects(t *testing.T) {
	// WHAT: Malformed slugs are rejected.
	// WHY: A missing model or year must not resolve to a vehicle.
	for _, s := range []string{
		"",
		"toyota-2020",
		"toyota-camry",
		"toyota-camry-20201",
		"toyota-camry-202",
		"-2020",
		"---2020",
	} {
		if p, ok := Decode(s); ok {
			t.Errorf("Decode(%q): expected failure, got %+v", s, p)
		}
	}
}

func TestRoundTrip_YearPreserved(t *testing.T) {
	// WHAT: Decode(Encode(...)) succeeds and keeps the year.
	// WHY: Encoding is lossy for names, never for the year.
	names := [][2]string{
		{"Toyota", "Camry"},
		{"Mercedes-Benz", "E-Class"},
		{"Лада", "Гранта"},
		{"Alfa Romeo", "Giulia Quadrifoglio"},
		{"Citroën", "DS"},
		{"BMW", "3"},
	}
	for _, n := range names {
		for year := 1900; year <= 2100; year += 17 {
			s := Encode(n[0], n[1], year)
			p, ok := Decode(s)
			if !ok {
				t.Fatalf("Decode(%q) failed", s)
			}
			if p.Year != year {
				t.Errorf("Decode(%q).Year: got %d, want %d", s, p.Year, year)
			}
		}
	}
}
