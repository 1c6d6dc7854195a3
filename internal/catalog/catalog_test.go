package catalog

import "testing"

func TestStreamURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		channel Channel
		want    string
	}{
		{FIP, "https://icecast.radiofrance.fr/fip-midfi.mp3"},
		{Jazz, "https://icecast.radiofrance.fr/fipjazz-midfi.mp3"},
		{HipHop, "https://icecast.radiofrance.fr/fiphiphop-midfi.mp3"},
		{Nouveautes, "https://icecast.radiofrance.fr/fipnouveautes-midfi.mp3"},
	}
	for _, tt := range tests {
		t.Run(string(tt.channel), func(t *testing.T) {
			t.Parallel()
			if got := StreamURL(tt.channel); got != tt.want {
				t.Errorf("StreamURL(%s) = %q, want %q", tt.channel, got, tt.want)
			}
		})
	}
}

func TestStationName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		channel Channel
		want    string
	}{
		{FIP, "FIP"},
		{Rock, "FIP_ROCK"},
		{HipHop, "FIP_HIP_HOP"},
	}
	for _, tt := range tests {
		if got := StationName(tt.channel); got != tt.want {
			t.Errorf("StationName(%s) = %q, want %q", tt.channel, got, tt.want)
		}
	}
}

// TestDescribe_Pure verifies every channel yields the same non-empty values on
// repeated calls.
func TestDescribe_Pure(t *testing.T) {
	t.Parallel()

	for _, c := range All() {
		a, b := Describe(c), Describe(c)
		if a != b {
			t.Errorf("Describe(%s) not deterministic: %+v vs %+v", c, a, b)
		}
		if a.StreamURL == "" || a.StationName == "" {
			t.Errorf("Describe(%s) has empty fields: %+v", c, a)
		}
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	t.Parallel()

	all := All()
	all[0] = "BROKEN"
	if All()[0] != FIP {
		t.Fatal("All() exposed internal slice")
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Channel
		wantErr bool
	}{
		{"jazz", Jazz, false},
		{" JAZZ ", Jazz, false},
		{"hip hop", HipHop, false},
		{"hip-hop", HipHop, false},
		{"polka", "", true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    Channel
		wantErr bool
	}{
		{"", FIP, false},
		{"groove", Groove, false},
		{"electr", Electro, false},
		{"nouveaute", Nouveautes, false},
		{"zzzzzz", "", true},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("Resolve(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	got := Suggest("ro", 3)
	if len(got) != 3 {
		t.Fatalf("Suggest returned %d channels, want 3", len(got))
	}
	if got[0] != Rock {
		t.Errorf("Suggest(\"ro\")[0] = %q, want %q", got[0], Rock)
	}

	if all := Suggest("", 0); len(all) != len(All()) {
		t.Errorf("Suggest(\"\", 0) returned %d channels, want %d", len(all), len(All()))
	}
}
