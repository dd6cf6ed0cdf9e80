package edgecases

import (
	"math/rand/v2"
	"strings"
	"testing"
)

func TestParseTypes(t *testing.T) {
	types, err := ParseTypes("midnight-crossing, non-bqml")
	if err != nil {
		t.Fatalf("ParseTypes: %v", err)
	}
	if len(types) != 2 || types[0] != MidnightCrossing || types[1] != NonBQML {
		t.Errorf("ParseTypes = %v", types)
	}
	if _, err := ParseTypes("special-chars"); err == nil {
		t.Error("expected an error for an unknown type")
	}
	if types, err := ParseTypes(""); err != nil || types != nil {
		t.Errorf("ParseTypes(\"\") = %v, %v; want nil, nil", types, err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"valid", Config{Percentage: 50, Types: []EdgeCaseType{NonBQML}}, false},
		{"negative", Config{Percentage: -1}, true},
		{"over 100", Config{Percentage: 101, Types: []EdgeCaseType{NonBQML}}, true},
		{"no types", Config{Percentage: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplicator_ShouldApply(t *testing.T) {
	config := Config{Percentage: 50, Types: []EdgeCaseType{NonBQML}}
	app := NewApplicator(config, rand.New(rand.NewPCG(42, 42)))

	applied := 0
	for i := 0; i < 100; i++ {
		if app.ShouldApply() {
			applied++
		}
	}
	// Should be roughly 50% (allow 30-70 range for randomness)
	if applied < 30 || applied > 70 {
		t.Errorf("50%% should apply ~50 times in 100, got %d", applied)
	}
}

func TestApplicator_PickDisabled(t *testing.T) {
	app := NewApplicator(Config{}, rand.New(rand.NewPCG(1, 1)))
	for i := 0; i < 10; i++ {
		if got := app.Pick(); got != "" {
			t.Fatalf("Pick() = %q with edge cases disabled", got)
		}
	}
}

func TestApplicator_MidnightTimes(t *testing.T) {
	app := NewApplicator(Config{Percentage: 100, Types: []EdgeCaseType{MidnightCrossing}}, rand.New(rand.NewPCG(7, 7)))
	inj, acq := app.MidnightTimes()
	if !strings.HasPrefix(inj, "23") || !strings.HasPrefix(acq, "00") {
		t.Errorf("MidnightTimes() = %q, %q; want 23xxxx and 00xxxx", inj, acq)
	}
}

func TestTruncateTime(t *testing.T) {
	tests := []struct{ in, want string }{
		{"080000", "80000"},
		{"093000.250000", "93000.250000"},
		{"000500", "500"},
		{"000000", "0"},
		{"120000", "120000"},
	}
	for _, tt := range tests {
		if got := TruncateTime(tt.in); got != tt.want {
			t.Errorf("TruncateTime(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSelectTagsToOmit(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	tags := SelectTagsToOmit(rng, 2)
	if len(tags) != 2 || tags[0] == tags[1] {
		t.Errorf("SelectTagsToOmit = %v, want two distinct tags", tags)
	}
	if all := SelectTagsToOmit(rng, 10); len(all) != len(OptionalTags) {
		t.Errorf("SelectTagsToOmit(10) returned %d tags, want %d", len(all), len(OptionalTags))
	}
}
