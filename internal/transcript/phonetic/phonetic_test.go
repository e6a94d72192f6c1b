package phonetic_test

import (
	"testing"

	"github.com/MrWong99/peridot-guide/internal/transcript/phonetic"
)

func TestMatcher_Match(t *testing.T) {
	t.Parallel()

	m := phonetic.New([]string{"Peridot", "Solana", "DeFi Llama", "Battlepass", " "})

	tests := []struct {
		phrase  string
		want    string
		matched bool
	}{
		{"perridot", "Peridot", true},
		{"Salona", "Solana", true},
		{"defi lama", "DeFi Llama", true},
		{"banana", "banana", false},
		{"does salona", "does salona", false},
		{"is defi lama", "is defi lama", false},
		{"", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.phrase, func(t *testing.T) {
			t.Parallel()
			got, conf, ok := m.Match(tc.phrase)
			if ok != tc.matched || got != tc.want {
				t.Fatalf("Match(%q) = %q, %v; want %q, %v", tc.phrase, got, ok, tc.want, tc.matched)
			}
			if ok && conf < 0.8 {
				t.Errorf("Match(%q) confidence = %f, want >= 0.8", tc.phrase, conf)
			}
			if !ok && conf != 0 {
				t.Errorf("Match(%q) confidence = %f, want 0", tc.phrase, conf)
			}
		})
	}
}

func TestMatcher_MaxWords(t *testing.T) {
	t.Parallel()

	if got := phonetic.New([]string{"Solana", "DeFi Llama"}).MaxWords(); got != 2 {
		t.Errorf("MaxWords = %d, want 2", got)
	}
	if got := phonetic.New(nil).MaxWords(); got != 0 {
		t.Errorf("MaxWords of empty vocabulary = %d, want 0", got)
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()

	strict := phonetic.New([]string{"Solana"}, phonetic.WithPhoneticThreshold(0.99), phonetic.WithFuzzyThreshold(0.99))
	if _, _, ok := strict.Match("salona"); ok {
		t.Error("strict thresholds should reject salona")
	}
}
