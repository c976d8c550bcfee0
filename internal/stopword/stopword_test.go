package stopword

import "testing"

func TestDetector_Match(t *testing.T) {
	d := New("stop", 0)

	tests := []struct {
		name       string
		transcript string
		want       bool
	}{
		{"exact word", "stop", true},
		{"uppercase", "STOP", true},
		{"with punctuation", "Stop.", true},
		{"inside a sentence", "please stop now", true},
		{"doubled final consonant", "stopp", true},
		{"voiced final consonant", "stob", true},
		{"empty transcript", "", false},
		{"unrelated word", "continue", false},
		{"unrelated sentence", "tell me about the weather", false},
		{"short token is never fuzzy-matched", "so", false},
		{"plural of another word", "tops", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.Match(tc.transcript); got != tc.want {
				t.Errorf("Match(%q) = %v, want %v", tc.transcript, got, tc.want)
			}
		})
	}
}

func TestDetector_Defaults(t *testing.T) {
	d := New("", 0)
	if got := d.Word(); got != DefaultWord {
		t.Errorf("Word() = %q, want %q", got, DefaultWord)
	}
	if !d.Match("stop") {
		t.Error("default detector does not match its own keyword")
	}
}

func TestDetector_CustomWord(t *testing.T) {
	d := New("Silence", 0)
	if !d.Match("silence please") {
		t.Error("custom keyword not matched")
	}
	if d.Match("stop") {
		t.Error("default keyword matched with custom word configured")
	}
}
