package listen

import "testing"

func TestCleanTranscript(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "turn on the lights", "turn on the lights"},
		{"surrounding whitespace", "  what time is it \n", "what time is it"},
		{"blank audio artifact", "[BLANK_AUDIO]", ""},
		{"blank audio lowercase", "[blank_audio]", ""},
		{"music artifact", "[Music] hello", "hello"},
		{"env annotation parens", "(keyboard clicking) open the browser", "open the browser"},
		{"env annotation brackets", "[laughter] that was funny", "that was funny"},
		{"timestamp prefix", "[00:00:00.000 --> 00:00:05.000]   what time is it?", "what time is it?"},
		{"newlines collapse", "search for\ngolang tutorials", "search for golang tutorials"},
		{"hallucinated thanks", "Thank you.", ""},
		{"hallucinated watching", "Thanks for watching!", ""},
		{"hallucinated you", "you", ""},
		{"hallucinated dots", "...", ""},
		{"real thanks kept", "thank you for the help", "thank you for the help"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanTranscript(tc.in); got != tc.want {
				t.Fatalf("CleanTranscript(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
