package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		title string
		want  string
	}{
		{"empty", "", ""},
		{"whitespace only", "   \t ", ""},
		{"lowercases", "Goat Horns", "goat horns"},
		{"strips punctuation", "Weltanschauung (Mirovozzrenie)", "weltanschauung mirovozzrenie"},
		{"collapses whitespace", "To  the   Gates of Blasphemous  Fire", "to the gates of blasphemous fire"},
		{"apostrophes and dashes", "Lunar Poetry - Knjaz' Varggoth", "lunar poetry knjaz varggoth"},
		{"brackets and marks", "[NeChrist]!?", "nechrist"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, NormalizeTitle(tc.title))
		})
	}
}
