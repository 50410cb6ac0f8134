package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases and strips punctuation",
			in:   "Lakers WIN, again!",
			want: "lakers win again",
		},
		{
			name: "drops stopwords and short tokens",
			in:   "The quarterback is on a streak",
			want: "quarterback streak",
		},
		{
			name: "collapses whitespace",
			in:   "final   score \n\t 98  94",
			want: "final score",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, NormalizeText(tc.in))
		})
	}
}

func TestContentHash(t *testing.T) {
	t.Parallel()

	t.Run("stable across formatting differences", func(t *testing.T) {
		t.Parallel()
		a := ContentHash("Lakers Win Title", "The Lakers won the championship last night.")
		b := ContentHash("lakers win title!", "  The Lakers  won the CHAMPIONSHIP last night. ")
		require.Equal(t, a, b)
	})

	t.Run("changes with content", func(t *testing.T) {
		t.Parallel()
		a := ContentHash("Lakers Win Title", "The Lakers won the championship last night.")
		b := ContentHash("Celtics Win Title", "The Celtics won the championship last night.")
		require.NotEqual(t, a, b)
	})

	t.Run("hex encoded sha256", func(t *testing.T) {
		t.Parallel()
		require.Len(t, ContentHash("title", "body text goes here"), 64)
	})
}
