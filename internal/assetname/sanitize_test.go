package assetname

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Song!!", "My_Song"},
		{"  leading and trailing  ", "leading_and_trailing"},
		{"Artist - Title (Official Video)", "Artist_Title_Official_Video"},
		{"Café del Mar", "Cafe_del_Mar"},
		{"../../etc/passwd", "etc_passwd"},
		{"a;rm -rf /;b", "a_rm_rf_b"},
		{"!!!", ""},
		{"日本語", ""},
		{"", ""},
		{"track_01", "track_01"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitize_Truncates(t *testing.T) {
	got := Sanitize(strings.Repeat("ab ", 100))
	require.LessOrEqual(t, len(got), MaxBaseLen)
	require.False(t, strings.HasSuffix(got, "_"))
}

func TestBaseName_FallsBackToTimestamp(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	require.Equal(t, "audio_1700000000123", BaseName("???", now))
	require.Equal(t, "My_Song", BaseName("My Song!!", now))
}

func TestSplit(t *testing.T) {
	tests := []struct{ in, base, ext string }{
		{"My_Song.mp3", "My_Song", ".mp3"},
		{"My_Song", "My_Song", ""},
		{"a.b.wav", "a.b", ".wav"},
		{".hidden", ".hidden", ""},
	}
	for _, tt := range tests {
		base, ext := Split(tt.in)
		require.Equal(t, tt.base, base, tt.in)
		require.Equal(t, tt.ext, ext, tt.in)
	}
}
