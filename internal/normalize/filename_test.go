package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilename(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Result
	}{
		{
			name: "channel prefix and release noise",
			in:   "@channel - Movie.Name.2021.1080p.BluRay.x264-GROUP.mkv",
			want: Result{Title: "Movie Name", Year: "2021"},
		},
		{
			name: "underscores emoji and language",
			in:   "🔥Movie_Title_2019_Hindi_720p.mp4",
			want: Result{Title: "Movie Title", Year: "2019", Language: "Hindi"},
		},
		{
			name: "bracketed group prefix",
			in:   "[TeamX] Another Film (2015) [1080p x265 HEVC] ESub.mkv",
			want: Result{Title: "Another Film", Year: "2015"},
		},
		{
			name: "size and audio tokens",
			in:   "Big.Trip.2008.Tamil.HDRip.700MB.AAC2.0.mkv",
			want: Result{Title: "Big Trip", Year: "2008", Language: "Tamil"},
		},
		{
			name: "language after other noise",
			in:   "Some Story 2020 WEB-DL DDP5.1 telugu H.264",
			want: Result{Title: "Some Story", Year: "2020", Language: "Telugu"},
		},
		{
			name: "first year wins",
			in:   "Space Odyssey 2001 2010 BluRay",
			want: Result{Title: "Space Odyssey", Year: "2001"},
		},
		{
			name: "no year keeps cleaned text",
			in:   "@uploads - home_video_final.mp4",
			want: Result{Title: "home video final"},
		},
		{
			name: "accented letters survive",
			in:   "Amélie.2001.FRENCH.720p.mkv",
			want: Result{Title: "Amélie", Year: "2001", Language: "French"},
		},
		{
			name: "already normalized",
			in:   "Movie Name (2021) Hindi",
			want: Result{Title: "Movie Name", Year: "2021", Language: "Hindi"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Filename(tc.in))
		})
	}
}

func TestDisplay(t *testing.T) {
	require.Equal(t, "Movie Name (2021)", Result{Title: "Movie Name", Year: "2021"}.Display())
	require.Equal(t, "Movie Name (2021) Hindi", Result{Title: "Movie Name", Year: "2021", Language: "Hindi"}.Display())
	require.Equal(t, "clip", Result{Title: "clip"}.Display())
	require.Equal(t, "Movie Name (2021)", Title("@channel - Movie.Name.2021.1080p.BluRay.x264-GROUP.mkv"))
}

func TestFilenameIdempotent(t *testing.T) {
	inputs := []string{
		"@channel - Movie.Name.2021.1080p.BluRay.x264-GROUP.mkv",
		"🔥Movie_Title_2019_Hindi_720p.mp4",
		"[TeamX] Another Film (2015) [1080p x265 HEVC] ESub.mkv",
		"Mr. Nobody 2009 Extended 1080p.mkv",
		"random clip",
		"",
		"   ",
		"2012",
		"Clip -one -two.mp4",
		"Intro_-_Part_-A_-B.mp4",
		"-a -b -c",
	}
	for _, in := range inputs {
		first := Filename(in)
		require.Equal(t, first, Filename(first.Display()), "input %q", in)
	}
}

func TestFilenameStripsStackedGroupSuffixes(t *testing.T) {
	require.Equal(t, Result{Title: "Clip"}, Filename("Clip -one -two.mp4"))
	require.Equal(t, Result{Title: "Intro Part"}, Filename("Intro_-_Part_-A_-B.mp4"))
}

func TestFilenameNeverPanics(t *testing.T) {
	for _, in := range []string{"", "....", "[", "@", "@ -", "()", "[][]", "😀😀", "-GROUP"} {
		_ = Filename(in)
	}
}
