// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package titles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultMarkers = NewMarkerSet(
	"1080p", "720p", "2160p", "480p", "remux", "hdtv", "dts", "ddp51", "ac3",
	"vc1", "x264", "h264", "hevc", "nf", "dsnp", "btn", "kenobi", "asmofuscated",
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		markers  MarkerSet
		expected string
	}{
		{"plain title", "The Long Way Round", nil, "the long way round"},
		{"apostrophe", "Bob's Burgers", nil, "bobs burgers"},
		{"curly apostrophe", "Bob’s Burgers", nil, "bobs burgers"},
		{"ampersand", "His & Hers", nil, "his and hers"},
		{"diacritics", "Shōgun", nil, "shogun"},
		{"punctuation", "CSI: Miami -- Pilot!", nil, "csi miami pilot"},
		{"number words", "Twenty-One Candles", nil, "21 candles"},
		{"separate numbers", "One Two Three", nil, "1 2 3"},
		{"scaled number", "Nine Hundred Thousand", nil, "900000"},
		{"part word", "The Finale, Part Two", nil, "the finale 2"},
		{"pt abbreviation", "The Finale Pt. 2", nil, "the finale 2"},
		{"end marker truncates", "Show S01E01 Title 1080p WEB", defaultMarkers, "show s01e01 title"},
		{"marker absent from set", "Title 1080p", nil, "title 1080p"},
		{"whitespace collapse", "  a \t b\n c ", nil, "a b c"},
		{"empty", "", defaultMarkers, ""},
		{"only punctuation", "...---", nil, ""},
		{"cyrillic", "Война и мир", nil, "война и мир"},
		{"greek with tonos", "Οδύσσεια", nil, "οδυσσεια"},
		{"cjk", "進撃の巨人", nil, "進撃の巨人"},
		{"cjk with punctuation", "進撃の巨人: 第1話", nil, "進撃の巨人 第1話"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Normalize(tt.input, tt.markers))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"The.Long.Way.Round.WEB-DL.1080p",
		"Part Part 2",
		"pt two x264",
		"x 264",
		"Twenty One Pilots & Friends",
		"Amélie’s Ærø Straße",
		"S01E01 - 1080p",
		"zero zero seven",
		"Война и мир",
		"進撃の巨人",
		"ninety nine hundred",
		"",
	}

	for _, in := range inputs {
		for _, markers := range []MarkerSet{nil, defaultMarkers} {
			once := Normalize(in, markers)
			assert.Equal(t, once, Normalize(once, markers), "input %q", in)
		}
	}
}

func TestContainsCompact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		haystack string
		needle   string
		want     bool
	}{
		{"show s01e01 thelongwayround web dl 1080p", "the long way round", true},
		{"show s01e01 the long way round web dl", "the long way round", true},
		{"show s01e01 copilot returns 1080p", "pilot", true},
		{"show s01e01 something else", "pilot", false},
		{"show s01e01", "", false},
		{"", "pilot", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ContainsCompact(tt.haystack, tt.needle), "%q in %q", tt.needle, tt.haystack)
	}
}

func TestCompactAndKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "theofficeus", Compact("The Office (US)"))
	assert.Equal(t, "series::theofficeus::S02E03", EpisodeKey("The Office (US)", 2, 3))
	assert.Equal(t, "S10E101", EpisodeCode(10, 101))
}

func TestExtractSceneTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		scene    string
		expected string
	}{
		{"title before quality", "The.Show.S01E02.The.Long.Way.Round.1080p.WEB-DL.x264-GRP", "The Long Way Round"},
		{"marker ends title", "Show.S03E04.Pilot.HDTV.x264-LOL", "Pilot"},
		{"only code and quality", "Show.S02E05.1080p.WEB.h264-GRP", ""},
		{"only code and group", "Show.S02E05-GRP", ""},
		{"uppercase noise before marker", "Show.S01E03.REPACK.720p.HDTV", ""},
		{"uppercase word inside title", "Show.S01E03.NYC.Stories.720p", "NYC Stories"},
		{"multi episode code", "Show.S01E01E02.Double.Trouble.720p", "Double Trouble"},
		{"no episode code", "Some.Random.Name", "Some Random Name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, ExtractSceneTitle(tt.scene, defaultMarkers))
		})
	}
}

func TestIsMissingTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		extracted string
		expected  string
		missing   bool
	}{
		{"", "Pilot", true},
		{"  ", "Pilot", true},
		{"2", "Two", false},
		{"2", "Pilot", true},
		{"Part 3", "Anything", true},
		{"Part3", "Anything", true},
		{"Pilot", "Pilot", false},
		{"Tale of Two Sister", "A Tale of Two Sisters", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.missing, IsMissingTitle(tt.extracted, tt.expected), "%q vs %q", tt.extracted, tt.expected)
	}
}

func TestSceneName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Show.S01E01.Pilot.720p", SceneName("/media/tv/Show/Season 1/Show.S01E01.Pilot.720p.mkv"))
	assert.Equal(t, "Show.S01E01.Pilot.720p", SceneName("Show.S01E01.Pilot.720p"))
	assert.True(t, HasEpisodeCode("Show.S01E01.Pilot"))
	assert.False(t, HasEpisodeCode("Show.Pilot"))
}

func TestParserParse(t *testing.T) {
	t.Parallel()

	p := NewParser()

	parsed := p.Parse("/media/tv/Breaking Bad/Season 1/Breaking.Bad.S01E02.Cats.in.the.Bag.720p.BluRay.x264-DEMAND.mkv")
	require.True(t, parsed.Valid())
	assert.Equal(t, 1, parsed.Season)
	assert.Equal(t, 2, parsed.Episode)
	assert.Equal(t, "S01E02", parsed.Code())
	assert.Equal(t, "series::breakingbad::S01E02", parsed.Key())
	assert.Equal(t, "Breaking.Bad.S01E02.Cats.in.the.Bag.720p.BluRay.x264-DEMAND", parsed.SceneName)

	again := p.Parse("Breaking.Bad.S01E02.Cats.in.the.Bag.720p.BluRay.x264-DEMAND")
	assert.Equal(t, parsed, again)

	assert.False(t, p.Parse("").Valid())
}

func TestParserSeasonZeroSpecials(t *testing.T) {
	t.Parallel()

	p := NewParser()

	special := p.Parse("/media/tv/Top Gear/Specials/Top.Gear.S00E05.Polar.Special.720p.HDTV.x264-FOV.mkv")
	require.True(t, special.Valid())
	assert.Equal(t, "Top Gear", special.SeriesTitle)
	assert.Zero(t, special.Season)
	assert.Equal(t, 5, special.Episode)
	assert.Equal(t, "S00E05", special.Code())
	assert.Equal(t, "series::topgear::S00E05", special.Key())

	// season 0 without an SxxEyy token is not an episode
	assert.False(t, ParsedEpisode{SeriesTitle: "Top Gear", Episode: 5}.Valid())
	assert.True(t, ParsedEpisode{SeriesTitle: "Top Gear", Episode: 5, HasCode: true}.Valid())
	assert.False(t, ParsedEpisode{SeriesTitle: "Top Gear", HasCode: true}.Valid())
}
