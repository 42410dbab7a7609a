package main

import (
	"encoding/json"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPlatform(t *testing.T) {
	assert.Equal(t, "Deezer", DetectPlatform("https://www.deezer.com/track/3135556").Name)
	assert.Equal(t, "Deezer", DetectPlatform("https://deezer.page.link/abc").Name)
	assert.Equal(t, "SoundCloud", DetectPlatform("https://soundcloud.com/artist/track").Name)
	assert.Equal(t, "Bandcamp", DetectPlatform("https://artist.bandcamp.com/track/song").Name)
	assert.Equal(t, "Spotify", DetectPlatform("https://open.spotify.com/track/abc").Name)
	assert.Equal(t, "Apple Music", DetectPlatform("https://music.apple.com/us/album/x/1").Name)
	assert.Equal(t, "YouTube", DetectPlatform("https://youtu.be/dQw4w9WgXcQ").Name)
	assert.Equal(t, UnknownPlatform.Name, DetectPlatform("https://example.com/file.mp3").Name)
}

func TestMatchPlatformByName(t *testing.T) {
	assert.Equal(t, "Spotify", MatchPlatformByName("spotify").Name)
	assert.Equal(t, "YouTube", MatchPlatformByName("ytmusic").Name)
	assert.Equal(t, "Apple Music", MatchPlatformByName("applemusic").Name)
	assert.Equal(t, UnknownPlatform.Name, MatchPlatformByName("http").Name)
}

func TestCascadePlatformsPreservesOrder(t *testing.T) {
	platforms := CascadePlatforms([]string{"spsearch", "dzsearch", "bogus"})
	require.Len(t, platforms, 2, "unknown prefixes are dropped")
	assert.Equal(t, "Spotify", platforms[0].Name)
	assert.Equal(t, "Deezer", platforms[1].Name)
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/track"))
	assert.True(t, IsURL("http://example.com"))
	assert.False(t, IsURL("never gonna give you up"))
	assert.False(t, IsURL("ftp://example.com/file"))
	assert.False(t, IsURL("https://"))
}

func TestLoadResultTracks(t *testing.T) {
	single := &LoadResult{
		LoadType: LoadTypeTrack,
		Data:     json.RawMessage(`{"encoded": "abc", "info": {"title": "Song"}}`),
	}
	tracks := single.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, "Song", tracks[0].Info.Title)

	playlist := &LoadResult{
		LoadType: LoadTypePlaylist,
		Data: json.RawMessage(`{
			"info": {"name": "Mix", "selectedTrack": -1},
			"tracks": [{"encoded": "a", "info": {}}, {"encoded": "", "info": {}}, {"encoded": "b", "info": {}}]
		}`),
	}
	assert.Len(t, playlist.Tracks(), 2, "tracks without an encoded blob are dropped")
	require.NotNil(t, playlist.Playlist())
	assert.Equal(t, "Mix", playlist.Playlist().Name)

	empty := &LoadResult{LoadType: LoadTypeEmpty, Data: json.RawMessage(`{}`)}
	assert.Empty(t, empty.Tracks())
	assert.Nil(t, empty.Playlist())

	loadError := &LoadResult{LoadType: LoadTypeError, Data: json.RawMessage(`{"message": "boom"}`)}
	assert.Empty(t, loadError.Tracks())
}

func TestFormatTrackDuration(t *testing.T) {
	assert.Equal(t, "00:00", FormatTrackDuration(0))
	assert.Equal(t, "00:05", FormatTrackDuration(5*time.Second))
	assert.Equal(t, "03:25", FormatTrackDuration(3*time.Minute+25*time.Second))
	assert.Equal(t, "01:02:03", FormatTrackDuration(time.Hour+2*time.Minute+3*time.Second))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[░░░░]", ProgressBar(0, time.Minute, 4))
	assert.Equal(t, "[▓▓░░]", ProgressBar(30*time.Second, time.Minute, 4))
	assert.Equal(t, "[▓▓▓▓]", ProgressBar(time.Minute, time.Minute, 4))
	assert.Equal(t, "[▓▓▓▓]", ProgressBar(2*time.Minute, time.Minute, 4), "overshoot is clamped")
	assert.Equal(t, "", ProgressBar(time.Second, 0, 4), "streams have no bar")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "exactly", Truncate("exactly", 7))
	assert.Equal(t, "long...", Truncate("long string here", 7))
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "夜に駆ける", Truncate("夜に駆ける", 5), "within the limit stays intact")
	assert.Equal(t, "夜に駆...", Truncate("夜に駆ける feat. 幾田りら", 6))
	assert.True(t, utf8.ValidString(Truncate("残酷な天使のテーゼ", 4)))
}
