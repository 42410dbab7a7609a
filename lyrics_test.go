package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanLyricsTitle(t *testing.T) {
	assert.Equal(t, "Karma Police", CleanLyricsTitle("Karma Police (Official Video)"))
	assert.Equal(t, "Karma Police", CleanLyricsTitle("Karma Police [Official Audio]"))
	assert.Equal(t, "Radiohead", CleanLyricsTitle("Radiohead - Topic"))
	assert.Equal(t, "Queen", CleanLyricsTitle("QueenVEVO"))
	assert.Equal(t, "Song", CleanLyricsTitle("Song (feat. Somebody)"))
	assert.Equal(t, "Song", CleanLyricsTitle("Song [ft. Somebody]"))
	assert.Equal(t, "Plain Title", CleanLyricsTitle("Plain Title"))
	assert.Equal(t, "Track", CleanLyricsTitle("Track (Lyrics) [4K]"))
}

func TestSplitLyricsQuery(t *testing.T) {
	artist, title := SplitLyricsQuery("Radiohead - Karma Police")
	assert.Equal(t, "Radiohead", artist)
	assert.Equal(t, "Karma Police", title)

	artist, title = SplitLyricsQuery("Daft Punk – Around the World")
	assert.Equal(t, "Daft Punk", artist)
	assert.Equal(t, "Around the World", title)

	artist, title = SplitLyricsQuery("just a song name")
	assert.Equal(t, "", artist)
	assert.Equal(t, "just a song name", title)

	artist, title = SplitLyricsQuery("Artist - Song (Official Video)")
	assert.Equal(t, "Artist", artist)
	assert.Equal(t, "Song", title)
}
