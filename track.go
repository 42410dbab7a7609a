package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Platforms
// ============================================================================

// Platform is one entry of the search cascade: a Lavalink search prefix plus
// display metadata for embeds.
type Platform struct {
	Prefix string
	Name   string
	Emoji  string
	Color  int
}

var platformTable = []Platform{
	{Prefix: "dzsearch", Name: "Deezer", Emoji: "🟠", Color: 0xFEAA2D},
	{Prefix: "scsearch", Name: "SoundCloud", Emoji: "🟧", Color: 0xFF5500},
	{Prefix: "bcsearch", Name: "Bandcamp", Emoji: "🔵", Color: 0x1DA0C3},
	{Prefix: "spsearch", Name: "Spotify", Emoji: "🟢", Color: 0x1DB954},
	{Prefix: "amsearch", Name: "Apple Music", Emoji: "🍎", Color: 0xFC3C44},
}

// UnknownPlatform tags direct URLs whose host matches no cascade entry.
var UnknownPlatform = Platform{Prefix: "link", Name: "Source", Emoji: "🔗", Color: 0x2F3136}

// YouTubePlatform is only used by the autoplay extension; it is never part of
// the cascade.
var YouTubePlatform = Platform{Prefix: "ytsearch", Name: "YouTube", Emoji: "🔴", Color: 0xFF0000}

func DefaultPlatformOrder() []string {
	order := make([]string, 0, len(platformTable))
	for _, p := range platformTable {
		order = append(order, p.Prefix)
	}
	return order
}

func LookupPlatform(prefix string) *Platform {
	for i := range platformTable {
		if platformTable[i].Prefix == prefix {
			return &platformTable[i]
		}
	}
	return nil
}

// CascadePlatforms maps configured prefixes back to full platform entries,
// preserving the configured order.
func CascadePlatforms(order []string) []Platform {
	out := make([]Platform, 0, len(order))
	for _, prefix := range order {
		if p := LookupPlatform(prefix); p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// DetectPlatform infers the originating platform from a URL's host.
func DetectPlatform(rawURL string) Platform {
	u := strings.ToLower(rawURL)
	switch {
	case strings.Contains(u, "deezer.com") || strings.Contains(u, "deezer.page.link"):
		return *LookupPlatform("dzsearch")
	case strings.Contains(u, "soundcloud.com"):
		return *LookupPlatform("scsearch")
	case strings.Contains(u, "bandcamp.com"):
		return *LookupPlatform("bcsearch")
	case strings.Contains(u, "spotify.com"):
		return *LookupPlatform("spsearch")
	case strings.Contains(u, "music.apple.com"):
		return *LookupPlatform("amsearch")
	case strings.Contains(u, "youtube.com") || strings.Contains(u, "youtu.be"):
		return YouTubePlatform
	}
	return UnknownPlatform
}

// MatchPlatformByName resolves a platform from a free-form source name, the
// way embeds classify tracks ("spotify", "yt", "apple music"...).
func MatchPlatformByName(name string) Platform {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "spotify"):
		return *LookupPlatform("spsearch")
	case strings.Contains(n, "soundcloud"):
		return *LookupPlatform("scsearch")
	case strings.Contains(n, "deezer"):
		return *LookupPlatform("dzsearch")
	case strings.Contains(n, "apple"):
		return *LookupPlatform("amsearch")
	case strings.Contains(n, "bandcamp"):
		return *LookupPlatform("bcsearch")
	case strings.Contains(n, "youtube") || strings.Contains(n, "yt"):
		return YouTubePlatform
	}
	return UnknownPlatform
}

func IsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ============================================================================
// Tracks
// ============================================================================

// Track is an opaque node playback handle plus descriptive metadata. The
// encoded blob is only meaningful to the audio node; Info is mutated by the
// resolution layer (reconciliation overlays, source tagging) and annotated
// with the requester before it enters a queue.
type Track struct {
	Encoded string    `json:"encoded"`
	Info    TrackInfo `json:"info"`

	Requester  snowflake.ID `json:"-"`
	IsAutoplay bool         `json:"-"`
}

type TrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
	ArtworkURL string `json:"artworkUrl"`
	ISRC       string `json:"isrc"`
	SourceName string `json:"sourceName"`
}

func (t *Track) Duration() time.Duration {
	return time.Duration(t.Info.Length) * time.Millisecond
}

// ============================================================================
// Load Results
// ============================================================================

// LoadResult is the audio node's answer to a resolve request. Data is decoded
// lazily because its shape depends on LoadType.
type LoadResult struct {
	LoadType string          `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

const (
	LoadTypeTrack    = "track"
	LoadTypePlaylist = "playlist"
	LoadTypeSearch   = "search"
	LoadTypeEmpty    = "empty"
	LoadTypeError    = "error"
)

type PlaylistData struct {
	Info   PlaylistInfo `json:"info"`
	Tracks []*Track     `json:"tracks"`
}

type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// Tracks extracts all playable tracks from the result, regardless of shape.
func (r *LoadResult) Tracks() []*Track {
	if r == nil || len(r.Data) == 0 {
		return nil
	}
	switch r.LoadType {
	case LoadTypeTrack:
		var t Track
		if err := json.Unmarshal(r.Data, &t); err != nil || t.Encoded == "" {
			return nil
		}
		return []*Track{&t}
	case LoadTypePlaylist:
		var pl PlaylistData
		if err := json.Unmarshal(r.Data, &pl); err != nil {
			return nil
		}
		return filterEncoded(pl.Tracks)
	case LoadTypeSearch:
		var ts []*Track
		if err := json.Unmarshal(r.Data, &ts); err != nil {
			return nil
		}
		return filterEncoded(ts)
	}
	return nil
}

// Playlist returns the playlist info when the result represents one.
func (r *LoadResult) Playlist() *PlaylistInfo {
	if r == nil || r.LoadType != LoadTypePlaylist || len(r.Data) == 0 {
		return nil
	}
	var pl PlaylistData
	if err := json.Unmarshal(r.Data, &pl); err != nil {
		return nil
	}
	return &pl.Info
}

func filterEncoded(ts []*Track) []*Track {
	out := ts[:0]
	for _, t := range ts {
		if t != nil && t.Encoded != "" {
			out = append(out, t)
		}
	}
	return out
}

// ============================================================================
// Search Results
// ============================================================================

type SearchOutcome int

const (
	OutcomeResolved SearchOutcome = iota
	OutcomeNotFound
	OutcomeError
)

// PlaylistDescriptor describes the playlist/album/top-tracks group a batch of
// tracks came from. TotalTracks reports the intended count, which may exceed
// the resolved count when entities were skipped.
type PlaylistDescriptor struct {
	Name        string
	URL         string
	ArtworkURL  string
	TotalTracks int
}

// SearchResult is the cascade's output and the only input the playback
// session accepts.
type SearchResult struct {
	Outcome  SearchOutcome
	Tracks   []*Track
	Playlist *PlaylistDescriptor
	Platform Platform
	Err      error
}

// ============================================================================
// Formatting
// ============================================================================

func FormatTrackDuration(d time.Duration) string {
	if d <= 0 {
		return "00:00"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func ProgressBar(position, length time.Duration, width int) string {
	if length <= 0 || width <= 0 {
		return ""
	}
	filled := int(float64(position) / float64(length) * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("▓", filled) + strings.Repeat("░", width-filled) + "]"
}

// Truncate shortens s to maxLen characters, counting runes so multi-byte
// titles are never cut mid-character.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
