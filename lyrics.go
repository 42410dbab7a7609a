package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Lyrics (Musixmatch)
// ============================================================================

const (
	MsgLyricsNotFound    = "No lyrics found for %q."
	MsgLyricsTokenFail   = "token request failed: %w"
	MsgLyricsStatusError = "lyrics api returned status %d"
	MsgLyricsSearching   = "Searching %q by %q"
	MsgLyricsFound       = "Found %q by %q (%d lines)"
	MsgLyricsTokenOK     = "User token obtained"

	musixmatchAppID    = "web-desktop-app-v1.0"
	musixmatchBase     = "https://apic-desktop.musixmatch.com/ws/1.1"
	musixmatchTokenTTL = 55 * time.Second
	musixmatchUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"
)

// ErrLyricsNotFound reports that no lyrics matched the search.
var ErrLyricsNotFound = errors.New("no lyrics found")

var (
	lyricsCleanPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s*\([^)]*(?:official|lyrics?|video|audio|mv|visualizer|color\s*coded|hd|4k|prod\.)[^)]*\)`),
		regexp.MustCompile(`(?i)\s*\[[^\]]*(?:official|lyrics?|video|audio|mv|visualizer|color\s*coded|hd|4k|prod\.)[^\]]*\]`),
		regexp.MustCompile(`(?i)\s*-\s*Topic$`),
		regexp.MustCompile(`(?i)VEVO$`),
	}
	lyricsFeatPattern = regexp.MustCompile(`(?i)\s*[([]\s*(?:ft\.?|feat\.?|featuring)\s+[^)\]]+[)\]]`)
	lyricsSeparators  = []string{" - ", " – ", " — "}
)

// CleanLyricsTitle strips video-platform noise ("official video", "-Topic",
// featured-artist tags) from a track title before searching.
func CleanLyricsTitle(title string) string {
	for _, p := range lyricsCleanPatterns {
		title = p.ReplaceAllString(title, "")
	}
	title = lyricsFeatPattern.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

// SplitLyricsQuery splits a free-text query on an "artist - title" separator
// when one is present.
func SplitLyricsQuery(query string) (artist, title string) {
	cleaned := CleanLyricsTitle(query)
	for _, sep := range lyricsSeparators {
		if idx := strings.Index(cleaned, sep); idx > 0 && idx < len(cleaned)-len(sep) {
			a := strings.TrimSpace(cleaned[:idx])
			t := strings.TrimSpace(cleaned[idx+len(sep):])
			if a != "" && t != "" {
				return a, t
			}
		}
	}
	return "", cleaned
}

// Lyrics is a resolved lyrics result.
type Lyrics struct {
	Artist string
	Title  string
	Album  string
	Body   string
}

type lyricsClient struct {
	guid string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	cookies   map[string]string
}

var (
	lyricsOnce     sync.Once
	lyricsInstance *lyricsClient
)

func getLyricsClient() *lyricsClient {
	lyricsOnce.Do(func() {
		lyricsInstance = &lyricsClient{
			guid:    uuid.NewString(),
			cookies: make(map[string]string),
		}
	})
	return lyricsInstance
}

// FetchLyrics searches the catalog for the best track match and returns its
// lyrics body.
func FetchLyrics(ctx context.Context, artist, title string) (*Lyrics, error) {
	return getLyricsClient().fetch(ctx, artist, title)
}

func (c *lyricsClient) fetch(ctx context.Context, artist, title string) (*Lyrics, error) {
	artist = CleanLyricsTitle(artist)
	title = CleanLyricsTitle(title)
	if title == "" {
		return nil, ErrLyricsNotFound
	}

	LogLyrics(MsgLyricsSearching, title, artist)

	track, err := c.search(ctx, artist, title)
	if err != nil {
		return nil, err
	}
	if track == nil && artist != "" {
		// retry without the artist, channel names rarely match catalog artists
		track, err = c.search(ctx, "", title)
		if err != nil {
			return nil, err
		}
	}
	if track == nil {
		return nil, ErrLyricsNotFound
	}

	body, err := c.lyricsBody(ctx, track.TrackID)
	if err != nil {
		return nil, err
	}
	if body == "" {
		return nil, ErrLyricsNotFound
	}

	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "*") {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, ErrLyricsNotFound
	}

	LogLyrics(MsgLyricsFound, track.TrackName, track.ArtistName, len(lines))
	return &Lyrics{
		Artist: track.ArtistName,
		Title:  track.TrackName,
		Album:  track.AlbumName,
		Body:   strings.Join(lines, "\n"),
	}, nil
}

// ============================================================================
// Musixmatch Desktop API
// ============================================================================

type musixmatchTrack struct {
	TrackID     int64   `json:"track_id"`
	TrackName   string  `json:"track_name"`
	ArtistName  string  `json:"artist_name"`
	AlbumName   string  `json:"album_name"`
	TrackRating float64 `json:"track_rating"`
}

type musixmatchResponse struct {
	Message struct {
		Header struct {
			StatusCode int    `json:"status_code"`
			Hint       string `json:"hint"`
		} `json:"header"`
		Body json.RawMessage `json:"body"`
	} `json:"message"`
}

// userToken returns a cached anonymous desktop-app token.
func (c *lyricsClient) userToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiresAt) {
		return c.token, nil
	}
	return c.refreshTokenLocked(ctx)
}

func (c *lyricsClient) refreshTokenLocked(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		musixmatchBase+"/token.get?app_id="+musixmatchAppID, nil)
	if err != nil {
		return "", fmt.Errorf(MsgLyricsTokenFail, err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en")
	req.Header.Set("User-Agent", musixmatchUA)
	req.Header.Set("Cookie", "AWSELB=unknown; x-mxm-user-id=undefined; x-mxm-token-guid=undefined; mxm-encrypted-token=")

	resp, err := HttpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf(MsgLyricsTokenFail, err)
	}
	defer resp.Body.Close()

	c.storeCookiesLocked(resp)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf(MsgLyricsTokenFail, fmt.Errorf(MsgLyricsStatusError, resp.StatusCode))
	}

	var parsed musixmatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf(MsgLyricsTokenFail, err)
	}
	var body struct {
		UserToken string `json:"user_token"`
	}
	if err := json.Unmarshal(parsed.Message.Body, &body); err != nil || body.UserToken == "" {
		hint := parsed.Message.Header.Hint
		if hint == "" {
			hint = "no token in response"
		}
		return "", fmt.Errorf(MsgLyricsTokenFail, errors.New(hint))
	}

	c.token = body.UserToken
	c.expiresAt = time.Now().Add(musixmatchTokenTTL)
	LogLyrics(MsgLyricsTokenOK)
	return c.token, nil
}

func (c *lyricsClient) storeCookiesLocked(resp *http.Response) {
	for _, cookie := range resp.Cookies() {
		c.cookies[cookie.Name] = cookie.Value
	}
}

func (c *lyricsClient) cookieHeader() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	pairs := make([]string, 0, len(c.cookies))
	for k, v := range c.cookies {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, "; ")
}

// call performs one API request, retrying once with a fresh token on an auth
// failure.
func (c *lyricsClient) call(ctx context.Context, endpoint string, params url.Values, out any) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.userToken(ctx)
		if err != nil {
			return err
		}

		q := url.Values{}
		for k, vs := range params {
			q[k] = vs
		}
		q.Set("app_id", musixmatchAppID)
		q.Set("usertoken", token)
		q.Set("guid", c.guid)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			musixmatchBase+"/"+endpoint+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", musixmatchUA)
		if cookies := c.cookieHeader(); cookies != "" {
			req.Header.Set("Cookie", cookies)
		}

		resp, err := HttpClient.Do(req)
		if err != nil {
			return err
		}

		var parsed musixmatchResponse
		decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed)
		c.mu.Lock()
		c.storeCookiesLocked(resp)
		c.mu.Unlock()
		resp.Body.Close()

		apiStatus := parsed.Message.Header.StatusCode
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
			apiStatus == 401 || apiStatus == 403 {
			c.mu.Lock()
			c.token = ""
			c.cookies = make(map[string]string)
			c.mu.Unlock()
			continue
		}

		if decodeErr != nil {
			return decodeErr
		}
		if resp.StatusCode != http.StatusOK || apiStatus != 200 {
			return fmt.Errorf(MsgLyricsStatusError, resp.StatusCode)
		}
		return json.Unmarshal(parsed.Message.Body, out)
	}
	return ErrLyricsNotFound
}

// search returns the best-scoring catalog track for the given artist/title.
func (c *lyricsClient) search(ctx context.Context, artist, title string) (*musixmatchTrack, error) {
	params := url.Values{
		"q_track":        {title},
		"page_size":      {"5"},
		"page":           {"1"},
		"s_track_rating": {"desc"},
	}
	if artist != "" {
		params.Set("q_artist", artist)
	}

	var body struct {
		TrackList []struct {
			Track musixmatchTrack `json:"track"`
		} `json:"track_list"`
	}
	if err := c.call(ctx, "track.search", params, &body); err != nil {
		return nil, err
	}
	if len(body.TrackList) == 0 {
		return nil, nil
	}

	wantTitle := strings.ToLower(title)
	wantArtist := strings.ToLower(artist)

	var best *musixmatchTrack
	bestScore := -1.0
	for i := range body.TrackList {
		t := &body.TrackList[i].Track
		score := t.TrackRating / 10

		gotTitle := strings.ToLower(t.TrackName)
		switch {
		case gotTitle == wantTitle:
			score += 100
		case strings.Contains(gotTitle, wantTitle):
			score += 50
		case strings.Contains(wantTitle, gotTitle):
			score += 30
		}

		if wantArtist != "" {
			gotArtist := strings.ToLower(t.ArtistName)
			switch {
			case gotArtist == wantArtist:
				score += 100
			case strings.Contains(gotArtist, wantArtist):
				score += 50
			case strings.Contains(wantArtist, gotArtist):
				score += 30
			}
		}

		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	return best, nil
}

func (c *lyricsClient) lyricsBody(ctx context.Context, trackID int64) (string, error) {
	var body struct {
		Lyrics struct {
			LyricsBody string `json:"lyrics_body"`
		} `json:"lyrics"`
	}
	if err := c.call(ctx, "track.lyrics.get", url.Values{"track_id": {fmt.Sprint(trackID)}}, &body); err != nil {
		return "", err
	}
	return body.Lyrics.LyricsBody, nil
}
