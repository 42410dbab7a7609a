package main

import (
	"context"
	"encoding/base64"
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
)

// ============================================================================
// Spotify
// ============================================================================

const (
	MsgSpotifyNoCreds      = "spotify credentials are not configured"
	MsgSpotifyTokenFail    = "failed to obtain spotify token: %w"
	MsgSpotifyStatusError  = "spotify returned status %d"
	MsgSpotifyRequestFail  = "spotify request failed: %w"
	MsgSpotifyBadRef       = "unsupported spotify reference: %s"
	MsgSpotifyResolved     = "Resolved %s %q (%d entities)"
	MsgSpotifyTokenRefresh = "Access token refreshed"

	spotifyAPIBase   = "https://api.spotify.com/v1"
	spotifyTokenURL  = "https://accounts.spotify.com/api/token"
	spotifyTrackCap  = 50
	spotifyTopMarket = "US"
)

// ErrProviderUnavailable reports that the metadata provider cannot be used,
// either because credentials are missing or its API is failing.
var ErrProviderUnavailable = errors.New(MsgSpotifyNoCreds)

var spotifyURLPattern = regexp.MustCompile(`spotify\.com/(?:intl-[a-z]+/)?(track|artist|album|playlist)/([A-Za-z0-9]+)`)

// ExtractSpotifyRef parses an open.spotify.com URL into its entity kind and ID.
func ExtractSpotifyRef(rawURL string) (kind string, id string, ok bool) {
	m := spotifyURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// SpotifyEntity is one catalog entry reduced to the fields the reconciliation
// step needs.
type SpotifyEntity struct {
	Title      string
	Artist     string
	ArtworkURL string
	URL        string
	DurationMs int64
}

// SpotifyResolved is a resolved catalog reference: a single track yields one
// entity, collection kinds yield up to spotifyTrackCap entities.
type SpotifyResolved struct {
	Kind       string
	Name       string
	URL        string
	ArtworkURL string
	Entities   []SpotifyEntity
}

type SpotifyClient struct {
	clientID     string
	clientSecret string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewSpotifyClient(cfg *Config) *SpotifyClient {
	return &SpotifyClient{
		clientID:     cfg.SpotifyClientID,
		clientSecret: cfg.SpotifyClientSecret,
	}
}

func (s *SpotifyClient) Available() bool {
	return s != nil && s.clientID != "" && s.clientSecret != ""
}

// accessToken returns a cached client-credentials token, refreshing it ahead
// of expiry.
func (s *SpotifyClient) accessToken(ctx context.Context) (string, error) {
	if !s.Available() {
		return "", ErrProviderUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiresAt) {
		return s.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, spotifyTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf(MsgSpotifyTokenFail, err)
	}
	creds := base64.StdEncoding.EncodeToString([]byte(s.clientID + ":" + s.clientSecret))
	req.Header.Set("Authorization", "Basic "+creds)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := HttpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf(MsgSpotifyTokenFail, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf(MsgSpotifyTokenFail, fmt.Errorf(MsgSpotifyStatusError, resp.StatusCode))
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf(MsgSpotifyTokenFail, err)
	}

	s.token = body.AccessToken
	// refresh 5 minutes before the advertised expiry
	s.expiresAt = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - 5*time.Minute)
	LogSpotify(MsgSpotifyTokenRefresh)
	return s.token, nil
}

func (s *SpotifyClient) get(ctx context.Context, path string, out any) error {
	token, err := s.accessToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spotifyAPIBase+path, nil)
	if err != nil {
		return fmt.Errorf(MsgSpotifyRequestFail, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := HttpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, fmt.Errorf(MsgSpotifyStatusError, resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type spotifyImage struct {
	URL string `json:"url"`
}

type spotifyArtistRef struct {
	Name string `json:"name"`
}

type spotifyTrack struct {
	Name       string             `json:"name"`
	DurationMs int64              `json:"duration_ms"`
	IsLocal    bool               `json:"is_local"`
	Artists    []spotifyArtistRef `json:"artists"`
	Album      struct {
		Name   string         `json:"name"`
		Images []spotifyImage `json:"images"`
	} `json:"album"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

func (t *spotifyTrack) entity() SpotifyEntity {
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	artwork := ""
	if len(t.Album.Images) > 0 {
		artwork = t.Album.Images[0].URL
	}
	return SpotifyEntity{
		Title:      t.Name,
		Artist:     artist,
		ArtworkURL: artwork,
		URL:        t.ExternalURLs.Spotify,
		DurationMs: t.DurationMs,
	}
}

// Resolve fetches the catalog reference behind a spotify.com URL and returns
// the entities to reconcile. Artist references resolve to the artist's top
// tracks; playlists are capped and local tracks dropped.
func (s *SpotifyClient) Resolve(ctx context.Context, rawURL string) (*SpotifyResolved, error) {
	kind, id, ok := ExtractSpotifyRef(rawURL)
	if !ok {
		return nil, fmt.Errorf(MsgSpotifyBadRef, rawURL)
	}

	switch kind {
	case "track":
		return s.resolveTrack(ctx, id)
	case "artist":
		return s.resolveArtist(ctx, id)
	case "album":
		return s.resolveAlbum(ctx, id)
	case "playlist":
		return s.resolvePlaylist(ctx, id)
	}
	return nil, fmt.Errorf(MsgSpotifyBadRef, rawURL)
}

func (s *SpotifyClient) resolveTrack(ctx context.Context, id string) (*SpotifyResolved, error) {
	var t spotifyTrack
	if err := s.get(ctx, "/tracks/"+id, &t); err != nil {
		return nil, err
	}
	e := t.entity()
	resolved := &SpotifyResolved{
		Kind:       "track",
		Name:       e.Title,
		URL:        e.URL,
		ArtworkURL: e.ArtworkURL,
		Entities:   []SpotifyEntity{e},
	}
	LogSpotify(MsgSpotifyResolved, resolved.Kind, resolved.Name, len(resolved.Entities))
	return resolved, nil
}

func (s *SpotifyClient) resolveArtist(ctx context.Context, id string) (*SpotifyResolved, error) {
	var artist struct {
		Name         string         `json:"name"`
		Images       []spotifyImage `json:"images"`
		ExternalURLs struct {
			Spotify string `json:"spotify"`
		} `json:"external_urls"`
	}
	if err := s.get(ctx, "/artists/"+id, &artist); err != nil {
		return nil, err
	}

	var top struct {
		Tracks []spotifyTrack `json:"tracks"`
	}
	if err := s.get(ctx, "/artists/"+id+"/top-tracks?market="+spotifyTopMarket, &top); err != nil {
		return nil, err
	}

	resolved := &SpotifyResolved{
		Kind: "artist",
		Name: artist.Name,
		URL:  artist.ExternalURLs.Spotify,
	}
	if len(artist.Images) > 0 {
		resolved.ArtworkURL = artist.Images[0].URL
	}
	for _, t := range top.Tracks {
		resolved.Entities = append(resolved.Entities, t.entity())
	}
	LogSpotify(MsgSpotifyResolved, resolved.Kind, resolved.Name, len(resolved.Entities))
	return resolved, nil
}

func (s *SpotifyClient) resolveAlbum(ctx context.Context, id string) (*SpotifyResolved, error) {
	var album struct {
		Name         string         `json:"name"`
		Images       []spotifyImage `json:"images"`
		ExternalURLs struct {
			Spotify string `json:"spotify"`
		} `json:"external_urls"`
		Tracks struct {
			Items []spotifyTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := s.get(ctx, "/albums/"+id, &album); err != nil {
		return nil, err
	}

	resolved := &SpotifyResolved{
		Kind: "album",
		Name: album.Name,
		URL:  album.ExternalURLs.Spotify,
	}
	if len(album.Images) > 0 {
		resolved.ArtworkURL = album.Images[0].URL
	}
	for _, t := range album.Tracks.Items {
		if t.IsLocal {
			continue
		}
		e := t.entity()
		// album track objects carry no album images of their own
		if e.ArtworkURL == "" {
			e.ArtworkURL = resolved.ArtworkURL
		}
		resolved.Entities = append(resolved.Entities, e)
		if len(resolved.Entities) >= spotifyTrackCap {
			break
		}
	}
	LogSpotify(MsgSpotifyResolved, resolved.Kind, resolved.Name, len(resolved.Entities))
	return resolved, nil
}

func (s *SpotifyClient) resolvePlaylist(ctx context.Context, id string) (*SpotifyResolved, error) {
	var playlist struct {
		Name         string         `json:"name"`
		Images       []spotifyImage `json:"images"`
		ExternalURLs struct {
			Spotify string `json:"spotify"`
		} `json:"external_urls"`
		Tracks struct {
			Items []struct {
				Track *spotifyTrack `json:"track"`
			} `json:"items"`
		} `json:"tracks"`
	}
	if err := s.get(ctx, "/playlists/"+id, &playlist); err != nil {
		return nil, err
	}

	resolved := &SpotifyResolved{
		Kind: "playlist",
		Name: playlist.Name,
		URL:  playlist.ExternalURLs.Spotify,
	}
	if len(resolved.URL) == 0 {
		resolved.URL = "https://open.spotify.com/playlist/" + id
	}
	if len(playlist.Images) > 0 {
		resolved.ArtworkURL = playlist.Images[0].URL
	}
	for _, item := range playlist.Tracks.Items {
		if item.Track == nil || item.Track.IsLocal {
			continue
		}
		resolved.Entities = append(resolved.Entities, item.Track.entity())
		if len(resolved.Entities) >= spotifyTrackCap {
			break
		}
	}
	LogSpotify(MsgSpotifyResolved, resolved.Kind, resolved.Name, len(resolved.Entities))
	return resolved, nil
}
