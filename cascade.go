package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"
)

// ============================================================================
// Search Cascade
// ============================================================================

const (
	MsgSearchExhausted       = "no platform returned results"
	MsgSearchPlatformFail    = "Platform %s failed for %q: %v"
	MsgSearchPlatformEmpty   = "Platform %s returned nothing for %q"
	MsgSearchResolved        = "Resolved %q via %s"
	MsgSearchDirectFail      = "Direct load failed for %q: %v"
	MsgSearchEntitySkipped   = "Skipping unresolvable entity %q by %q"
	MsgSearchPartialPlaylist = "Resolved %d/%d entities of %s %q"
)

// ErrSearchExhausted reports that every platform in the cascade was attempted
// without producing a playable track.
var ErrSearchExhausted = errors.New(MsgSearchExhausted)

// TrackLoader is the resolve surface of the audio node.
type TrackLoader interface {
	LoadTracks(ctx context.Context, identifier string) (*LoadResult, error)
}

// Cascade turns user input (URL or free text) into playable tracks by walking
// the configured platform order. Spotify URLs take the metadata path: the
// catalog is consulted first, then each entity is re-resolved on the cascade
// and overlaid with the catalog metadata.
type Cascade struct {
	loader    TrackLoader
	spotify   *SpotifyClient
	platforms []Platform
	limiter   *rate.Limiter
}

func NewCascade(loader TrackLoader, spotify *SpotifyClient, cfg *Config) *Cascade {
	return &Cascade{
		loader:    loader,
		spotify:   spotify,
		platforms: CascadePlatforms(cfg.SearchPlatforms),
		limiter:   rate.NewLimiter(rate.Every(300*time.Millisecond), 1),
	}
}

// Resolve is the cascade entry point.
func (c *Cascade) Resolve(ctx context.Context, query string, requester snowflake.ID) *SearchResult {
	query = strings.TrimSpace(query)

	if IsURL(query) {
		if _, _, ok := ExtractSpotifyRef(query); ok && c.spotify.Available() {
			return c.resolveSpotify(ctx, query, requester)
		}
		return c.resolveDirect(ctx, query, requester)
	}
	return c.resolveSearch(ctx, query, requester)
}

// resolveDirect hands a URL straight to the node and tags the result with the
// platform inferred from the host.
func (c *Cascade) resolveDirect(ctx context.Context, query string, requester snowflake.ID) *SearchResult {
	platform := DetectPlatform(query)

	result, err := c.loader.LoadTracks(ctx, query)
	if err != nil {
		LogSearch(MsgSearchDirectFail, query, err)
		return &SearchResult{Outcome: OutcomeError, Platform: platform, Err: err}
	}

	if result.LoadType == LoadTypeError {
		return &SearchResult{Outcome: OutcomeError, Platform: platform, Err: errors.New(loadErrorMessage(result))}
	}

	tracks := result.Tracks()
	if len(tracks) == 0 {
		return &SearchResult{Outcome: OutcomeNotFound, Platform: platform}
	}

	annotateTracks(tracks, requester)

	res := &SearchResult{Outcome: OutcomeResolved, Tracks: tracks, Platform: platform}
	if info := result.Playlist(); info != nil {
		res.Playlist = &PlaylistDescriptor{
			Name:        info.Name,
			URL:         query,
			TotalTracks: len(tracks),
		}
		if len(tracks) > 0 && tracks[0].Info.ArtworkURL != "" {
			res.Playlist.ArtworkURL = tracks[0].Info.ArtworkURL
		}
	}
	LogSearch(MsgSearchResolved, query, platform.Name)
	return res
}

// resolveSearch walks the platform order with a free-text query. The first
// platform that yields anything wins and its full result list is returned,
// top hit first.
func (c *Cascade) resolveSearch(ctx context.Context, query string, requester snowflake.ID) *SearchResult {
	var attempted []string
	for _, p := range c.platforms {
		attempted = append(attempted, p.Name)

		if err := c.limiter.Wait(ctx); err != nil {
			return &SearchResult{Outcome: OutcomeError, Platform: p, Err: err}
		}

		result, err := c.loader.LoadTracks(ctx, p.Prefix+":"+query)
		if err != nil {
			LogSearch(MsgSearchPlatformFail, p.Name, query, err)
			continue
		}
		tracks := result.Tracks()
		if len(tracks) == 0 {
			LogSearch(MsgSearchPlatformEmpty, p.Name, query)
			continue
		}

		annotateTracks(tracks, requester)
		LogSearch(MsgSearchResolved, query, p.Name)
		return &SearchResult{Outcome: OutcomeResolved, Tracks: tracks, Platform: p}
	}

	return &SearchResult{
		Outcome: OutcomeNotFound,
		Err:     fmt.Errorf("%w (tried: %s)", ErrSearchExhausted, strings.Join(attempted, ", ")),
	}
}

// resolveSpotify resolves a spotify.com URL through the catalog, then
// reconciles every entity against the cascade. Unresolvable entities are
// skipped so a partially dead playlist still plays.
func (c *Cascade) resolveSpotify(ctx context.Context, query string, requester snowflake.ID) *SearchResult {
	spotifyPlatform := *LookupPlatform("spsearch")

	resolved, err := c.spotify.Resolve(ctx, query)
	if err != nil {
		return &SearchResult{Outcome: OutcomeError, Platform: spotifyPlatform, Err: err}
	}

	var tracks []*Track
	for _, entity := range resolved.Entities {
		track := c.reconcileEntity(ctx, entity)
		if track == nil {
			LogSearch(MsgSearchEntitySkipped, entity.Title, entity.Artist)
			continue
		}
		tracks = append(tracks, track)
	}

	if len(tracks) == 0 {
		return &SearchResult{
			Outcome:  OutcomeNotFound,
			Platform: spotifyPlatform,
			Err:      fmt.Errorf("%w (tried: %s)", ErrSearchExhausted, c.platformNames()),
		}
	}

	annotateTracks(tracks, requester)

	res := &SearchResult{Outcome: OutcomeResolved, Tracks: tracks, Platform: spotifyPlatform}
	if resolved.Kind != "track" {
		res.Playlist = &PlaylistDescriptor{
			Name:        resolved.Name,
			URL:         resolved.URL,
			ArtworkURL:  resolved.ArtworkURL,
			TotalTracks: len(resolved.Entities),
		}
		LogSearch(MsgSearchPartialPlaylist, len(tracks), len(resolved.Entities), resolved.Kind, resolved.Name)
	}
	return res
}

// reconcileEntity finds a playable counterpart for one catalog entity and
// overlays the catalog metadata on it.
func (c *Cascade) reconcileEntity(ctx context.Context, entity SpotifyEntity) *Track {
	query := strings.TrimSpace(entity.Artist + " " + entity.Title)

	for _, p := range c.platforms {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil
		}

		result, err := c.loader.LoadTracks(ctx, p.Prefix+":"+query)
		if err != nil {
			LogSearch(MsgSearchPlatformFail, p.Name, query, err)
			continue
		}
		tracks := result.Tracks()
		if len(tracks) == 0 {
			continue
		}

		track := pickBestMatch(tracks, entity)

		// playable handle stays, identity comes from the catalog
		track.Info.Title = entity.Title
		track.Info.Author = entity.Artist
		if entity.ArtworkURL != "" {
			track.Info.ArtworkURL = entity.ArtworkURL
		}
		if entity.URL != "" {
			track.Info.URI = entity.URL
		}
		track.Info.SourceName = "spotify"
		return track
	}
	return nil
}

func (c *Cascade) platformNames() string {
	names := make([]string, 0, len(c.platforms))
	for _, p := range c.platforms {
		names = append(names, p.Name)
	}
	return strings.Join(names, ", ")
}

// pickBestMatch scores the first few candidates against the catalog entity
// and returns the best one. Falls back to the top result on a tie.
func pickBestMatch(candidates []*Track, entity SpotifyEntity) *Track {
	limit := len(candidates)
	if limit > 5 {
		limit = 5
	}

	best := candidates[0]
	bestScore := -1
	for _, t := range candidates[:limit] {
		score := matchScore(t, entity)
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	return best
}

func matchScore(t *Track, entity SpotifyEntity) int {
	score := 0
	title := normalizeMatch(t.Info.Title)
	author := normalizeMatch(t.Info.Author)
	wantTitle := normalizeMatch(entity.Title)
	wantArtist := normalizeMatch(entity.Artist)

	if title == wantTitle {
		score += 4
	} else if strings.Contains(title, wantTitle) || strings.Contains(wantTitle, title) {
		score += 2
	}
	if author == wantArtist || strings.Contains(author, wantArtist) || strings.Contains(wantArtist, author) {
		score += 2
	}
	if entity.DurationMs > 0 {
		delta := t.Info.Length - entity.DurationMs
		if delta < 0 {
			delta = -delta
		}
		if delta <= 3000 {
			score += 2
		} else if delta <= 10000 {
			score++
		}
	}
	return score
}

var matchStripPattern = regexp.MustCompile(`[^a-z0-9 ]+`)

func normalizeMatch(s string) string {
	s = strings.ToLower(s)
	s = matchStripPattern.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

func annotateTracks(tracks []*Track, requester snowflake.ID) {
	for _, t := range tracks {
		t.Requester = requester
	}
}

func loadErrorMessage(result *LoadResult) string {
	var body struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
	}
	if err := json.Unmarshal(result.Data, &body); err != nil || body.Message == "" {
		return "track load failed"
	}
	return body.Message
}

// ============================================================================
// Autoplay
// ============================================================================

const autoplayQueryFormat = "ytsearch:%s %s songs like"

// Autoplay finds a follow-up track related to the seed. Candidates come from
// a related-songs search, the seed itself is excluded and one of the next
// five results is picked at random.
func (c *Cascade) Autoplay(ctx context.Context, seed *Track) (*Track, error) {
	query := fmt.Sprintf(autoplayQueryFormat, seed.Info.Author, seed.Info.Title)

	result, err := c.loader.LoadTracks(ctx, query)
	if err != nil {
		return nil, err
	}
	tracks := result.Tracks()
	if len(tracks) < 2 {
		return nil, ErrSearchExhausted
	}

	// skip the top result, it is usually the seed itself
	upper := len(tracks)
	if upper > 6 {
		upper = 6
	}
	candidates := make([]*Track, 0, upper-1)
	for _, t := range tracks[1:upper] {
		if t.Info.URI != "" && t.Info.URI == seed.Info.URI {
			continue
		}
		if t.Info.Identifier != "" && t.Info.Identifier == seed.Info.Identifier {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil, ErrSearchExhausted
	}

	pick := candidates[rand.Intn(len(candidates))]
	pick.Requester = seed.Requester
	pick.IsAutoplay = true
	return pick, nil
}
