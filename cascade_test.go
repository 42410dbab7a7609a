package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// -- Fake loader -------------------------------------------------------------

type fakeLoader struct {
	mu      sync.Mutex
	calls   []string
	results map[string]*LoadResult
	errs    map[string]error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		results: make(map[string]*LoadResult),
		errs:    make(map[string]error),
	}
}

func (f *fakeLoader) LoadTracks(_ context.Context, identifier string) (*LoadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, identifier)
	if err, ok := f.errs[identifier]; ok {
		return nil, err
	}
	if r, ok := f.results[identifier]; ok {
		return r, nil
	}
	return &LoadResult{LoadType: LoadTypeEmpty}, nil
}

func (f *fakeLoader) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func searchLoadResult(t *testing.T, tracks ...*Track) *LoadResult {
	t.Helper()
	data, err := json.Marshal(tracks)
	require.NoError(t, err)
	return &LoadResult{LoadType: LoadTypeSearch, Data: data}
}

func trackLoadResult(t *testing.T, track *Track) *LoadResult {
	t.Helper()
	data, err := json.Marshal(track)
	require.NoError(t, err)
	return &LoadResult{LoadType: LoadTypeTrack, Data: data}
}

func newTestCascade(loader TrackLoader, platforms ...string) *Cascade {
	if len(platforms) == 0 {
		platforms = DefaultPlatformOrder()
	}
	return &Cascade{
		loader:    loader,
		spotify:   NewSpotifyClient(&Config{}),
		platforms: CascadePlatforms(platforms),
		limiter:   rate.NewLimiter(rate.Every(time.Millisecond), 1),
	}
}

// -- Free-text search --------------------------------------------------------

func TestSearchFirstPlatformWithResultsWins(t *testing.T) {
	loader := newFakeLoader()
	loader.results["scsearch:test song"] = searchLoadResult(t,
		testTrack("match"), testTrack("runner-up"))

	c := newTestCascade(loader, "dzsearch", "scsearch", "bcsearch")
	result := c.Resolve(context.Background(), "test song", snowflake.ID(7))

	assert.Equal(t, OutcomeResolved, result.Outcome)
	require.Len(t, result.Tracks, 2, "the winning platform's full result list is returned")
	assert.Equal(t, "match", result.Tracks[0].Info.Title, "top hit first")
	assert.Equal(t, "runner-up", result.Tracks[1].Info.Title)
	assert.Equal(t, "SoundCloud", result.Platform.Name)
	for _, track := range result.Tracks {
		assert.Equal(t, snowflake.ID(7), track.Requester)
	}

	calls := loader.callLog()
	require.Len(t, calls, 2, "later platforms are never consulted")
	assert.Equal(t, "dzsearch:test song", calls[0])
	assert.Equal(t, "scsearch:test song", calls[1])
}

func TestSearchPlatformErrorsAreAbsorbed(t *testing.T) {
	loader := newFakeLoader()
	loader.errs["dzsearch:query"] = errors.New("node hiccup")
	loader.results["scsearch:query"] = searchLoadResult(t, testTrack("found"))

	c := newTestCascade(loader, "dzsearch", "scsearch")
	result := c.Resolve(context.Background(), "query", snowflake.ID(1))

	assert.Equal(t, OutcomeResolved, result.Outcome)
	assert.Equal(t, "SoundCloud", result.Platform.Name)
}

func TestSearchExhaustionReportsAttemptedPlatforms(t *testing.T) {
	loader := newFakeLoader()

	c := newTestCascade(loader, "dzsearch", "scsearch")
	result := c.Resolve(context.Background(), "nothing matches this", snowflake.ID(1))

	assert.Equal(t, OutcomeNotFound, result.Outcome)
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, ErrSearchExhausted)
	assert.Contains(t, result.Err.Error(), "Deezer")
	assert.Contains(t, result.Err.Error(), "SoundCloud")
}

// -- Direct URLs -------------------------------------------------------------

func TestDirectURLTagsPlatformFromHost(t *testing.T) {
	loader := newFakeLoader()
	url := "https://www.deezer.com/track/123"
	loader.results[url] = trackLoadResult(t, testTrack("direct"))

	c := newTestCascade(loader)
	result := c.Resolve(context.Background(), url, snowflake.ID(2))

	assert.Equal(t, OutcomeResolved, result.Outcome)
	assert.Equal(t, "Deezer", result.Platform.Name)
	assert.Nil(t, result.Playlist)

	calls := loader.callLog()
	require.Len(t, calls, 1)
	assert.Equal(t, url, calls[0], "URLs go to the node verbatim")
}

func TestDirectURLLoadErrorSurfaces(t *testing.T) {
	loader := newFakeLoader()
	url := "https://soundcloud.com/gone/deleted"
	loader.results[url] = &LoadResult{
		LoadType: LoadTypeError,
		Data:     json.RawMessage(`{"message":"track is region locked","severity":"common"}`),
	}

	c := newTestCascade(loader)
	result := c.Resolve(context.Background(), url, snowflake.ID(2))

	assert.Equal(t, OutcomeError, result.Outcome)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "region locked")
}

func TestDirectPlaylistURLCarriesDescriptor(t *testing.T) {
	loader := newFakeLoader()
	url := "https://soundcloud.com/artist/sets/mix"
	data, err := json.Marshal(PlaylistData{
		Info:   PlaylistInfo{Name: "Morning Mix"},
		Tracks: []*Track{testTrack("one"), testTrack("two")},
	})
	require.NoError(t, err)
	loader.results[url] = &LoadResult{LoadType: LoadTypePlaylist, Data: data}

	c := newTestCascade(loader)
	result := c.Resolve(context.Background(), url, snowflake.ID(2))

	assert.Equal(t, OutcomeResolved, result.Outcome)
	assert.Len(t, result.Tracks, 2)
	require.NotNil(t, result.Playlist)
	assert.Equal(t, "Morning Mix", result.Playlist.Name)
	assert.Equal(t, 2, result.Playlist.TotalTracks)
}

// -- Metadata reconciliation -------------------------------------------------

func TestReconcileEntityOverlaysCatalogMetadata(t *testing.T) {
	loader := newFakeLoader()
	playable := testTrack("some upload name")
	playable.Info.Length = 201000
	loader.results["dzsearch:Radiohead Karma Police"] = searchLoadResult(t, playable)

	c := newTestCascade(loader, "dzsearch")
	entity := SpotifyEntity{
		Title:      "Karma Police",
		Artist:     "Radiohead",
		ArtworkURL: "https://i.scdn.co/image/abc",
		URL:        "https://open.spotify.com/track/xyz",
		DurationMs: 200000,
	}
	track := c.reconcileEntity(context.Background(), entity)

	require.NotNil(t, track)
	assert.Equal(t, "enc-some upload name", track.Encoded, "playable handle is kept")
	assert.Equal(t, "Karma Police", track.Info.Title)
	assert.Equal(t, "Radiohead", track.Info.Author)
	assert.Equal(t, "https://i.scdn.co/image/abc", track.Info.ArtworkURL)
	assert.Equal(t, "https://open.spotify.com/track/xyz", track.Info.URI)
	assert.Equal(t, "spotify", track.Info.SourceName)
}

func TestReconcileEntityFallsThroughPlatforms(t *testing.T) {
	loader := newFakeLoader()
	loader.results["scsearch:Artist Song"] = searchLoadResult(t, testTrack("found it"))

	c := newTestCascade(loader, "dzsearch", "scsearch")
	track := c.reconcileEntity(context.Background(), SpotifyEntity{Title: "Song", Artist: "Artist"})

	require.NotNil(t, track)
	assert.Equal(t, "enc-found it", track.Encoded)
}

func TestReconcileEntityGivesUpWhenUnresolvable(t *testing.T) {
	loader := newFakeLoader()
	c := newTestCascade(loader, "dzsearch", "scsearch")

	assert.Nil(t, c.reconcileEntity(context.Background(), SpotifyEntity{Title: "Ghost", Artist: "Nobody"}))
}

func TestPickBestMatchPrefersDurationAndTitle(t *testing.T) {
	entity := SpotifyEntity{Title: "Karma Police", Artist: "Radiohead", DurationMs: 200000}

	cover := testTrack("Karma Police (Piano Cover)")
	cover.Info.Author = "Some Pianist"
	cover.Info.Length = 150000

	original := testTrack("Karma Police")
	original.Info.Author = "Radiohead"
	original.Info.Length = 201000

	best := pickBestMatch([]*Track{cover, original}, entity)
	assert.Equal(t, original, best)
}

func TestMatchScoreNormalizesPunctuation(t *testing.T) {
	entity := SpotifyEntity{Title: "Don't Stop Me Now", Artist: "Queen"}
	track := testTrack("dont stop me now")
	track.Info.Author = "QUEEN"

	assert.GreaterOrEqual(t, matchScore(track, entity), 6)
}

// -- Autoplay ----------------------------------------------------------------

func TestAutoplayExcludesSeedAndInheritsRequester(t *testing.T) {
	seed := testTrack("seed")
	seed.Requester = snowflake.ID(55)

	loader := newFakeLoader()
	query := "ytsearch:Artist seed songs like"
	loader.results[query] = searchLoadResult(t,
		seed, testTrack("related-1"), testTrack("related-2"), testTrack("related-3"))

	c := newTestCascade(loader)
	for i := 0; i < 25; i++ {
		pick, err := c.Autoplay(context.Background(), seed)
		require.NoError(t, err)
		assert.NotEqual(t, seed.Info.URI, pick.Info.URI, "seed must never be picked")
		assert.Equal(t, snowflake.ID(55), pick.Requester)
		assert.True(t, pick.IsAutoplay)
	}
}

func TestAutoplayFailsWithoutCandidates(t *testing.T) {
	seed := testTrack("lonely")
	loader := newFakeLoader()
	loader.results["ytsearch:Artist lonely songs like"] = searchLoadResult(t, seed)

	c := newTestCascade(loader)
	_, err := c.Autoplay(context.Background(), seed)
	assert.ErrorIs(t, err, ErrSearchExhausted)
}
